package roles

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	RoleAdmin      = "ADMIN"
	RoleDispatcher = "DISPATCHER"
	RoleTechnician = "TECHNICIAN"
)

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrProtected   = errors.New("bootstrap admin cannot be reassigned")
)

func IsValidRole(r string) bool {
	return r == RoleAdmin || r == RoleDispatcher || r == RoleTechnician
}

type Member struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// Registry maps user identities to roles. The bootstrap admin set is fixed
// at construction and always reports ADMIN.
type Registry struct {
	mu        sync.RWMutex
	roles     map[int64]string
	names     map[int64]string
	bootstrap map[int64]struct{}
}

func NewRegistry(bootstrapAdmins []int64) *Registry {
	r := &Registry{
		roles:     make(map[int64]string),
		names:     make(map[int64]string),
		bootstrap: make(map[int64]struct{}),
	}
	for _, id := range bootstrapAdmins {
		r.bootstrap[id] = struct{}{}
		r.roles[id] = RoleAdmin
	}
	return r
}

func (r *Registry) Role(id int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.bootstrap[id]; ok {
		return RoleAdmin, true
	}
	role, ok := r.roles[id]
	return role, ok
}

func (r *Registry) IsAdmin(id int64) bool {
	role, ok := r.Role(id)
	return ok && role == RoleAdmin
}

func (r *Registry) Assign(id int64, role string) error {
	if !IsValidRole(role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bootstrap[id]; ok {
		return ErrProtected
	}
	r.roles[id] = role
	return nil
}

func (r *Registry) SetName(id int64, name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.names[id] = name
	r.mu.Unlock()
}

// Name returns the registered display name, or a stable fallback.
func (r *Registry) Name(id int64) string {
	r.mu.RLock()
	name, ok := r.names[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("user %d", id)
	}
	return name
}

func (r *Registry) Technicians() []int64 { return r.withRole(RoleTechnician) }
func (r *Registry) Dispatchers() []int64 { return r.withRole(RoleDispatcher) }
func (r *Registry) Admins() []int64      { return r.withRole(RoleAdmin) }

func (r *Registry) withRole(role string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int64
	for id, got := range r.roles {
		if got == role {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.roles))
	for id, role := range r.roles {
		m := Member{UserID: id, Role: role}
		if name, ok := r.names[id]; ok {
			m.Name = name
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
