package ticket

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store owns the canonical id -> ticket mapping. Every mutation runs under
// one mutex; Claim is the compare-and-set point that decides claim races,
// and the reminder fire path re-checks status through IfOpen under the same
// lock.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[int64]*Ticket
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		tickets: make(map[int64]*Ticket),
		now:     time.Now,
	}
}

func (s *Store) Create(dispatcherID int64, f Fields) (Ticket, error) {
	if err := f.validate(); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &Ticket{
		ID:           s.nextID,
		Serial:       f.Serial,
		Problem:      f.Problem,
		Phone:        f.Phone,
		Plate:        f.Plate,
		Garage:       f.Garage,
		Status:       StatusOpen,
		CreatedAt:    s.now().UTC(),
		DispatcherID: dispatcherID,
	}
	s.tickets[t.ID] = t
	return t.clone(), nil
}

// Claim resolves the first-accept-wins race. Exactly one accept succeeds on
// an OPEN ticket; every later claim gets ErrAlreadyHandled without mutating
// anything. A reject leaves the ticket OPEN for the remaining technicians.
func (s *Store) Claim(id, technicianID int64, action Action) (Ticket, error) {
	if action != ActionAccept && action != ActionReject {
		return Ticket{}, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	if t.Status != StatusOpen {
		return Ticket{}, ErrAlreadyHandled
	}

	if action == ActionReject {
		return t.clone(), nil
	}

	now := s.now().UTC()
	t.Status = StatusInProgress
	t.TechnicianID = &technicianID
	t.AcceptedAt = &now
	return t.clone(), nil
}

func (s *Store) SetOutcome(id, technicianID int64, resolved bool) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.assigned(id, technicianID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != StatusInProgress {
		return Ticket{}, ErrAlreadyHandled
	}
	t.Resolved = &resolved
	return t.clone(), nil
}

func (s *Store) SetSolution(id, technicianID int64, text string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.assigned(id, technicianID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != StatusInProgress {
		return Ticket{}, ErrAlreadyHandled
	}
	if t.Resolved == nil {
		return Ticket{}, fmt.Errorf("%w: outcome not set", ErrSequence)
	}
	t.Solution = &text
	return t.clone(), nil
}

// Complete applies the terminal transition. resolved_at and the photo
// reference are set together, never separately.
func (s *Store) Complete(id, technicianID int64, photoRef string) (Completed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.assigned(id, technicianID)
	if err != nil {
		return Completed{}, err
	}
	if t.Status != StatusInProgress {
		return Completed{}, ErrAlreadyHandled
	}
	if t.Solution == nil {
		return Completed{}, fmt.Errorf("%w: solution not set", ErrSequence)
	}

	now := s.now().UTC()
	t.Status = StatusResolved
	t.PhotoRef = &photoRef
	t.ResolvedAt = &now

	return Completed{
		Ticket:       t.clone(),
		TechnicianID: technicianID,
		Solution:     *t.Solution,
		PhotoRef:     photoRef,
		ResolvedAt:   now,
	}, nil
}

func (s *Store) assigned(id, technicianID int64) (*Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.TechnicianID == nil || *t.TechnicianID != technicianID {
		return nil, fmt.Errorf("%w: not assigned to this ticket", ErrForbidden)
	}
	return t, nil
}

func (s *Store) Get(id int64) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t.clone(), nil
}

// IfOpen returns a snapshot only while the ticket is still OPEN. The
// reminder fire handler uses it as the authoritative guard against the
// fire-vs-claim race: the status check happens under the store lock, so a
// concurrent accept either completed before this call (no reminder) or will
// observe IN_PROGRESS afterwards.
func (s *Store) IfOpen(id int64) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.Status != StatusOpen {
		return Ticket{}, false
	}
	return t.clone(), true
}

func (s *Store) ListOpen() []Ticket {
	return s.list(func(t *Ticket) bool { return t.Status == StatusOpen })
}

func (s *Store) ListOpenByDispatcher(dispatcherID int64) []Ticket {
	return s.list(func(t *Ticket) bool {
		return t.Status != StatusResolved && t.DispatcherID == dispatcherID
	})
}

func (s *Store) ListByTechnician(technicianID int64) []Ticket {
	return s.list(func(t *Ticket) bool {
		return t.TechnicianID != nil && *t.TechnicianID == technicianID
	})
}

// ListActiveByTechnician returns the technician's engagements that have not
// reached the terminal state yet.
func (s *Store) ListActiveByTechnician(technicianID int64) []Ticket {
	return s.list(func(t *Ticket) bool {
		return t.TechnicianID != nil && *t.TechnicianID == technicianID &&
			t.Status != StatusResolved
	})
}

func (s *Store) list(keep func(*Ticket) bool) []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ticket
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, t.clone())
		}
	}
	// map order is random; callers expect oldest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
