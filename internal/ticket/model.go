package ticket

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
)

// Claim actions offered to technicians on a broadcast.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Fields is the dispatcher-supplied part of a ticket. All five values are
// required non-empty.
type Fields struct {
	Serial  string `json:"serial"`
	Problem string `json:"problem"`
	Phone   string `json:"phone"`
	Plate   string `json:"plate"`
	Garage  string `json:"garage"`
}

func (f Fields) validate() error {
	required := []struct{ name, value string }{
		{"serial", f.Serial},
		{"problem", f.Problem},
		{"phone", f.Phone},
		{"plate", f.Plate},
		{"garage", f.Garage},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

type Ticket struct {
	ID           int64      `json:"id"`
	Serial       string     `json:"serial"`
	Problem      string     `json:"problem"`
	Phone        string     `json:"phone"`
	Plate        string     `json:"plate"`
	Garage       string     `json:"garage"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatcherID int64      `json:"dispatcher_id"`
	TechnicianID *int64     `json:"technician_id,omitempty"`
	Resolved     *bool      `json:"resolved,omitempty"`
	Solution     *string    `json:"solution,omitempty"`
	PhotoRef     *string    `json:"photo_ref,omitempty"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// clone returns a copy that shares no pointers with the original, so
// callers can hold it outside the store lock.
func (t *Ticket) clone() Ticket {
	out := *t
	if t.TechnicianID != nil {
		v := *t.TechnicianID
		out.TechnicianID = &v
	}
	if t.Resolved != nil {
		v := *t.Resolved
		out.Resolved = &v
	}
	if t.Solution != nil {
		v := *t.Solution
		out.Solution = &v
	}
	if t.PhotoRef != nil {
		v := *t.PhotoRef
		out.PhotoRef = &v
	}
	if t.AcceptedAt != nil {
		v := *t.AcceptedAt
		out.AcceptedAt = &v
	}
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}

// OutcomeLabel renders the outcome flag the way dispatchers see it.
func (t Ticket) OutcomeLabel() string {
	switch {
	case t.Resolved == nil:
		return ""
	case *t.Resolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// Completed is the immutable snapshot handed to export and notification
// after the terminal transition.
type Completed struct {
	Ticket
	TechnicianID int64
	Solution     string
	PhotoRef     string
	ResolvedAt   time.Time
}
