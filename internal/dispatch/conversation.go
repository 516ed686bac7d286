package dispatch

import (
	"fmt"
	"sync"

	"fleetdispatch/internal/ticket"
)

type step int

const (
	stepOutcome step = iota + 1
	stepSolution
	stepPhoto
)

type engagement struct {
	ticketID int64
	step     step
}

// conversations tracks where each technician is in the resolution sequence
// (outcome -> solution text -> photo). One engagement per technician at a
// time: a technician cannot accept a second ticket while one is in flight.
type conversations struct {
	mu     sync.Mutex
	active map[int64]engagement
}

func newConversations() *conversations {
	return &conversations{active: make(map[int64]engagement)}
}

func (c *conversations) begin(technicianID, ticketID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[technicianID]; ok {
		return fmt.Errorf("%w: ticket #%d is still in progress", ticket.ErrSequence, cur.ticketID)
	}
	c.active[technicianID] = engagement{ticketID: ticketID, step: stepOutcome}
	return nil
}

func (c *conversations) set(technicianID, ticketID int64, s step) {
	c.mu.Lock()
	c.active[technicianID] = engagement{ticketID: ticketID, step: s}
	c.mu.Unlock()
}

func (c *conversations) get(technicianID int64) (engagement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	eng, ok := c.active[technicianID]
	return eng, ok
}

func (c *conversations) clear(technicianID int64) {
	c.mu.Lock()
	delete(c.active, technicianID)
	c.mu.Unlock()
}

// abort removes the engagement only if it still points at the given ticket.
// Used to roll the gate back when a claim loses the race after begin.
func (c *conversations) abort(technicianID, ticketID int64) {
	c.mu.Lock()
	if cur, ok := c.active[technicianID]; ok && cur.ticketID == ticketID {
		delete(c.active, technicianID)
	}
	c.mu.Unlock()
}
