// Package dispatch is the ticket lifecycle engine: it drives the store
// through its transitions and fans the side effects (notifications,
// reminders, statistics, export, audit) out of each committed one.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"fleetdispatch/internal/export"
	"fleetdispatch/internal/notify"
	"fleetdispatch/internal/remind"
	"fleetdispatch/internal/roles"
	"fleetdispatch/internal/stats"
	"fleetdispatch/internal/ticket"
)

// Exporter appends one record per completed ticket. Failures are logged and
// escalated to admins but never roll the ticket back.
type Exporter interface {
	Append(ctx context.Context, rec export.Record) error
}

// Auditor records actions fire-and-forget.
type Auditor interface {
	Record(ctx context.Context, userID int64, action, details string)
}

type Config struct {
	Logger        *log.Logger
	Store         *ticket.Store
	Roles         *roles.Registry
	Fanout        *notify.Fanout
	Sender        notify.Sender
	Stats         *stats.Aggregator
	Sheet         Exporter
	Audit         Auditor
	ReminderDelay time.Duration
}

type Engine struct {
	logger    *log.Logger
	store     *ticket.Store
	roles     *roles.Registry
	fanout    *notify.Fanout
	sender    notify.Sender
	stats     *stats.Aggregator
	sheet     Exporter
	audit     Auditor
	reminders *remind.Scheduler
	conv      *conversations
	delay     time.Duration
}

func New(cfg Config) *Engine {
	if cfg.ReminderDelay <= 0 {
		cfg.ReminderDelay = 5 * time.Minute
	}
	e := &Engine{
		logger: cfg.Logger,
		store:  cfg.Store,
		roles:  cfg.Roles,
		fanout: cfg.Fanout,
		sender: cfg.Sender,
		stats:  cfg.Stats,
		sheet:  cfg.Sheet,
		audit:  cfg.Audit,
		conv:   newConversations(),
		delay:  cfg.ReminderDelay,
	}
	e.reminders = remind.NewScheduler(cfg.ReminderDelay, e.remind)
	return e
}

// Close cancels all pending reminders.
func (e *Engine) Close() {
	e.reminders.Stop()
}

type SubmitResult struct {
	Ticket   ticket.Ticket `json:"ticket"`
	Notified int           `json:"notified"`
}

// Submit creates a ticket and broadcasts it to every technician with the
// accept/reject buttons. The ticket is created even when nobody can be
// reached; Notified tells the dispatcher how many deliveries succeeded.
func (e *Engine) Submit(ctx context.Context, dispatcherID int64, f ticket.Fields) (SubmitResult, error) {
	t, err := e.store.Create(dispatcherID, f)
	if err != nil {
		return SubmitResult{}, err
	}

	e.stats.Created(dispatcherID)
	e.audit.Record(ctx, dispatcherID, "ticket_created", fmt.Sprintf("ticket #%d serial=%s", t.ID, t.Serial))

	notified := e.fanout.Technicians(ctx, newTicketMessage(t), claimButtons(t.ID))

	// One reminder per ticket, armed only when there is someone to remind.
	if len(e.roles.Technicians()) > 0 {
		e.reminders.Arm(t.ID)
	}

	return SubmitResult{Ticket: t, Notified: notified}, nil
}

// Claim handles a technician's accept or reject. Accept is first-claim-wins:
// the store's compare-and-set picks exactly one winner, everyone else gets
// ticket.ErrAlreadyHandled. Reject leaves the ticket open for the others and
// only notifies the dispatchers.
func (e *Engine) Claim(ctx context.Context, technicianID, ticketID int64, action ticket.Action) (ticket.Ticket, error) {
	if action == ticket.ActionAccept {
		if err := e.conv.begin(technicianID, ticketID); err != nil {
			return ticket.Ticket{}, err
		}
	}

	t, err := e.store.Claim(ticketID, technicianID, action)
	if err != nil {
		if action == ticket.ActionAccept {
			e.conv.abort(technicianID, ticketID)
		}
		return ticket.Ticket{}, err
	}

	name := e.roles.Name(technicianID)

	if action == ticket.ActionReject {
		e.audit.Record(ctx, technicianID, "ticket_rejected", fmt.Sprintf("ticket #%d", ticketID))
		e.fanout.Dispatchers(ctx, fmt.Sprintf("Ticket #%d rejected by %s", ticketID, name))
		return t, nil
	}

	e.reminders.Cancel(ticketID)
	e.audit.Record(ctx, technicianID, "ticket_accepted", fmt.Sprintf("ticket #%d", ticketID))

	e.fanout.Dispatchers(ctx, fmt.Sprintf("Ticket #%d accepted by %s", ticketID, name))
	e.fanout.TechniciansExcept(ctx, technicianID, fmt.Sprintf("Ticket #%d was already taken by %s", ticketID, name))

	if err := e.sender.Send(ctx, technicianID,
		fmt.Sprintf("You accepted ticket #%d. Report the outcome.", ticketID),
		outcomeButtons(ticketID)); err != nil {
		e.logger.Printf("outcome prompt to %d: %v", technicianID, err)
	}

	return t, nil
}

// SetOutcome records the resolved/unresolved flag and moves the technician
// to the solution step.
func (e *Engine) SetOutcome(ctx context.Context, technicianID, ticketID int64, resolved bool) (ticket.Ticket, error) {
	t, err := e.store.SetOutcome(ticketID, technicianID, resolved)
	if err != nil {
		return ticket.Ticket{}, err
	}

	e.conv.set(technicianID, ticketID, stepSolution)
	e.audit.Record(ctx, technicianID, "outcome_set", fmt.Sprintf("ticket #%d outcome=%s", ticketID, t.OutcomeLabel()))

	if err := e.sender.Send(ctx, technicianID, "Describe how you handled the problem.", nil); err != nil {
		e.logger.Printf("solution prompt to %d: %v", technicianID, err)
	}
	return t, nil
}

// Text routes a free-text message from a technician. It is a solution only
// when that technician is at the solution step of an engagement.
func (e *Engine) Text(ctx context.Context, technicianID int64, text string) (ticket.Ticket, error) {
	eng, ok := e.conv.get(technicianID)
	if !ok || eng.step != stepSolution {
		return ticket.Ticket{}, fmt.Errorf("%w: no solution expected right now", ticket.ErrSequence)
	}

	t, err := e.store.SetSolution(eng.ticketID, technicianID, text)
	if err != nil {
		return ticket.Ticket{}, err
	}

	e.conv.set(technicianID, eng.ticketID, stepPhoto)
	e.audit.Record(ctx, technicianID, "solution_set", fmt.Sprintf("ticket #%d", eng.ticketID))

	if err := e.sender.Send(ctx, technicianID, "Now send a photo as confirmation.", nil); err != nil {
		e.logger.Printf("photo prompt to %d: %v", technicianID, err)
	}
	return t, nil
}

// Photo completes the engagement: terminal transition, statistics, export,
// photo fan-out to the dispatchers. Export and notification failures are
// logged, never rolled back.
func (e *Engine) Photo(ctx context.Context, technicianID int64, photoRef string) (ticket.Completed, error) {
	eng, ok := e.conv.get(technicianID)
	if !ok || eng.step != stepPhoto {
		return ticket.Completed{}, fmt.Errorf("%w: no photo expected right now", ticket.ErrSequence)
	}

	done, err := e.store.Complete(eng.ticketID, technicianID, photoRef)
	if err != nil {
		return ticket.Completed{}, err
	}
	e.conv.clear(technicianID)

	e.stats.Resolved(technicianID, done.ResolvedAt.Sub(done.CreatedAt))
	e.reminders.Cancel(done.ID)
	e.audit.Record(ctx, technicianID, "ticket_completed", fmt.Sprintf("ticket #%d", done.ID))

	name := e.roles.Name(technicianID)
	e.fanout.DispatchersPhoto(ctx, photoRef, completionCaption(done, name))

	rec := export.Record{
		CreatedAt:   done.CreatedAt,
		AcceptedAt:  done.AcceptedAt,
		CompletedAt: done.ResolvedAt,
		Serial:      done.Serial,
		Problem:     done.Problem,
		Phone:       done.Phone,
		Plate:       done.Plate,
		Garage:      done.Garage,
		Technician:  name,
		Outcome:     done.OutcomeLabel(),
		Solution:    done.Solution,
		PhotoRef:    done.PhotoRef,
	}
	if err := e.sheet.Append(ctx, rec); err != nil {
		e.logger.Printf("export ticket #%d: %v", done.ID, err)
		e.fanout.Admins(ctx, fmt.Sprintf("Export failed for ticket #%d: %v", done.ID, err))
	}

	if err := e.sender.Send(ctx, technicianID, fmt.Sprintf("Ticket #%d closed. Thanks!", done.ID), nil); err != nil {
		e.logger.Printf("completion note to %d: %v", technicianID, err)
	}

	return done, nil
}

// AssignRole promotes or reassigns a user and tells them about it. Bootstrap
// admins cannot be reassigned.
func (e *Engine) AssignRole(ctx context.Context, adminID, userID int64, role, name string) error {
	if !e.roles.IsAdmin(adminID) {
		return fmt.Errorf("%w: admin only", ticket.ErrForbidden)
	}
	if err := e.roles.Assign(userID, role); err != nil {
		return err
	}
	if name != "" {
		e.roles.SetName(userID, name)
	}
	e.audit.Record(ctx, adminID, "role_assigned", fmt.Sprintf("user %d -> %s", userID, role))

	if err := e.sender.Send(ctx, userID, fmt.Sprintf("You are now registered as %s.", role), nil); err != nil {
		e.logger.Printf("role notice to %d: %v", userID, err)
	}
	return nil
}

// remind is the scheduler callback. The status check through IfOpen runs
// under the store lock and is the authoritative guard against firing after
// a concurrent accept; scheduler cancellation alone is best-effort.
func (e *Engine) remind(ticketID int64) {
	ctx := context.Background()

	t, open := e.store.IfOpen(ticketID)
	if !open {
		return
	}

	minutes := int(e.delay.Minutes())
	e.fanout.Technicians(ctx, reminderMessage(t, minutes), nil)

	if err := e.sender.Send(ctx, t.DispatcherID,
		fmt.Sprintf("Ticket #%d has not been accepted yet!", t.ID), nil); err != nil {
		e.logger.Printf("reminder to dispatcher %d: %v", t.DispatcherID, err)
	}
}
