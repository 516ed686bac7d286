package notify

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Button is an inline action offered with a message. Action carries the
// callback data, e.g. "accept:42".
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Sender is the outbound side of the chat transport. Implementations report
// per-recipient failure; they never retry.
type Sender interface {
	Send(ctx context.Context, userID int64, text string, buttons []Button) error
	SendPhoto(ctx context.Context, userID int64, photoRef, caption string) error
}

// Recipients yields the current role membership. The fan-out asks on every
// call so that role changes between two broadcasts are picked up.
type Recipients interface {
	Technicians() []int64
	Dispatchers() []int64
	Admins() []int64
}

// Fanout delivers one message to a dynamically computed recipient set,
// one goroutine per recipient. A failed delivery is logged and does not
// abort the rest, nor does it fail the triggering operation; the return
// value is the number of successful deliveries. Every variant blocks until
// all sends finished, so "sent to N" acknowledgements are accurate.
type Fanout struct {
	logger *log.Logger
	sender Sender
	roles  Recipients
}

func NewFanout(logger *log.Logger, sender Sender, roles Recipients) *Fanout {
	return &Fanout{logger: logger, sender: sender, roles: roles}
}

func (f *Fanout) Technicians(ctx context.Context, text string, buttons []Button) int {
	return f.send(ctx, f.roles.Technicians(), text, buttons)
}

func (f *Fanout) TechniciansExcept(ctx context.Context, except int64, text string) int {
	ids := f.roles.Technicians()
	kept := ids[:0]
	for _, id := range ids {
		if id != except {
			kept = append(kept, id)
		}
	}
	return f.send(ctx, kept, text, nil)
}

func (f *Fanout) Dispatchers(ctx context.Context, text string) int {
	return f.send(ctx, f.roles.Dispatchers(), text, nil)
}

func (f *Fanout) Admins(ctx context.Context, text string) int {
	return f.send(ctx, f.roles.Admins(), text, nil)
}

func (f *Fanout) DispatchersPhoto(ctx context.Context, photoRef, caption string) int {
	var delivered int64
	var wg sync.WaitGroup
	for _, id := range f.roles.Dispatchers() {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.sender.SendPhoto(ctx, id, photoRef, caption); err != nil {
				f.logger.Printf("send photo to %d failed: %v", id, err)
				return
			}
			atomic.AddInt64(&delivered, 1)
		}()
	}
	wg.Wait()
	return int(delivered)
}

func (f *Fanout) send(ctx context.Context, ids []int64, text string, buttons []Button) int {
	var delivered int64
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.sender.Send(ctx, id, text, buttons); err != nil {
				f.logger.Printf("send to %d failed: %v", id, err)
				return
			}
			atomic.AddInt64(&delivered, 1)
		}()
	}
	wg.Wait()
	return int(delivered)
}
