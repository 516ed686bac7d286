package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoles struct {
	mu          sync.Mutex
	technicians []int64
	dispatchers []int64
	admins      []int64
}

func (f *fakeRoles) Technicians() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.technicians...)
}

func (f *fakeRoles) Dispatchers() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.dispatchers...)
}

func (f *fakeRoles) Admins() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.admins...)
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []int64
	photos []int64
	fail   map[int64]bool
}

func (f *fakeSender) Send(_ context.Context, userID int64, _ string, _ []Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return fmt.Errorf("user %d unreachable", userID)
	}
	f.sent = append(f.sent, userID)
	return nil
}

func (f *fakeSender) SendPhoto(_ context.Context, userID int64, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return errors.New("unreachable")
	}
	f.photos = append(f.photos, userID)
	return nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestFanoutDeliversToAllTechnicians(t *testing.T) {
	roles := &fakeRoles{technicians: []int64{20, 21, 22}}
	sender := &fakeSender{}
	f := NewFanout(discard(), sender, roles)

	n := f.Technicians(context.Background(), "hello", nil)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []int64{20, 21, 22}, sender.sent)
}

func TestFanoutIsolatesFailures(t *testing.T) {
	roles := &fakeRoles{technicians: []int64{20, 21, 22}}
	sender := &fakeSender{fail: map[int64]bool{21: true}}
	f := NewFanout(discard(), sender, roles)

	n := f.Technicians(context.Background(), "hello", nil)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{20, 22}, sender.sent)
}

func TestFanoutComputesRecipientsFresh(t *testing.T) {
	roles := &fakeRoles{technicians: []int64{20}}
	sender := &fakeSender{}
	f := NewFanout(discard(), sender, roles)

	require.Equal(t, 1, f.Technicians(context.Background(), "first", nil))

	roles.mu.Lock()
	roles.technicians = []int64{20, 21}
	roles.mu.Unlock()

	assert.Equal(t, 2, f.Technicians(context.Background(), "second", nil))
}

func TestFanoutEmptyRecipientSet(t *testing.T) {
	f := NewFanout(discard(), &fakeSender{}, &fakeRoles{})
	assert.Equal(t, 0, f.Technicians(context.Background(), "anyone?", nil))
	assert.Equal(t, 0, f.Dispatchers(context.Background(), "anyone?"))
}

func TestTechniciansExcept(t *testing.T) {
	roles := &fakeRoles{technicians: []int64{20, 21, 22}}
	sender := &fakeSender{}
	f := NewFanout(discard(), sender, roles)

	n := f.TechniciansExcept(context.Background(), 21, "taken")
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{20, 22}, sender.sent)
}

func TestDispatchersPhoto(t *testing.T) {
	roles := &fakeRoles{dispatchers: []int64{10, 11}}
	sender := &fakeSender{fail: map[int64]bool{11: true}}
	f := NewFanout(discard(), sender, roles)

	n := f.DispatchersPhoto(context.Background(), "photo-1", "done")
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []int64{10}, sender.photos)
}
