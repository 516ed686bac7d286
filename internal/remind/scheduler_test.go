package remind

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFiresOnceAfterDelay(t *testing.T) {
	var fired int64
	s := NewScheduler(20*time.Millisecond, func(int64) { atomic.AddInt64(&fired, 1) })
	defer s.Stop()

	s.Arm(1)
	assert.True(t, s.Pending(1))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
	assert.False(t, s.Pending(1))
}

func TestCancelPreventsFiring(t *testing.T) {
	var fired int64
	s := NewScheduler(30*time.Millisecond, func(int64) { atomic.AddInt64(&fired, 1) })
	defer s.Stop()

	s.Arm(1)
	s.Cancel(1)
	assert.False(t, s.Pending(1))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fired))
}

func TestCancelIsIdempotent(t *testing.T) {
	s := NewScheduler(time.Hour, func(int64) {})
	defer s.Stop()

	s.Arm(1)
	s.Cancel(1)
	s.Cancel(1)
	s.Cancel(2) // never armed
}

func TestSecondArmIsNoOp(t *testing.T) {
	var fired int64
	s := NewScheduler(20*time.Millisecond, func(int64) { atomic.AddInt64(&fired, 1) })
	defer s.Stop()

	s.Arm(1)
	s.Arm(1)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestCancelRaceWithFiring(t *testing.T) {
	// Hammer cancel against firing timers; the scheduler itself must never
	// invoke the callback for a ticket after Cancel returned, and must not
	// panic or deadlock under the interleaving.
	var fired int64
	s := NewScheduler(time.Millisecond, func(int64) { atomic.AddInt64(&fired, 1) })
	defer s.Stop()

	for i := int64(0); i < 200; i++ {
		s.Arm(i)
		if i%2 == 0 {
			s.Cancel(i)
		}
	}
	time.Sleep(100 * time.Millisecond)

	// all odd-numbered timers fired, cancelled ones at most raced
	assert.GreaterOrEqual(t, atomic.LoadInt64(&fired), int64(100))
	assert.LessOrEqual(t, atomic.LoadInt64(&fired), int64(200))
}

func TestStopCancelsEverything(t *testing.T) {
	var fired int64
	s := NewScheduler(20*time.Millisecond, func(int64) { atomic.AddInt64(&fired, 1) })

	s.Arm(1)
	s.Arm(2)
	s.Stop()
	s.Arm(3) // ignored after Stop

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fired))
	assert.False(t, s.Pending(3))
}
