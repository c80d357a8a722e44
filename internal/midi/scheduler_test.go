package midi

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerFiresAfterDelay(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired int32
	s.Schedule(NoteKey{Note: 60}, 10*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestSchedulerCancelPreventsCallback(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired int32
	key := NoteKey{Note: 60}
	s.Schedule(key, 10*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	s.Cancel(key)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestSchedulerReplaceCancelsPriorCallback(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	key := NoteKey{Note: 72}
	var firstFired, secondFired int32

	s.Schedule(key, 10*time.Millisecond, func() {
		atomic.StoreInt32(&firstFired, 1)
	})
	s.Schedule(key, 30*time.Millisecond, func() {
		atomic.StoreInt32(&secondFired, 1)
	})

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&firstFired), "replaced deadline must never fire")
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondFired))
}

func TestSchedulerOrdersMultipleKeys(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var order []int
	done := make(chan struct{}, 3)
	record := func(n int) func() {
		return func() {
			order = append(order, n)
			done <- struct{}{}
		}
	}

	s.Schedule(NoteKey{Note: 3}, 30*time.Millisecond, record(3))
	s.Schedule(NoteKey{Note: 1}, 10*time.Millisecond, record(1))
	s.Schedule(NoteKey{Note: 2}, 20*time.Millisecond, record(2))

	for i := 0; i < 3; i++ {
		<-done
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSchedulerWakesEarlyForShorterDeadlineWhileSleeping(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	// Put the worker to sleep on a long deadline first.
	s.Schedule(NoteKey{Note: 90}, 500*time.Millisecond, func() {})
	time.Sleep(10 * time.Millisecond)

	fired := make(chan struct{}, 1)
	start := time.Now()
	s.Schedule(NoteKey{Note: 91}, 20*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
		assert.Less(t, time.Since(start), 200*time.Millisecond, "shorter deadline must not wait for the longer one already asleep")
	case <-time.After(300 * time.Millisecond):
		t.Fatal("shorter-deadline callback never fired; worker stuck asleep on the earlier key")
	}
}
