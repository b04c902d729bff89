package scheduler

import (
	"sync"
	"time"
)

// DeferredDeleter runs one cancellable delayed task per ticket id, used for
// the post-closure channel deletion grace window. Scheduling a ticket twice
// replaces the earlier task.
type DeferredDeleter struct {
	clock Clock
	delay time.Duration
	run   func(ticketID string)

	mu     sync.Mutex
	timers map[string]Timer
}

// NewDeferredDeleter constructs the deleter; run executes after the grace
// delay unless cancelled.
func NewDeferredDeleter(clock Clock, delay time.Duration, run func(ticketID string)) *DeferredDeleter {
	return &DeferredDeleter{
		clock:  clock,
		delay:  delay,
		run:    run,
		timers: make(map[string]Timer),
	}
}

// Schedule queues deletion for a ticket after the grace delay.
func (d *DeferredDeleter) Schedule(ticketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.timers[ticketID]; ok {
		existing.Stop()
	}
	d.timers[ticketID] = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, ticketID)
		d.mu.Unlock()
		d.run(ticketID)
	})
}

// Cancel stops a pending deletion, reporting whether one was queued.
func (d *DeferredDeleter) Cancel(ticketID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	timer, ok := d.timers[ticketID]
	if !ok {
		return false
	}
	delete(d.timers, ticketID)
	return timer.Stop()
}

// Pending reports the number of queued deletions.
func (d *DeferredDeleter) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
