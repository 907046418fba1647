package trading

import (
	"sync"
	"time"
)

// companyLocks serializes trades per company. Each company gets its own
// lock so trades against different companies proceed in parallel, while
// two trades against the same company never interleave their
// read-price/write-price sequence.
//
// Acquisition is bounded: a caller that cannot get the lock within the
// timeout gives up instead of hanging, and the engine surfaces that as a
// retryable contention error.
type companyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newCompanyLocks() *companyLocks {
	return &companyLocks{
		locks: make(map[string]chan struct{}),
	}
}

func (c *companyLocks) get(companyID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.locks[companyID]
	if !ok {
		// Buffered channel of one acts as the company's semaphore.
		// Lock entries are never removed; the company set is small.
		ch = make(chan struct{}, 1)
		c.locks[companyID] = ch
	}
	return ch
}

// Acquire takes the company's lock, waiting at most timeout. Returns
// false if the lock could not be acquired in time.
func (c *companyLocks) Acquire(companyID string, timeout time.Duration) bool {
	ch := c.get(companyID)

	select {
	case ch <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Release frees the company's lock. Must only be called after a
// successful Acquire.
func (c *companyLocks) Release(companyID string) {
	<-c.get(companyID)
}
