// Package clock supplies the current time to expiry checks. Production code
// injects Real(); tests inject Fake() and move time explicitly.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by the time package. Times are UTC.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// FakeClock stands still until Advance or Set is called. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
