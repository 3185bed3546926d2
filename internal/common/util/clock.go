package util

import "time"

// Clock abstracts the wall clock so that time-dependent code can be tested.
// All times handed out are UTC.
type Clock interface {
	Now() time.Time
}

type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now().UTC() }

// DummyClock always returns T. Tests may move T forward between calls.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time {
	return c.T.UTC()
}

// Advance moves the clock forward by d.
func (c *DummyClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
