package testfixtures

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a manually advanced time source for services under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at ReferenceTime.
func NewClock() *Clock {
	return &Clock{now: ReferenceTime()}
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// IDGenerator hands out predictable identifiers such as "evt-1", "evt-2".
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDGenerator returns an IDGenerator using prefix.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
