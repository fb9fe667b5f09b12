// Package notify holds the single transient status message shown to the
// user and clears it after a fixed duration.
package notify

import (
	"sync"
	"time"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 3 * time.Second

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a transient status message. Seq distinguishes two
// notifications with the same text.
type Notification struct {
	Seq  uint64 `json:"seq"`
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Timer is the subset of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// Clock schedules expiry callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Controller holds at most one live notification.
type Controller struct {
	mu       sync.Mutex
	clock    Clock
	duration time.Duration
	current  *Notification
	timer    Timer
	gen      uint64
	onChange func()
}

// NewController creates a Controller. If duration is <= 0, it defaults to
// DefaultDuration. A nil clock uses the wall clock.
func NewController(duration time.Duration, clock Clock) *Controller {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Controller{clock: clock, duration: duration}
}

// OnChange registers fn to run after every change of the held value,
// including expiry. fn runs without the controller lock held.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Notify replaces the current notification and restarts the countdown.
func (c *Controller) Notify(kind Kind, text string) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.current = &Notification{Seq: gen, Kind: kind, Text: text}
	c.timer = c.clock.AfterFunc(c.duration, func() { c.expire(gen) })
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Clear removes the current notification immediately.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.reset()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Current returns the live notification, if any.
func (c *Controller) Current() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notification{}, false
	}
	return *c.current, true
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	// A newer Notify or Clear owns the value now.
	if gen != c.gen || c.current == nil {
		c.mu.Unlock()
		return
	}
	c.reset()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Controller) reset() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
}
