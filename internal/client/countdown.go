package client

import (
	"sync"
	"time"

	"github.com/karstlabs/guestpass/internal/timefmt"
)

// Countdown renders the remaining-time badge once per second and fires
// an expiry callback, exactly once per run, when the window closes.
// A nil expiry timestamp renders a static waiting label and never
// ticks. Start while running stops the previous run first, so at most
// one ticker is ever live.
type Countdown struct {
	clock     Clock
	render    func(label string)
	onExpired func()

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

func NewCountdown(clock Clock, render func(string), onExpired func()) *Countdown {
	if render == nil {
		render = func(string) {}
	}
	if onExpired == nil {
		onExpired = func() {}
	}
	return &Countdown{clock: clock, render: render, onExpired: onExpired}
}

func (c *Countdown) Start(expiresAt *time.Time) {
	c.Stop()

	if expiresAt == nil {
		c.render("Awaiting activation")
		return
	}

	remaining := expiresAt.Sub(c.clock.Now())
	if remaining <= 0 {
		c.render("Expired")
		c.onExpired()
		return
	}
	c.render("Time left: " + timefmt.Remaining(remaining))

	c.mu.Lock()
	done := make(chan struct{})
	c.done = done
	c.running = true
	c.mu.Unlock()

	ticker := c.clock.NewTicker(time.Second)
	go c.run(*expiresAt, ticker, done)
}

// Stop is idempotent and safe to call from any state.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.done)
		c.done = nil
		c.running = false
	}
}

func (c *Countdown) run(expiresAt time.Time, ticker Ticker, done chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			remaining := expiresAt.Sub(c.clock.Now())
			if remaining <= 0 {
				c.render("Expired")
				c.finish(done)
				c.onExpired()
				return
			}
			c.render("Time left: " + timefmt.Remaining(remaining))
		}
	}
}

// finish clears running state for this run only. A newer run that has
// replaced the done channel is left alone.
func (c *Countdown) finish(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.done == done {
		c.done = nil
		c.running = false
	}
}
