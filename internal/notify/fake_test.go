package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fitportal/internal/models"
)

type fakeProvider struct {
	mu       sync.Mutex
	failKind map[Kind]bool
	failAll  bool
	failN    int
	calls    []Message
}

func (*fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, msg)
	if p.failAll || p.failKind[msg.Kind] {
		return errors.New("provider unavailable")
	}
	if p.failN > 0 {
		p.failN--
		return errors.New("provider unavailable")
	}
	return nil
}

func (p *fakeProvider) snapshot() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.calls...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTimers records scheduled wakeups instead of arming real timers.
type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fn     func()
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fn = fn
	return func() bool { return true }
}

func (f *fakeTimers) fire() {
	f.mu.Lock()
	fn := f.fn
	f.fn = nil
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeTimers) snapshot() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func sampleSubmission() models.ContactSubmission {
	phone := "07700 900123"
	return models.ContactSubmission{
		ID:        12,
		Name:      "Sarah Johnson",
		Email:     "sarah@example.com",
		Phone:     &phone,
		Message:   "Interested in 1-to-1 training",
		Services:  "Personal Training, Nutrition",
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
