package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestQueue(p Provider, clock *fakeClock, timers *fakeTimers) *Queue {
	return NewQueue(p, QueueOptions{
		MaxAttempts: 3,
		Now:         clock.Now,
		Sleep:       func(context.Context, time.Duration) {},
		AfterFunc:   timers.AfterFunc,
	})
}

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{0: time.Second, 1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second}
	for attempts, want := range cases {
		if got := Backoff(attempts); got != want {
			t.Fatalf("Backoff(%d)=%s want %s", attempts, got, want)
		}
	}
}

func TestQueueGivesUpAfterMaxAttempts(t *testing.T) {
	p := &fakeProvider{failAll: true}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	timers := &fakeTimers{}
	q := newTestQueue(p, clock, timers)
	defer q.Close()

	var mu sync.Mutex
	var seen []QueueItem
	q.OnAttempt(func(it QueueItem) {
		mu.Lock()
		seen = append(seen, it)
		mu.Unlock()
	})

	if _, err := q.Enqueue(Message{SubmissionID: 7, Kind: KindCustomer, To: "sarah@example.com"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Wait()
	if n := len(p.snapshot()); n != 0 {
		t.Fatalf("first retry must wait for Backoff(0), got %d sends", n)
	}

	clock.Advance(time.Second)
	timers.fire()
	q.Wait()

	clock.Advance(2 * time.Second)
	timers.fire()
	q.Wait()

	clock.Advance(4 * time.Second)
	timers.fire()
	q.Wait()

	if n := len(p.snapshot()); n != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", n)
	}
	delays := timers.snapshot()
	if len(delays) != 3 || delays[0] != time.Second || delays[1] != 2*time.Second || delays[2] != 4*time.Second {
		t.Fatalf("unexpected wake delays: %v", delays)
	}

	snap := q.Status()
	if len(snap.Pending) != 0 || len(snap.Failed) != 1 {
		t.Fatalf("expected one failed item, got %+v", snap)
	}
	if snap.Failed[0].Attempts != 3 || snap.Failed[0].LastError == "" {
		t.Fatalf("unexpected failed item: %+v", snap.Failed[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[2].Status != ItemFailed || seen[0].Status != ItemPending {
		t.Fatalf("unexpected attempt hook calls: %+v", seen)
	}

	// Nothing left to schedule, firing again must not send.
	timers.fire()
	q.Wait()
	if n := len(p.snapshot()); n != 3 {
		t.Fatalf("expected no further attempts, got %d", n)
	}
}

func TestQueueRemovesItemOnSuccess(t *testing.T) {
	p := &fakeProvider{failN: 1}
	clock := &fakeClock{t: time.Now()}
	timers := &fakeTimers{}
	q := newTestQueue(p, clock, timers)
	defer q.Close()

	var last QueueItem
	q.OnAttempt(func(it QueueItem) { last = it })

	if _, err := q.Enqueue(Message{SubmissionID: 1, Kind: KindBusiness, To: "ops@example.com"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Wait()
	clock.Advance(time.Second)
	timers.fire()
	q.Wait()
	if snap := q.Status(); len(snap.Pending) != 1 || snap.Pending[0].Attempts != 1 {
		t.Fatalf("expected one pending item after first failure, got %+v", snap)
	}

	// Not yet due: a premature wake must not send.
	timers.fire()
	q.Wait()
	if n := len(p.snapshot()); n != 1 {
		t.Fatalf("expected no early retry, got %d sends", n)
	}

	clock.Advance(2 * time.Second)
	timers.fire()
	q.Wait()

	if n := len(p.snapshot()); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	snap := q.Status()
	if len(snap.Pending) != 0 || len(snap.Failed) != 0 || snap.Processing {
		t.Fatalf("expected empty idle queue, got %+v", snap)
	}
	if last.Status != ItemSent || last.Attempts != 2 {
		t.Fatalf("unexpected final hook state: %+v", last)
	}
}

type gatedProvider struct {
	gate    chan struct{}
	mu      sync.Mutex
	active  int
	maxSeen int
	calls   int
}

func (*gatedProvider) Name() string { return "gated" }

func (p *gatedProvider) Send(ctx context.Context, msg Message) error {
	p.mu.Lock()
	p.active++
	p.calls++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	p.mu.Unlock()
	<-p.gate
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return nil
}

func TestQueueSingleFlight(t *testing.T) {
	p := &gatedProvider{gate: make(chan struct{})}
	clock := &fakeClock{t: time.Now()}
	timers := &fakeTimers{}
	q := newTestQueue(p, clock, timers)
	defer q.Close()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(Message{SubmissionID: int64(i), Kind: KindCustomer, To: "a@example.com"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Wait()
	clock.Advance(time.Second)
	timers.fire()
	if !q.Status().Processing {
		t.Fatalf("expected a running pass")
	}
	// A pass is already running, so this must not start another one.
	if _, err := q.Enqueue(Message{SubmissionID: 3, Kind: KindCustomer, To: "a@example.com"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	close(p.gate)
	q.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls != 3 {
		t.Fatalf("expected 3 sends, got %d", p.calls)
	}
	if p.maxSeen != 1 {
		t.Fatalf("expected at most one concurrent send, saw %d", p.maxSeen)
	}
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	q := newTestQueue(&fakeProvider{}, &fakeClock{t: time.Now()}, &fakeTimers{})
	q.Close()
	_, err := q.Enqueue(Message{Kind: KindCustomer, To: "a@example.com"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueDropSubmission(t *testing.T) {
	p := &fakeProvider{}
	clock := &fakeClock{t: time.Now()}
	timers := &fakeTimers{}
	q := newTestQueue(p, clock, timers)
	defer q.Close()

	var mu sync.Mutex
	hooks := 0
	q.OnAttempt(func(QueueItem) {
		mu.Lock()
		hooks++
		mu.Unlock()
	})

	for _, m := range []Message{
		{SubmissionID: 5, Kind: KindCustomer, To: "sarah@example.com"},
		{SubmissionID: 5, Kind: KindBusiness, To: "ops@example.com"},
		{SubmissionID: 6, Kind: KindCustomer, To: "tom@example.com"},
	} {
		if _, err := q.Enqueue(m); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Wait()

	if n := q.DropSubmission(5); n != 2 {
		t.Fatalf("expected 2 dropped items, got %d", n)
	}
	if snap := q.Status(); len(snap.Pending) != 1 || snap.Pending[0].SubmissionID != 6 {
		t.Fatalf("unexpected queue after drop: %+v", snap)
	}

	clock.Advance(time.Second)
	timers.fire()
	q.Wait()

	sent := p.snapshot()
	if len(sent) != 1 || sent[0].SubmissionID != 6 {
		t.Fatalf("dropped items must not be sent: %+v", sent)
	}
	mu.Lock()
	defer mu.Unlock()
	if hooks != 1 {
		t.Fatalf("expected one hook call, got %d", hooks)
	}
}
