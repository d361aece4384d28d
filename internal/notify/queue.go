package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSent    ItemStatus = "sent"
	ItemFailed  ItemStatus = "failed"
)

const maxRetainedFailed = 500

type QueueItem struct {
	ID            string     `json:"id"`
	SubmissionID  int64      `json:"submissionId"`
	Kind          Kind       `json:"kind"`
	Destination   string     `json:"destination"`
	Message       Message    `json:"-"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"maxAttempts"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	Status        ItemStatus `json:"status"`
	LastError     string     `json:"lastError,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueuedAt"`

	dropped bool
}

type QueueSnapshot struct {
	Processing bool        `json:"processing"`
	Pending    []QueueItem `json:"pending"`
	Failed     []QueueItem `json:"failed"`
}

type QueueOptions struct {
	MaxAttempts int
	ItemDelay   time.Duration
	SendTimeout time.Duration
	Logger      zerolog.Logger

	// Test seams. Zero values use the real clock and timers.
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration)
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Backoff is the delay before the next attempt once attempts sends have failed.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 16 {
		attempts = 16
	}
	return time.Duration(1<<attempts) * time.Second
}

// Queue retries failed notification sends in memory with exponential backoff.
// At most one processing pass runs at a time. Items are lost on restart.
type Queue struct {
	provider Provider
	opts     QueueOptions
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	items      []*QueueItem
	processing bool
	closed     bool
	stopWake   func() bool
	onAttempt  func(QueueItem)
}

func NewQueue(p Provider, opts QueueOptions) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{provider: p, opts: opts, log: opts.Logger, ctx: ctx, cancel: cancel}
}

// OnAttempt registers a hook called after every send attempt with the item's updated state.
func (q *Queue) OnAttempt(fn func(QueueItem)) {
	q.mu.Lock()
	q.onAttempt = fn
	q.mu.Unlock()
}

// Enqueue adds msg as a pending item. Its first attempt is due after Backoff(0).
func (q *Queue) Enqueue(msg Message) (QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return QueueItem{}, ErrQueueClosed
	}
	now := q.opts.Now()
	it := &QueueItem{
		ID:            uuid.NewString(),
		SubmissionID:  msg.SubmissionID,
		Kind:          msg.Kind,
		Destination:   msg.To,
		Message:       msg,
		MaxAttempts:   q.opts.MaxAttempts,
		NextAttemptAt: now.Add(Backoff(0)),
		Status:        ItemPending,
		EnqueuedAt:    now,
	}
	q.items = append(q.items, it)
	q.startLocked()
	return *it, nil
}

func (q *Queue) Status() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := QueueSnapshot{Processing: q.processing, Pending: []QueueItem{}, Failed: []QueueItem{}}
	for _, it := range q.items {
		switch it.Status {
		case ItemPending:
			snap.Pending = append(snap.Pending, *it)
		case ItemFailed:
			snap.Failed = append(snap.Failed, *it)
		}
	}
	return snap
}

// DropSubmission removes every item, pending or failed, that belongs to submissionID.
// An item whose send is in flight finishes without reporting to the OnAttempt hook.
func (q *Queue) DropSubmission(submissionID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	dropped := 0
	for _, it := range q.items {
		if it.SubmissionID == submissionID {
			it.dropped = true
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return dropped
}

// Wait blocks until no processing pass is running.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops scheduling, cancels in-flight sends and waits for the current pass.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	if q.stopWake != nil {
		q.stopWake()
		q.stopWake = nil
	}
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) startLocked() {
	if q.processing || q.closed {
		return
	}
	q.processing = true
	q.wg.Add(1)
	go q.process()
}

func (q *Queue) wake() {
	q.mu.Lock()
	q.stopWake = nil
	q.startLocked()
	q.mu.Unlock()
}

func (q *Queue) process() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.closed {
			q.processing = false
			q.mu.Unlock()
			return
		}
		it := q.nextEligibleLocked(q.opts.Now())
		if it == nil {
			q.processing = false
			q.scheduleWakeLocked(q.opts.Now())
			q.mu.Unlock()
			return
		}
		msg := it.Message
		q.mu.Unlock()

		err := q.send(msg)

		q.mu.Lock()
		if it.dropped {
			q.mu.Unlock()
			continue
		}
		it.Attempts++
		if err == nil {
			it.Status = ItemSent
			it.LastError = ""
			q.removeLocked(it)
		} else {
			it.LastError = err.Error()
			if it.Attempts >= it.MaxAttempts {
				it.Status = ItemFailed
				q.trimFailedLocked()
			} else {
				it.NextAttemptAt = q.opts.Now().Add(Backoff(it.Attempts))
			}
		}
		snapshot := *it
		hook := q.onAttempt
		q.mu.Unlock()

		q.logAttempt(snapshot)
		if hook != nil {
			hook(snapshot)
		}
		q.opts.Sleep(q.ctx, q.opts.ItemDelay)
	}
}

// nextEligibleLocked returns the oldest pending item that is due.
func (q *Queue) nextEligibleLocked(now time.Time) *QueueItem {
	for _, it := range q.items {
		if it.Status == ItemPending && it.Attempts < it.MaxAttempts && !it.NextAttemptAt.After(now) {
			return it
		}
	}
	return nil
}

func (q *Queue) scheduleWakeLocked(now time.Time) {
	if q.stopWake != nil {
		q.stopWake()
		q.stopWake = nil
	}
	var earliest time.Time
	for _, it := range q.items {
		if it.Status != ItemPending {
			continue
		}
		if earliest.IsZero() || it.NextAttemptAt.Before(earliest) {
			earliest = it.NextAttemptAt
		}
	}
	if earliest.IsZero() {
		return
	}
	d := earliest.Sub(now)
	if d < 0 {
		d = 0
	}
	q.stopWake = q.opts.AfterFunc(d, q.wake)
}

func (q *Queue) removeLocked(target *QueueItem) {
	for i, it := range q.items {
		if it == target {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *Queue) trimFailedLocked() {
	failed := 0
	for _, it := range q.items {
		if it.Status == ItemFailed {
			failed++
		}
	}
	for i := 0; failed > maxRetainedFailed && i < len(q.items); {
		if q.items[i].Status == ItemFailed {
			q.items = append(q.items[:i], q.items[i+1:]...)
			failed--
			continue
		}
		i++
	}
}

func (q *Queue) send(msg Message) (err error) {
	ctx, cancel := context.WithTimeout(q.ctx, q.opts.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = deliveryErr(q.provider.Name(), msg, fmt.Errorf("provider panic: %v", r))
		}
	}()
	return deliveryErr(q.provider.Name(), msg, q.provider.Send(ctx, msg))
}

func (q *Queue) logAttempt(it QueueItem) {
	ev := q.log.Info()
	switch it.Status {
	case ItemFailed:
		ev = q.log.Error()
	case ItemPending:
		ev = q.log.Warn().Time("next_attempt_at", it.NextAttemptAt)
	}
	ev.Str("item_id", it.ID).
		Int64("submission_id", it.SubmissionID).
		Str("kind", string(it.Kind)).
		Int("attempts", it.Attempts).
		Int("max_attempts", it.MaxAttempts).
		Str("status", string(it.Status)).
		Str("last_error", it.LastError).
		Msg("delivery queue attempt")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
