package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// SubmissionEvent is published after a contact submission has been handled.
type SubmissionEvent struct {
	SubmissionID int64     `json:"submissionId"`
	Email        string    `json:"email"`
	Services     string    `json:"services"`
	Recorded     bool      `json:"recorded"`
	EmailsSent   int       `json:"emailsSent"`
	EmailsFailed int       `json:"emailsFailed"`
	OccurredAt   time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishSubmission(ctx context.Context, ev SubmissionEvent) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSubmission(context.Context, SubmissionEvent) error { return nil }
func (NoopPublisher) Close() error                                             { return nil }

// ErrUnavailable is returned without dialling while a failed broker is backing off.
var ErrUnavailable = errors.New("amqp broker unavailable")

const (
	defaultDialTimeout = 5 * time.Second
	defaultRedialDelay = 30 * time.Second
)

// AMQPPublisher writes persistent JSON messages to a durable queue on the default exchange.
type AMQPPublisher struct {
	url         string
	queue       string
	log         zerolog.Logger
	dialTimeout time.Duration
	redialDelay time.Duration
	now         func() time.Time

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
}

func NewAMQPPublisher(url, queue string, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:         url,
		queue:       queue,
		log:         log,
		dialTimeout: defaultDialTimeout,
		redialDelay: defaultRedialDelay,
		now:         time.Now,
	}
}

// channelLocked returns the open channel, redialling if the broker dropped us.
// The dial and handshake are bounded by ctx's deadline.
func (p *AMQPPublisher) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	if p.now().Before(p.downUntil) {
		return nil, ErrUnavailable
	}
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("amqp dial: %w", context.DeadlineExceeded)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		p.downUntil = p.now().Add(p.redialDelay)
		p.log.Warn().Err(err).Dur("retry_in", p.redialDelay).Msg("amqp broker unreachable")
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) PublishSubmission(ctx context.Context, ev SubmissionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	p.log.Debug().Int64("submission_id", ev.SubmissionID).Str("queue", p.queue).Msg("submission event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
