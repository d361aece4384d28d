package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fitportal/internal/models"
)

type DispatcherConfig struct {
	SiteName       string
	From           string
	OpsNotifyEmail string
	SendTimeout    time.Duration
}

// Dispatcher renders and sends the two notifications for a submission.
type Dispatcher struct {
	provider Provider
	cfg      DispatcherConfig
	log      zerolog.Logger
}

func NewDispatcher(p Provider, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{provider: p, cfg: cfg, log: log}
}

func (d *Dispatcher) Provider() Provider { return d.provider }

func (d *Dispatcher) SendTimeout() time.Duration { return d.cfg.SendTimeout }

type Failure struct {
	Message Message
	Err     error
}

type DispatchResult struct {
	Sent     int
	Failed   int
	Failures []Failure
}

// Compose renders the customer acknowledgment and the business alert, in that order.
func (d *Dispatcher) Compose(sub models.ContactSubmission) ([]Message, error) {
	custSubject, custBody, err := Render(TemplateCustomerThankYou, d.cfg.SiteName, sub)
	if err != nil {
		return nil, err
	}
	bizSubject, bizBody, err := Render(TemplateBusinessNotification, d.cfg.SiteName, sub)
	if err != nil {
		return nil, err
	}
	return []Message{
		{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			Kind:         KindCustomer,
			From:         d.cfg.From,
			To:           sub.Email,
			Subject:      custSubject,
			Body:         custBody,
		},
		{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			Kind:         KindBusiness,
			From:         d.cfg.From,
			To:           d.cfg.OpsNotifyEmail,
			ReplyTo:      sub.Email,
			Subject:      bizSubject,
			Body:         bizBody,
		},
	}, nil
}

// Dispatch sends both messages concurrently. A failed send never stops the other one.
func (d *Dispatcher) Dispatch(ctx context.Context, sub models.ContactSubmission) DispatchResult {
	msgs, err := d.Compose(sub)
	if err != nil {
		d.log.Error().Err(err).Int64("submission_id", sub.ID).Msg("compose notifications")
		res := DispatchResult{Failed: 2}
		for _, kind := range []Kind{KindCustomer, KindBusiness} {
			res.Failures = append(res.Failures, Failure{Message: Message{SubmissionID: sub.ID, Kind: kind}, Err: err})
		}
		return res
	}
	return d.SendAll(ctx, msgs)
}

func (d *Dispatcher) SendAll(ctx context.Context, msgs []Message) DispatchResult {
	errs := make([]error, len(msgs))
	var wg sync.WaitGroup
	for i := range msgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.send(ctx, msgs[i])
		}(i)
	}
	wg.Wait()

	var res DispatchResult
	for i, err := range errs {
		if err == nil {
			res.Sent++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, Failure{Message: msgs[i], Err: err})
		d.log.Warn().Err(err).
			Int64("submission_id", msgs[i].SubmissionID).
			Str("kind", string(msgs[i].Kind)).
			Str("provider", d.provider.Name()).
			Msg("notification send failed")
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = deliveryErr(d.provider.Name(), msg, fmt.Errorf("provider panic: %v", r))
		}
	}()
	return deliveryErr(d.provider.Name(), msg, d.provider.Send(ctx, msg))
}
