package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fitportal/internal/events"
	"fitportal/internal/models"
	"fitportal/internal/notify"
	"fitportal/internal/store"
)

const (
	noServices = "Not specified"

	eventPublishTimeout = 2 * time.Second
)

type ContactInput struct {
	Name      string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Message   string
	Services  []string
	SourceIP  string
}

type ContactResult struct {
	SubmissionID int64
	Recorded     bool
	EmailsSent   int
	EmailsFailed int
}

// SubmitContact records a contact form submission, then notifies the customer and the business.
// Recording failures are logged and do not stop the notifications.
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) (ContactResult, error) {
	sub, err := normalizeContact(in)
	if err != nil {
		return ContactResult{}, err
	}
	sub.CreatedAt = s.now()

	recorded := true
	stored, err := s.st.InsertSubmission(ctx, sub)
	if err != nil {
		recorded = false
		s.log.Error().Err(err).Str("email", sub.Email).Msg("record contact submission")
	} else {
		sub = stored
	}

	// Notifications outlive a client that disconnects mid-request.
	sendCtx := context.WithoutCancel(ctx)
	res := s.dispatcher.Dispatch(sendCtx, sub)
	if recorded {
		s.settleDispatch(sendCtx, sub, res)
	}
	s.enqueueFailures(res)

	out := ContactResult{SubmissionID: sub.ID, Recorded: recorded, EmailsSent: res.Sent, EmailsFailed: res.Failed}
	s.log.Info().
		Int64("submission_id", sub.ID).
		Bool("recorded", recorded).
		Int("emails_sent", res.Sent).
		Int("emails_failed", res.Failed).
		Msg("contact submission handled")

	pubCtx, cancel := context.WithTimeout(sendCtx, eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishSubmission(pubCtx, events.SubmissionEvent{
		SubmissionID: sub.ID,
		Email:        sub.Email,
		Services:     sub.Services,
		Recorded:     recorded,
		EmailsSent:   res.Sent,
		EmailsFailed: res.Failed,
		OccurredAt:   sub.CreatedAt,
	}); err != nil {
		s.log.Warn().Err(err).Int64("submission_id", sub.ID).Msg("publish submission event")
	}

	if !recorded && res.Sent == 0 {
		return out, ErrNotRecorded
	}
	return out, nil
}

func normalizeContact(in ContactInput) (models.ContactSubmission, error) {
	sub := models.ContactSubmission{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Message:   strings.TrimSpace(in.Message),
		Services:  joinServices(in.Services),
		SourceIP:  strings.TrimSpace(in.SourceIP),
	}
	if sub.Name == "" {
		sub.Name = strings.TrimSpace(sub.FirstName + " " + sub.LastName)
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		sub.Phone = &phone
	}

	v := &ValidationError{}
	if sub.Name == "" {
		v.add("name", "name is required")
	}
	checkEmail(v, "email", sub.Email)
	if sub.Message == "" {
		v.add("message", "message is required")
	}
	return sub, v.errOrNil()
}

func joinServices(in []string) string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return noServices
	}
	return strings.Join(out, ", ")
}

func (s *Service) enqueueFailures(res notify.DispatchResult) {
	if s.queue == nil {
		return
	}
	for _, f := range res.Failures {
		if f.Message.To == "" {
			continue
		}
		if _, err := s.queue.Enqueue(f.Message); err != nil {
			s.log.Error().Err(err).Int64("submission_id", f.Message.SubmissionID).Str("kind", string(f.Message.Kind)).Msg("enqueue retry")
		}
	}
}

// settleDispatch stores the outcome of a full two-message dispatch on the submission row.
func (s *Service) settleDispatch(ctx context.Context, sub models.ContactSubmission, res notify.DispatchResult) {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	d := models.Delivery{
		EmailsSent:   res.Sent,
		EmailsFailed: res.Failed,
		Attempts:     sub.Delivery.Attempts + 1,
	}
	switch {
	case res.Failed == 0:
		d.Status = models.DeliverySent
		now := s.now()
		d.DeliveredAt = &now
	case s.queue == nil:
		// Nothing will retry the failures.
		d.Status = models.DeliveryFailed
	case res.Sent == 0:
		d.Status = models.DeliveryPending
	default:
		d.Status = models.DeliveryPartial
	}
	if len(res.Failures) > 0 {
		msg := res.Failures[0].Err.Error()
		d.LastError = &msg
	}
	if err := s.st.UpdateSubmissionDelivery(ctx, sub.ID, d); err != nil {
		s.log.Error().Err(err).Int64("submission_id", sub.ID).Msg("update delivery status")
	}
}

// recordQueueAttempt folds a retry outcome into the submission's delivery columns.
func (s *Service) recordQueueAttempt(it notify.QueueItem) {
	if it.SubmissionID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	sub, err := s.st.GetSubmission(ctx, it.SubmissionID)
	if err != nil {
		s.log.Error().Err(err).Int64("submission_id", it.SubmissionID).Msg("load submission for retry outcome")
		return
	}
	d := sub.Delivery
	d.Attempts++
	switch it.Status {
	case notify.ItemSent:
		d.EmailsSent++
		if d.EmailsFailed > 0 {
			d.EmailsFailed--
		}
		if d.EmailsFailed == 0 {
			d.Status = models.DeliverySent
			d.LastError = nil
			now := s.now()
			d.DeliveredAt = &now
		} else if d.Status != models.DeliveryFailed {
			d.Status = models.DeliveryPartial
		}
	case notify.ItemFailed:
		d.Status = models.DeliveryFailed
		d.LastError = &it.LastError
	default:
		d.LastError = &it.LastError
	}
	if err := s.st.UpdateSubmissionDelivery(ctx, sub.ID, d); err != nil {
		s.log.Error().Err(err).Int64("submission_id", sub.ID).Msg("update delivery status")
	}
}

// ListSubmissions returns recent submissions. limit defaults to 50 (1..200), sinceDays to 30 (1..365).
func (s *Service) ListSubmissions(ctx context.Context, limit, sinceDays int) ([]models.ContactSubmission, error) {
	limit = clamp(limit, 50, 1, 200)
	sinceDays = clamp(sinceDays, 30, 1, 365)
	return s.st.ListSubmissions(ctx, models.SubmissionQuery{
		Since: s.now().AddDate(0, 0, -sinceDays),
		Limit: limit,
	})
}

func (s *Service) SubmissionDetail(ctx context.Context, id int64) (models.ContactSubmission, error) {
	sub, err := s.st.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.ContactSubmission{}, ErrNotFound
	}
	return sub, err
}

// ResendSubmission dispatches both notifications again for a stored submission.
// Queued retries for the submission are discarded first; failures of the resend are queued afresh.
func (s *Service) ResendSubmission(ctx context.Context, id int64) (notify.DispatchResult, error) {
	sub, err := s.SubmissionDetail(ctx, id)
	if err != nil {
		return notify.DispatchResult{}, err
	}
	dropped := 0
	if s.queue != nil {
		dropped = s.queue.DropSubmission(id)
	}
	res := s.dispatcher.Dispatch(ctx, sub)
	s.settleDispatch(ctx, sub, res)
	s.enqueueFailures(res)
	s.log.Info().
		Int64("submission_id", id).
		Int("dropped_retries", dropped).
		Int("emails_sent", res.Sent).
		Int("emails_failed", res.Failed).
		Msg("submission resent")
	return res, nil
}

func (s *Service) QueueStatus() notify.QueueSnapshot {
	if s.queue == nil {
		return notify.QueueSnapshot{Pending: []notify.QueueItem{}, Failed: []notify.QueueItem{}}
	}
	return s.queue.Status()
}
