package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDispatcher(p Provider) *Dispatcher {
	return NewDispatcher(p, DispatcherConfig{
		SiteName:       "Peak Fitness",
		From:           "no-reply@peak.example",
		OpsNotifyEmail: "ops@peak.example",
		SendTimeout:    time.Second,
	}, zerolog.Nop())
}

func TestDispatchSendsBothMessages(t *testing.T) {
	p := &fakeProvider{}
	res := newTestDispatcher(p).Dispatch(context.Background(), sampleSubmission())
	if res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("expected 2 sent, got %+v", res)
	}
	calls := p.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 sends, got %d", len(calls))
	}
	var customer, business *Message
	for i := range calls {
		switch calls[i].Kind {
		case KindCustomer:
			customer = &calls[i]
		case KindBusiness:
			business = &calls[i]
		}
	}
	if customer == nil || business == nil {
		t.Fatalf("expected one customer and one business message, got %#v", calls)
	}
	if customer.To != "sarah@example.com" || customer.ReplyTo != "" {
		t.Fatalf("unexpected customer message: %#v", customer)
	}
	if business.To != "ops@peak.example" || business.ReplyTo != "sarah@example.com" {
		t.Fatalf("unexpected business message: %#v", business)
	}
}

func TestDispatchPartialFailureStillAttemptsBoth(t *testing.T) {
	p := &fakeProvider{failKind: map[Kind]bool{KindCustomer: true}}
	res := newTestDispatcher(p).Dispatch(context.Background(), sampleSubmission())
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("expected 1 sent 1 failed, got %+v", res)
	}
	if len(p.snapshot()) != 2 {
		t.Fatalf("expected both sends to be attempted")
	}
	if len(res.Failures) != 1 || res.Failures[0].Message.Kind != KindCustomer {
		t.Fatalf("unexpected failures: %#v", res.Failures)
	}
	var de *DeliveryError
	if !errors.As(res.Failures[0].Err, &de) || de.Provider != "fake" {
		t.Fatalf("expected DeliveryError, got %v", res.Failures[0].Err)
	}
}

func TestDispatchTotalFailure(t *testing.T) {
	p := &fakeProvider{failAll: true}
	res := newTestDispatcher(p).Dispatch(context.Background(), sampleSubmission())
	if res.Sent != 0 || res.Failed != 2 {
		t.Fatalf("expected 2 failed, got %+v", res)
	}
	if len(p.snapshot()) != 2 {
		t.Fatalf("expected both sends to be attempted")
	}
}

type panicProvider struct{}

func (panicProvider) Name() string { return "panic" }
func (panicProvider) Send(context.Context, Message) error {
	panic("boom")
}

func TestDispatchRecoversProviderPanic(t *testing.T) {
	res := newTestDispatcher(panicProvider{}).Dispatch(context.Background(), sampleSubmission())
	if res.Failed != 2 {
		t.Fatalf("expected panics to count as failures, got %+v", res)
	}
}
