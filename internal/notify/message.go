package notify

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindCustomer Kind = "customer"
	KindBusiness Kind = "business"
)

// Message is a rendered, provider-neutral email.
type Message struct {
	ID           string `json:"id"`
	SubmissionID int64  `json:"submissionId"`
	Kind         Kind   `json:"kind"`
	From         string `json:"from"`
	To           string `json:"to"`
	ReplyTo      string `json:"replyTo,omitempty"`
	Subject      string `json:"subject"`
	Body         string `json:"-"`
}

// DeliveryError is a failed hand-off to the email provider.
type DeliveryError struct {
	Provider string
	Kind     Kind
	To       string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery of %s message to %s failed: %v", e.Provider, e.Kind, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

var ErrQueueClosed = errors.New("delivery queue closed")

func deliveryErr(provider string, msg Message, err error) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Provider: provider, Kind: msg.Kind, To: msg.To, Err: err}
}
