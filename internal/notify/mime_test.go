package notify

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func TestBuildMIMESetsReplyTo(t *testing.T) {
	msg := Message{
		ID:      "abc123",
		Kind:    KindBusiness,
		From:    "Peak Fitness <no-reply@peak.example>",
		To:      "ops@peak.example",
		ReplyTo: "sarah@example.com",
		Subject: "New enquiry from Sarah Johnson",
		Body:    "Hello there",
	}
	raw, err := BuildMIME(msg, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	replyTo, err := mr.Header.AddressList("Reply-To")
	if err != nil || len(replyTo) != 1 || replyTo[0].Address != "sarah@example.com" {
		t.Fatalf("unexpected Reply-To: %v %v", replyTo, err)
	}
	subject, _ := mr.Header.Subject()
	if subject != msg.Subject {
		t.Fatalf("unexpected subject %q", subject)
	}
	id, _ := mr.Header.MessageID()
	if id != "abc123@peak.example" {
		t.Fatalf("unexpected message id %q", id)
	}
	p, err := mr.NextPart()
	if err != nil {
		t.Fatalf("next part: %v", err)
	}
	body, _ := io.ReadAll(p.Body)
	if strings.TrimSpace(string(body)) != "Hello there" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestBuildMIMEWithoutReplyTo(t *testing.T) {
	raw, err := BuildMIME(Message{From: "a@example.com", To: "b@example.com", Subject: "s", Body: "b"}, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if bytes.Contains(raw, []byte("Reply-To")) {
		t.Fatalf("did not expect Reply-To header:\n%s", raw)
	}
	if _, err := BuildMIME(Message{From: "not an address", To: "b@example.com"}, time.Now()); err == nil {
		t.Fatalf("expected invalid from address to fail")
	}
}
