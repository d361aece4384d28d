package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fitportal/internal/config"
)

// Provider hands a rendered message to an external delivery service.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

func NewProvider(cfg config.Config, log zerolog.Logger) Provider {
	switch cfg.EmailProvider {
	case "smtp":
		return &SMTPProvider{
			host:               cfg.SMTPHost,
			port:               cfg.SMTPPort,
			implicitTLS:        cfg.SMTPTLS,
			startTLS:           cfg.SMTPStartTLS,
			insecureSkipVerify: cfg.SMTPInsecureSkipVerify,
			username:           cfg.SMTPUsername,
			password:           cfg.SMTPPassword,
		}
	case "http":
		return &HTTPProvider{
			endpoint: cfg.EmailAPIURL,
			apiKey:   cfg.EmailAPIKey,
			client:   &http.Client{Timeout: cfg.EmailSendTimeout()},
		}
	default:
		return LogProvider{log: log}
	}
}

// LogProvider only logs messages. Useful for local development.
type LogProvider struct {
	log zerolog.Logger
}

func NewLogProvider(log zerolog.Logger) LogProvider { return LogProvider{log: log} }

func (LogProvider) Name() string { return "log" }

func (p LogProvider) Send(ctx context.Context, msg Message) error {
	p.log.Info().
		Str("message_id", msg.ID).
		Int64("submission_id", msg.SubmissionID).
		Str("kind", string(msg.Kind)).
		Str("to", msg.To).
		Str("reply_to", msg.ReplyTo).
		Str("subject", msg.Subject).
		Msg("email (log provider)")
	return nil
}

// HTTPProvider posts messages to a transactional email API using bearer auth.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (*HTTPProvider) Name() string { return "http" }

type httpSendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (p *HTTPProvider) Send(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(httpSendRequest{From: msg.From, To: msg.To, ReplyTo: msg.ReplyTo, Subject: msg.Subject, Text: msg.Body})
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return deliveryErr(p.Name(), msg, fmt.Errorf("provider HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
