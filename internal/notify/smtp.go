package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const defaultDialTimeout = 10 * time.Second

type SMTPProvider struct {
	host               string
	port               int
	implicitTLS        bool
	startTLS           bool
	insecureSkipVerify bool
	username           string
	password           string
}

func (*SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	raw, err := BuildMIME(msg, time.Now())
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	from, err := parseAddress(msg.From)
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	to, err := parseAddress(msg.To)
	if err != nil {
		return deliveryErr(p.Name(), msg, err)
	}
	return deliveryErr(p.Name(), msg, p.send(ctx, from.Address, to.Address, raw))
}

func (p *SMTPProvider) send(ctx context.Context, from, rcpt string, raw []byte) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if p.username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("SMTP server does not offer AUTH")
		}
		if err := client.Auth(smtp.PlainAuth("", p.username, p.password, p.host)); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(rcpt); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// dial connects and negotiates TLS. The context deadline bounds the whole session.
func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	tlsConfig := &tls.Config{ServerName: p.host, InsecureSkipVerify: p.insecureSkipVerify}

	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if p.implicitTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if p.startTLS && !p.implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS extension not available")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// Probe opens and closes an SMTP session without sending anything.
func (p *SMTPProvider) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}
