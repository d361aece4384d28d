package notify

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// BuildMIME renders msg as a single-part text/plain RFC 5322 message.
func BuildMIME(msg Message, now time.Time) ([]byte, error) {
	from, err := parseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := parseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	if msg.ReplyTo != "" {
		replyTo, err := parseAddress(msg.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply-to: %w", err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{replyTo})
	}
	h.SetSubject(msg.Subject)
	if msg.ID != "" {
		h.SetMessageID(msg.ID + "@" + domainOf(from.Address))
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseAddress(v string) (*mail.Address, error) {
	a, err := netmail.ParseAddress(v)
	if err != nil {
		return nil, err
	}
	return (*mail.Address)(a), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
