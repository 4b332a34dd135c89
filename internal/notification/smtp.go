package notification

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendFunc matches smtp.SendMail and is swapped out in tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     SendFunc
}

type SMTPOption func(*SMTPSender)

func WithSMTPAuth(username, password string) SMTPOption {
	return func(s *SMTPSender) { s.username, s.password = username, password }
}

func WithSendFunc(fn SendFunc) SMTPOption {
	return func(s *SMTPSender) {
		if fn != nil {
			s.send = fn
		}
	}
}

func NewSMTPSender(host string, port int, from string, opts ...SMTPOption) *SMTPSender {
	if port == 0 {
		port = 587
	}
	s := &SMTPSender{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.host == "" {
		return errors.New("smtp host is not configured")
	}
	if msg.To == "" {
		return errors.New("message has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := buildMIME(s.from, msg, time.Now())
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := s.host + ":" + strconv.Itoa(s.port)
	if err := s.send(addr, auth, s.from, []string{msg.To}, body); err != nil {
		return errors.Wrapf(err, "smtp send to %s", msg.To)
	}
	return nil
}

// buildMIME encodes msg as multipart/alternative with quoted-printable
// parts.
func buildMIME(from string, msg Message, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&out, "Message-ID: <%s@thermostat-alerts>\r\n", uuid.NewString())
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	fmt.Fprintf(&out, "\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
