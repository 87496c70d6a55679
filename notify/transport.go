package notify

import (
	"context"
	"fmt"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"github.com/knadh/smtppool"
)

// Message is one outgoing email.
type Message struct {
	From    string
	Sender  string
	To      []string
	Subject string
	Text    []byte
	HTML    []byte
}

// Transport delivers a Message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close()
}

// NewTransport builds the transport named by cfg.Transport.
func NewTransport(cfg MailConfig) (Transport, error) {
	switch cfg.Transport {
	case "", "smtppool":
		return NewSMTPPoolTransport(cfg.Server)
	case "emailpool":
		return NewEmailPoolTransport(cfg.Server)
	default:
		return nil, fmt.Errorf("notify: unknown transport %q", cfg.Transport)
	}
}

// SMTPPoolTransport sends through a knadh/smtppool connection pool.
type SMTPPoolTransport struct {
	pool *smtppool.Pool
}

// NewSMTPPoolTransport opens a pool for server.
func NewSMTPPoolTransport(server ServerConfig) (*SMTPPoolTransport, error) {
	if err := server.validate(); err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(server.Port)

	pool, err := smtppool.New(smtppool.Opt{
		Host:            server.Host,
		Port:            port,
		MaxConns:        server.connections(),
		IdleTimeout:     server.timeout(),
		PoolWaitTimeout: server.timeout(),
		TLSConfig:       server.tlsConfig(),
		Auth:            server.auth(),
	})
	if err != nil {
		return nil, fmt.Errorf("notify: smtp pool: %w", err)
	}
	return &SMTPPoolTransport{pool: pool}, nil
}

// Send implements Transport.
func (t *SMTPPoolTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.pool.Send(toPoolEmail(msg))
}

// Close implements Transport.
func (t *SMTPPoolTransport) Close() {
	t.pool.Close()
}

func toPoolEmail(msg Message) smtppool.Email {
	return smtppool.Email{
		From:    msg.From,
		Sender:  msg.Sender,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		Headers: textproto.MIMEHeader{},
	}
}

// EmailPoolTransport sends through a jordan-wright/email pool.
type EmailPoolTransport struct {
	pool   *email.Pool
	server ServerConfig
}

// NewEmailPoolTransport opens a pool for server.
func NewEmailPoolTransport(server ServerConfig) (*EmailPoolTransport, error) {
	if err := server.validate(); err != nil {
		return nil, err
	}
	pool, err := email.NewPool(server.Address(), server.connections(), server.auth(), server.tlsConfig())
	if err != nil {
		return nil, fmt.Errorf("notify: email pool: %w", err)
	}
	return &EmailPoolTransport{pool: pool, server: server}, nil
}

// Send implements Transport. The pool wait is bounded by the server send
// timeout or the context deadline, whichever is sooner.
func (t *EmailPoolTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := t.server.timeout()
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	return t.pool.Send(toEmail(msg), timeout)
}

// Close implements Transport.
func (t *EmailPoolTransport) Close() {
	t.pool.Close()
}

func toEmail(msg Message) *email.Email {
	return &email.Email{
		From:    msg.From,
		Sender:  msg.Sender,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		Headers: textproto.MIMEHeader{},
	}
}
