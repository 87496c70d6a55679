package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

const defaultSubject = "Your verification code"

const codeTemplate = `<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Your verification code is <strong>{{.Code}}</strong>.</p>
<p>It expires shortly. If you did not scan an enrollment code, ignore this email.</p>`

// SMTPNotifier implements goEnroll.Notifier over a Transport.
type SMTPNotifier struct {
	transport Transport
	from      string
	sender    string
	subject   string
	tmpl      *template.Template
}

// NewSMTPNotifier returns a notifier sending from cfg.From through t.
func NewSMTPNotifier(t Transport, cfg MailConfig) (*SMTPNotifier, error) {
	if t == nil {
		return nil, errors.New("notify: transport is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notify: from address is required")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	tmpl, err := template.New("verification-code").Parse(codeTemplate)
	if err != nil {
		return nil, err
	}
	return &SMTPNotifier{
		transport: t,
		from:      cfg.From,
		sender:    cfg.Sender,
		subject:   subject,
		tmpl:      tmpl,
	}, nil
}

// SendCode implements goEnroll.Notifier.
func (n *SMTPNotifier) SendCode(ctx context.Context, email, code, name string) error {
	var html bytes.Buffer
	if err := n.tmpl.Execute(&html, map[string]string{"Code": code, "Name": name}); err != nil {
		return fmt.Errorf("notify: render code email: %w", err)
	}
	text := fmt.Sprintf("Your verification code is %s.", code)

	err := n.transport.Send(ctx, Message{
		From:    n.from,
		Sender:  n.sender,
		To:      []string{email},
		Subject: n.subject,
		Text:    []byte(text),
		HTML:    html.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("notify: send code: %w", err)
	}
	return nil
}

// Close releases the transport.
func (n *SMTPNotifier) Close() {
	n.transport.Close()
}

// LogNotifier logs verification codes instead of sending them. It is meant
// for development only.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to logger, or slog.Default()
// when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendCode implements goEnroll.Notifier.
func (n *LogNotifier) SendCode(ctx context.Context, email, code, name string) error {
	n.logger.InfoContext(ctx, "goEnroll: verification code",
		slog.String("email", email),
		slog.String("name", name),
		slog.String("code", code),
	)
	return nil
}
