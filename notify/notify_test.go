package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent   []Message
	err    error
	closed bool
}

func (r *recordingTransport) Send(ctx context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Close() { r.closed = true }

func TestSMTPNotifierRendersCode(t *testing.T) {
	tr := &recordingTransport{}
	n, err := NewSMTPNotifier(tr, MailConfig{From: "noreply@example.com"})
	require.NoError(t, err)

	require.NoError(t, n.SendCode(context.Background(), "a@x.com", "123456", "<Ann>"))
	require.Len(t, tr.sent, 1)

	msg := tr.sent[0]
	assert.Equal(t, []string{"a@x.com"}, msg.To)
	assert.Equal(t, defaultSubject, msg.Subject)
	assert.Contains(t, string(msg.HTML), "<strong>123456</strong>")
	assert.Contains(t, string(msg.HTML), "&lt;Ann&gt;")
	assert.Contains(t, string(msg.Text), "123456")

	n.Close()
	assert.True(t, tr.closed)
}

func TestSMTPNotifierWrapsTransportError(t *testing.T) {
	down := errors.New("421 service not available")
	n, err := NewSMTPNotifier(&recordingTransport{err: down}, MailConfig{From: "noreply@example.com", Subject: "Code"})
	require.NoError(t, err)

	err = n.SendCode(context.Background(), "a@x.com", "123456", "")
	assert.ErrorIs(t, err, down)
}

func TestNewSMTPNotifierValidation(t *testing.T) {
	_, err := NewSMTPNotifier(nil, MailConfig{From: "x@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPNotifier(&recordingTransport{}, MailConfig{})
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.SendCode(context.Background(), "a@x.com", "654321", "Ann"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "654321", entry["code"])
	assert.Equal(t, "a@x.com", entry["email"])
}

func TestMessageConversion(t *testing.T) {
	msg := Message{From: "f@x.com", To: []string{"t@x.com"}, Subject: "s", Text: []byte("t"), HTML: []byte("h")}

	pe := toPoolEmail(msg)
	assert.Equal(t, msg.To, pe.To)
	assert.Equal(t, msg.HTML, pe.HTML)

	e := toEmail(msg)
	assert.Equal(t, msg.From, e.From)
	assert.Equal(t, msg.Text, e.Text)
}

func TestServerConfig(t *testing.T) {
	var s ServerConfig
	assert.Error(t, s.validate())

	s = ServerConfig{Host: "smtp.example.com", Port: "587"}
	require.NoError(t, s.validate())
	assert.Equal(t, "smtp.example.com:587", s.Address())
	assert.Nil(t, s.auth())
	assert.Equal(t, 1, s.connections())
	assert.Equal(t, 10*time.Second, s.timeout())

	s.AuthData.Username = "user"
	assert.NotNil(t, s.auth())

	_, err := NewTransport(MailConfig{Transport: "carrier-pigeon", Server: s})
	assert.Error(t, err)
}

func TestReadMailConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: emailpool
from: noreply@example.com
server:
  host: smtp.example.com
  port: "2525"
  connections: 4
  auth:
    user: mailer
    password: secret
  sendTimeout: 3
`), 0o600))

	cfg, err := ReadMailConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "emailpool", cfg.Transport)
	assert.Equal(t, 4, cfg.Server.Connections)
	assert.Equal(t, "mailer", cfg.Server.AuthData.Username)
	assert.Equal(t, 3*time.Second, cfg.Server.timeout())
}
