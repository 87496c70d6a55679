package goEnroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/gateway"
	"github.com/MrEthical07/goEnroll/store/memory"
)

const (
	testToken       = "qr-token-0042"
	testRef         = "emp-0042"
	testUsername    = "jdoe"
	testEmail       = "jdoe@example.com"
	testLegacyPass  = "legacy-pass-1"
	testNewPassword = "new-password-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	err   error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: make(map[string]string)}
}

func (n *recordingNotifier) SendCode(ctx context.Context, email, code, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	if n.err != nil {
		return n.err
	}
	n.codes[email] = code
	return nil
}

func (n *recordingNotifier) code(t testing.TB, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	code, ok := n.codes[email]
	if !ok {
		t.Fatalf("no code sent to %s", email)
	}
	return code
}

type harness struct {
	engine   *goEnroll.Engine
	clock    *fakeClock
	gateway  *gateway.StaticGateway
	accounts *memory.AccountStore
	devices  *memory.DeviceRegistry
	notifier *recordingNotifier
	audit    *goEnroll.ChannelSink
	redis    *miniredis.Miniredis
}

func testConfig() goEnroll.Config {
	cfg := goEnroll.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 4
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 512
	cfg.Audit.DropIfFull = false
	return cfg
}

func newHarness(t testing.TB, mutate func(*goEnroll.Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		clock:    newFakeClock(),
		gateway:  gateway.NewStaticGateway(),
		accounts: memory.NewAccountStore(),
		devices:  memory.NewDeviceRegistry(),
		notifier: newRecordingNotifier(),
		audit:    goEnroll.NewChannelSink(512),
		redis:    mr,
	}
	h.gateway.Add(testToken, goEnroll.Identity{
		Ref:      testRef,
		Username: testUsername,
		Email:    "JDoe@Example.com",
		Name:     "Jane Doe",
		Active:   true,
	}, testLegacyPass)

	engine, err := goEnroll.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(h.accounts).
		WithDeviceRegistry(h.devices).
		WithIdentityGateway(h.gateway).
		WithNotifier(h.notifier).
		WithClock(h.clock).
		WithAuditSink(h.audit).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// enroll runs the four enrollment steps for the seeded identity.
func (h *harness) enroll(t testing.TB) *goEnroll.RegistrationResult {
	t.Helper()
	ctx := context.Background()

	scan, err := h.engine.ScanEntry(ctx, testToken)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := h.engine.VerifyCode(ctx, scan.Email, h.notifier.code(t, scan.Email)); err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if _, err := h.engine.VerifyLegacyPassword(ctx, scan.Email, testLegacyPass); err != nil {
		t.Fatalf("verify legacy password: %v", err)
	}
	res, err := h.engine.CompleteRegistration(ctx, scan.Email, testNewPassword, testNewPassword)
	if err != nil {
		t.Fatalf("complete registration: %v", err)
	}
	return res
}

func (h *harness) login(t testing.TB, deviceID string) *goEnroll.TokenBundle {
	t.Helper()
	bundle, err := h.engine.Login(context.Background(), testUsername, testNewPassword, goEnroll.DeviceInfo{DeviceID: deviceID})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return bundle
}

func (h *harness) account(t *testing.T, id string) *goEnroll.Account {
	t.Helper()
	a, err := h.accounts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a
}

// drainAudit closes the engine and returns every delivered event.
func (h *harness) drainAudit() []goEnroll.AuditEvent {
	h.engine.Close()
	var out []goEnroll.AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func requireErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func requireHint(t *testing.T, err, kind error) *goEnroll.IdentityHintError {
	t.Helper()
	requireErr(t, err, kind)
	var hint *goEnroll.IdentityHintError
	if !errors.As(err, &hint) {
		t.Fatalf("expected IdentityHintError, got %T", err)
	}
	if hint.Username != testUsername || hint.Email != testEmail {
		t.Fatalf("unexpected hint %+v", hint)
	}
	return hint
}
