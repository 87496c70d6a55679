package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service is the engine surface the HTTP API calls. *goEnroll.Engine
// satisfies it.
type Service interface {
	ScanEntry(ctx context.Context, qrPayload string) (*goEnroll.ScanResult, error)
	ResendCode(ctx context.Context, email string) (*goEnroll.ResendResult, error)
	VerifyCode(ctx context.Context, email, code string) (*goEnroll.StepResult, error)
	VerifyLegacyPassword(ctx context.Context, email, password string) (*goEnroll.StepResult, error)
	CompleteRegistration(ctx context.Context, email, newPassword, confirmPassword string) (*goEnroll.RegistrationResult, error)
	Login(ctx context.Context, username, password string, device goEnroll.DeviceInfo) (*goEnroll.TokenBundle, error)
	QuickLogin(ctx context.Context, accountID string, device goEnroll.DeviceInfo) (*goEnroll.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (*goEnroll.TokenBundle, error)
	ValidateAccess(ctx context.Context, accessToken string) (*goEnroll.Principal, error)
	Logout(ctx context.Context, accountID, sessionID string) (*goEnroll.LogoutResult, error)
	RecoverSession(ctx context.Context, email string) (*goEnroll.RecoverResult, error)
	SavedAccounts(ctx context.Context, deviceID string) ([]goEnroll.SavedAccountView, error)
	DevicesForAccount(ctx context.Context, accountID string) ([]goEnroll.SavedAccount, error)
	RemoveSavedAccount(ctx context.Context, accountID, deviceID string) (bool, error)
	ClearDevice(ctx context.Context, deviceID string) (int, error)
	UpdateDeviceSettings(ctx context.Context, accountID, deviceID string, settings goEnroll.DeviceSettings) (bool, error)
	Ping(ctx context.Context) error
}

// Config controls the router.
type Config struct {
	// AllowedOrigins feeds the CORS handler. Empty allows any origin.
	AllowedOrigins []string
	// RequestsPerSecond and Burst size the per-client token bucket. Zero
	// RequestsPerSecond disables throttling.
	RequestsPerSecond float64
	Burst             int
	// RequestTimeout bounds each request. Zero means 15s.
	RequestTimeout time.Duration
	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

// Server holds the handlers.
type Server struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New builds the router. A nil logger means slog.Default().
func New(svc Service, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger}
	s.router = s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestID)
	if s.cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.RequestTimeout))
	r.Use(middleware.ClientMetadata)
	if s.cfg.RequestsPerSecond > 0 {
		r.Use(newThrottle(s.cfg.RequestsPerSecond, s.cfg.Burst).middleware)
	}

	r.Get("/healthz", s.healthz)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/scan-entry", s.scanEntry)
		r.Post("/resend-code", s.resendCode)
		r.Post("/verify-code", s.verifyCode)
		r.Post("/verify-legacy-password", s.verifyLegacyPassword)
		r.Post("/complete-registration", s.completeRegistration)
		r.Post("/login", s.login)
		r.Post("/quick-login", s.quickLogin)
		r.Post("/refresh", s.refresh)
		r.Post("/recover-session", s.recoverSession)
		r.Get("/saved-accounts", s.savedAccounts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.svc))
			r.Post("/logout", s.logout)
			r.Delete("/saved-accounts", s.removeSavedAccount)
			r.Get("/devices", s.devices)
			r.Post("/devices/clear", s.clearDevice)
			r.Post("/devices/settings", s.updateDeviceSettings)
		})
	})

	return r
}
