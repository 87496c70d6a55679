package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
)

const (
	validatePath = "/tokens/validate"
	passwordPath = "/passwords/verify"

	maxResponseBytes = 1 << 20
)

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds every call. Zero means 5s.
	Timeout time.Duration
	// Client overrides the HTTP client, e.g. for mTLS transports.
	Client *http.Client
}

// HTTPGateway calls the legacy identity service over JSON/HTTP.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway validates cfg and returns a gateway.
func NewHTTPGateway(cfg HTTPConfig) (*HTTPGateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base url is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPGateway{baseURL: base, apiKey: cfg.APIKey, client: client}, nil
}

type validateRequest struct {
	Token string `json:"token"`
}

type identityResponse struct {
	Ref      string `json:"ref"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Active   bool   `json:"active"`
}

type passwordRequest struct {
	Ref      string `json:"ref"`
	Password string `json:"password"`
}

type passwordResponse struct {
	Valid bool `json:"valid"`
}

// ValidateToken implements goEnroll.IdentityGateway. 401, 404 and 410
// responses mean the token is unknown or expired.
func (g *HTTPGateway) ValidateToken(ctx context.Context, token string) (goEnroll.Identity, error) {
	var out identityResponse
	status, err := g.post(ctx, validatePath, validateRequest{Token: token}, &out)
	if err != nil {
		return goEnroll.Identity{}, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusGone:
		return goEnroll.Identity{}, goEnroll.ErrInvalidOrExpiredToken
	default:
		return goEnroll.Identity{}, unexpectedStatus(status)
	}

	return goEnroll.Identity{
		Ref:      goEnroll.CanonicalRef(out.Ref),
		Username: strings.TrimSpace(out.Username),
		Email:    goEnroll.NormalizeEmail(out.Email),
		Name:     out.Name,
		Phone:    out.Phone,
		Active:   out.Active,
	}, nil
}

// VerifyPassword implements goEnroll.IdentityGateway. A 401 or 404 is a
// failed check, not an outage.
func (g *HTTPGateway) VerifyPassword(ctx context.Context, ref, password string) (bool, error) {
	var out passwordResponse
	status, err := g.post(ctx, passwordPath, passwordRequest{Ref: goEnroll.CanonicalRef(ref), Password: password}, &out)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return out.Valid, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus(status)
	}
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", goEnroll.ErrIdentityUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Api-Key", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", goEnroll.ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", goEnroll.ErrIdentityUnavailable, err)
	}
	return resp.StatusCode, nil
}

func unexpectedStatus(status int) error {
	return fmt.Errorf("%w: unexpected status %d", goEnroll.ErrIdentityUnavailable, status)
}
