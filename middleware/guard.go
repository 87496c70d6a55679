package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	goEnroll "github.com/MrEthical07/goEnroll"
)

// Validator resolves an access token. *goEnroll.Engine implements it.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*goEnroll.Principal, error)
}

// Guard rejects requests without a valid bearer access token and stores
// the resolved principal in the request context (see
// goEnroll.PrincipalFromContext).
func Guard(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			principal, err := validator.ValidateAccess(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := goEnroll.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientMetadata copies the client IP and user agent onto the request
// context for rate limiting and audit. The IP is taken from RemoteAddr,
// which the router's RealIP middleware may already have rewritten.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goEnroll.WithClientIP(r.Context(), remoteIP(r.RemoteAddr))
		ctx = goEnroll.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"reason":  goEnroll.Reason(goEnroll.ErrUnauthenticated),
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
