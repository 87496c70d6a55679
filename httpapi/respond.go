package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goEnroll "github.com/MrEthical07/goEnroll"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success           bool   `json:"success"`
	Data              any    `json:"data,omitempty"`
	Reason            string `json:"reason,omitempty"`
	AlreadyRegistered bool   `json:"alreadyRegistered,omitempty"`
	NextStep          string `json:"nextStep,omitempty"`
	Action            string `json:"action,omitempty"`
}

type identityHint struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

var statusByErr = []struct {
	err    error
	status int
}{
	{goEnroll.ErrInvalidPayload, http.StatusBadRequest},
	{goEnroll.ErrInvalidInput, http.StatusBadRequest},
	{goEnroll.ErrPasswordMismatch, http.StatusBadRequest},
	{goEnroll.ErrWeakPassword, http.StatusBadRequest},
	{goEnroll.ErrInvalidOrExpiredCode, http.StatusBadRequest},
	{goEnroll.ErrSessionExpired, http.StatusGone},
	{goEnroll.ErrAlreadyRegistered, http.StatusConflict},
	{goEnroll.ErrTooManyAttempts, http.StatusTooManyRequests},
	{goEnroll.ErrRateLimited, http.StatusTooManyRequests},
	{goEnroll.ErrAccountNotFound, http.StatusNotFound},
	{goEnroll.ErrAccountInactive, http.StatusForbidden},
	{goEnroll.ErrInvalidOrExpiredToken, http.StatusUnauthorized},
	{goEnroll.ErrInvalidCredentials, http.StatusUnauthorized},
	{goEnroll.ErrSessionExpiredAfterLogout, http.StatusUnauthorized},
	{goEnroll.ErrNoActiveSession, http.StatusUnauthorized},
	{goEnroll.ErrReauthRequired, http.StatusUnauthorized},
	{goEnroll.ErrInvalidRefreshToken, http.StatusUnauthorized},
	{goEnroll.ErrUnauthenticated, http.StatusUnauthorized},
	{goEnroll.ErrIdentityUnavailable, http.StatusServiceUnavailable},
	{goEnroll.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{goEnroll.ErrEngineNotReady, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := envelope{Reason: goEnroll.Reason(err)}

	var hint *goEnroll.IdentityHintError
	if errors.As(err, &hint) {
		body.Data = identityHint{Username: hint.Username, Email: hint.Email}
		body.AlreadyRegistered = errors.Is(err, goEnroll.ErrAlreadyRegistered)
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "goEnroll: request failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return goEnroll.ErrInvalidInput
	}
	return nil
}
