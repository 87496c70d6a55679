package httpapi

import (
	"net/http"
	"strings"

	goEnroll "github.com/MrEthical07/goEnroll"
)

type scanRequest struct {
	QRData string `json:"qrData"`
}

type scanResponse struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	NextStep string `json:"nextStep"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type completeRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type registrationResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Username   string              `json:"username"`
	Password   string              `json:"password"`
	DeviceInfo goEnroll.DeviceInfo `json:"deviceInfo"`
}

type quickLoginRequest struct {
	AccountID  string              `json:"accountId"`
	DeviceInfo goEnroll.DeviceInfo `json:"deviceInfo"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
}

type settingsRequest struct {
	DeviceID string `json:"deviceId"`
	goEnroll.DeviceSettings
}

type nextStepResponse struct {
	NextStep string `json:"nextStep"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) scanEntry(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.ScanEntry(r.Context(), req.QRData)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, scanResponse{
		Email:    res.Email,
		Name:     res.Name,
		Username: res.Username,
		NextStep: string(res.NextStep),
	})
}

func (s *Server) resendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.ResendCode(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, map[string]any{"codeExpiresAt": res.CodeExpires})
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.VerifyCode(r.Context(), req.Email, req.VerificationCode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, nextStepResponse{NextStep: string(res.NextStep)})
}

func (s *Server) verifyLegacyPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.VerifyLegacyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, NextStep: string(res.NextStep)})
}

func (s *Server) completeRegistration(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.CompleteRegistration(r.Context(), req.Email, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, registrationResponse{
		UserID:   res.Account.ID,
		Username: res.Account.Username,
		Email:    res.Account.Email,
		Name:     res.Account.Name,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	bundle, err := s.svc.Login(r.Context(), req.Username, req.Password, req.DeviceInfo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, bundle)
}

func (s *Server) quickLogin(w http.ResponseWriter, r *http.Request) {
	var req quickLoginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	bundle, err := s.svc.QuickLogin(r.Context(), req.AccountID, req.DeviceInfo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, bundle)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	bundle, err := s.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, bundle)
}

func (s *Server) recoverSession(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.RecoverSession(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Action: string(res.Action)})
}

func (s *Server) savedAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.SavedAccounts(r.Context(), r.URL.Query().Get("deviceId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if views == nil {
		views = []goEnroll.SavedAccountView{}
	}
	ok(w, views)
}

// logout always answers success once the caller is authenticated.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := goEnroll.PrincipalFromContext(r.Context())
	if _, err := s.svc.Logout(r.Context(), p.AccountID, p.SessionID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) devices(w http.ResponseWriter, r *http.Request) {
	p, _ := goEnroll.PrincipalFromContext(r.Context())
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		accountID = p.AccountID
	}
	if accountID != p.AccountID {
		writeJSON(w, http.StatusForbidden, envelope{Reason: "forbidden"})
		return
	}
	bindings, err := s.svc.DevicesForAccount(r.Context(), accountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if bindings == nil {
		bindings = []goEnroll.SavedAccount{}
	}
	ok(w, bindings)
}

func (s *Server) removeSavedAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := goEnroll.PrincipalFromContext(r.Context())
	var req deviceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	removed, err := s.svc.RemoveSavedAccount(r.Context(), p.AccountID, req.DeviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, map[string]bool{"removed": removed})
}

// clearDevice only clears the device the caller's session runs on.
func (s *Server) clearDevice(w http.ResponseWriter, r *http.Request) {
	p, _ := goEnroll.PrincipalFromContext(r.Context())
	var req deviceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.DeviceID == "" || req.DeviceID != p.DeviceID {
		writeJSON(w, http.StatusForbidden, envelope{Reason: "forbidden"})
		return
	}
	n, err := s.svc.ClearDevice(r.Context(), req.DeviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, map[string]int{"removed": n})
}

func (s *Server) updateDeviceSettings(w http.ResponseWriter, r *http.Request) {
	p, _ := goEnroll.PrincipalFromContext(r.Context())
	var req settingsRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.svc.UpdateDeviceSettings(r.Context(), p.AccountID, req.DeviceID, req.DeviceSettings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !updated {
		s.fail(w, r, goEnroll.ErrAccountNotFound)
		return
	}
	ok(w, req.DeviceSettings)
}
