package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/metrics/export/prometheus"
	"github.com/umarmf343/veaauth/middleware"
)

const maxBodyBytes = 1 << 16

type server struct {
	engine *veaauth.Engine
	logger *slog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ClientIP)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", prometheus.New(s.engine).Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/me", s.handleMe)
			r.Post("/password", s.handleChangePassword)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Guard(s.engine))
		r.Use(middleware.RequireRoles(s.engine, veaauth.RoleAdmin))

		r.Post("/users", s.handleRegister)
		r.Post("/users/{id}/revoke-sessions", s.handleRevokeSessions)
		r.Get("/lockout", s.handleLockoutStatus)
		r.Post("/unlock", s.handleUnlock)
		r.Get("/security-report", s.handleSecurityReport)
	})

	return r
}

type errorBody struct {
	Status            int    `json:"status"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Status: status, Code: code, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

// writeEngineError maps engine errors onto HTTP responses. Backend outages
// are 503 and never leak their cause.
func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *veaauth.AuthError
	if errors.As(err, &ae) {
		body := errorBody{Code: string(ae.Reason), Message: ae.Error()}
		switch ae.Reason {
		case veaauth.ReasonAccountLocked:
			body.Status = http.StatusLocked
			secs := int64((ae.RetryAfter + time.Second - 1) / time.Second)
			body.RetryAfterSeconds = secs
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		case veaauth.ReasonAccountInactive:
			body.Status = http.StatusForbidden
		case veaauth.ReasonInvalidCredentials:
			body.Status = http.StatusUnauthorized
			remaining := ae.RemainingAttempts
			body.RemainingAttempts = &remaining
			// The failure that trips the lockout tells the client how long
			// to wait before the next attempt.
			if ae.RetryAfter > 0 {
				secs := int64((ae.RetryAfter + time.Second - 1) / time.Second)
				body.RetryAfterSeconds = secs
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			}
		default:
			body.Status = http.StatusUnauthorized
		}
		writeJSON(w, body.Status, body)
		return
	}

	switch {
	case errors.Is(err, veaauth.ErrLockoutUnavailable),
		errors.Is(err, veaauth.ErrRefreshStoreUnavailable),
		errors.Is(err, veaauth.ErrDirectoryUnavailable):
		s.logger.ErrorContext(r.Context(), "backend unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "service temporarily unavailable")
	case errors.Is(err, veaauth.ErrAccountExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, veaauth.ErrInvalidRegistration),
		errors.Is(err, veaauth.ErrUnknownRole),
		errors.Is(err, veaauth.ErrPasswordPolicy),
		errors.Is(err, veaauth.ErrPasswordReuse):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, veaauth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.engine.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	RoleLabel string    `json:"roleLabel"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	resp := meResponse{
		ID:        claims.Subject,
		Name:      claims.Name,
		Role:      claims.Role,
		RoleLabel: claims.RoleLabel,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), claims.Subject, req.OldPassword, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Status   string `json:"status,omitempty"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.engine.RegisterUser(r.Context(), veaauth.RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     veaauth.Role(req.Role),
		Status:   veaauth.UserStatus(req.Status),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *server) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RevokeUserSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type lockoutResponse struct {
	Identifier        string     `json:"identifier"`
	Locked            bool       `json:"locked"`
	RemainingAttempts int        `json:"remainingAttempts"`
	RetryAfterSeconds int64      `json:"retryAfterSeconds,omitempty"`
	LockoutUntil      *time.Time `json:"lockoutUntil,omitempty"`
}

func (s *server) handleLockoutStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email is required")
		return
	}
	st, err := s.engine.LockoutStatus(r.Context(), email)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := lockoutResponse{
		Identifier:        st.Identifier,
		Locked:            st.Locked,
		RemainingAttempts: st.RemainingAttempts,
		RetryAfterSeconds: int64((st.RetryAfter + time.Second - 1) / time.Second),
	}
	if !st.LockoutUntil.IsZero() {
		until := st.LockoutUntil
		resp.LockoutUntil = &until
	}
	writeJSON(w, http.StatusOK, resp)
}

type unlockRequest struct {
	Email string `json:"email"`
}

func (s *server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.UnlockAccount(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSecurityReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SecurityReport())
}
