package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/knowledgeshare/identity/internal/audit"
	"github.com/knowledgeshare/identity/internal/auth"
	"github.com/knowledgeshare/identity/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	user, err := a.svc.Register(r.Context(), auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		obs.ObserveAuthOperation("register", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("register", "success")
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"registered_user_id": user.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User             auth.PublicUser `json:"user"`
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	AccessExpiresAt  time.Time       `json:"access_expires_at"`
	RefreshExpiresAt time.Time       `json:"refresh_expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	session, err := a.svc.Login(r.Context(), req.Email, req.Password, auth.RequestMeta{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	})
	if err != nil {
		obs.ObserveAuthOperation("login", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("login", "success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"login_user_id": session.User.ID})
	writeJSON(w, http.StatusOK, loginResponse{
		User:             session.User,
		AccessToken:      session.AccessToken,
		RefreshToken:     session.RefreshToken,
		AccessExpiresAt:  session.AccessExpiresAt,
		RefreshExpiresAt: session.RefreshExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	access, expiresAt, err := a.svc.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveAuthOperation("refresh", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("refresh", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"expires_at":   expiresAt,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, auth.ErrUnauthenticated)
		return
	}
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}
	if err := a.svc.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		obs.ObserveAuthOperation("logout", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("logout", "success")
	scope := "all_sessions"
	if req.RefreshToken != "" {
		scope = "single_session"
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"scope": scope})
	writeJSON(w, http.StatusOK, map[string]any{})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		obs.ObserveAuthOperation("forgot_password", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("forgot_password", "success")
	// Identical response whether or not the email is registered.
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if the email is registered, reset instructions have been sent",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		obs.ObserveAuthOperation("reset_password", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("reset_password", "success")
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.svc.ConfirmEmailVerification(r.Context(), req.Token); err != nil {
		obs.ObserveAuthOperation("verify_email", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("verify_email", "success")
	_ = audit.LogEvent(r.Context(), "auth.email_verified", nil)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.svc.ResendVerification(r.Context(), req.Email); err != nil {
		obs.ObserveAuthOperation("resend_verification", outcome(err))
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthOperation("resend_verification", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if the email is registered, a verification mail has been sent",
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, auth.ErrUnauthenticated)
		return
	}
	user, err := a.svc.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// outcome labels a failed operation for metrics without leaking detail.
func outcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return "bad_request"
	case errors.Is(err, auth.ErrEmailExists):
		return "email_exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}
