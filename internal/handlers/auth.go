package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/logging"
	"github.com/vidshare/backend/internal/models"
	"github.com/vidshare/backend/internal/repositories"
)

// AuthHandler implements registration, login and session endpoints.
type AuthHandler struct {
	Users        UserStore
	Auth         Authenticator
	Sessions     SessionCookies
	Limiter      RateLimiter
	CookieSecure bool
	NowFunc      func() time.Time
}

// Register handles POST /api/auth/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		respondTooManyRequests(ctx, w)
		return
	}

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "registration unavailable"})
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	email := models.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	if _, err := h.Users.FindByEmail(ctx, email); err == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "user already present"})
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register user lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to register user"})
		return
	}

	user, err := models.NewUser(email, req.Password, h.now())
	if err != nil {
		logger.Error("register failed to build user", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to register user"})
		return
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "user already present"})
			return
		}
		logger.Error("register failed to create user", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to register user"})
		return
	}

	logger.Info("user registered", "user_id", user.ID)
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

// Login handles POST /api/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondTooManyRequests(ctx, w)
		return
	}

	if h.Auth == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasAuth", h.Auth != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	grant, err := h.Auth.Authenticate(ctx, auth.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.respondAuthError(ctx, w, err)
		return
	}

	h.Sessions.SetCookie(w, grant.Token)
	respondJSON(ctx, w, http.StatusOK, sessionResponse{User: grant.Session, ExpiresAt: grant.Session.ExpiresAt, Token: grant.Token})
}

// Logout handles POST /api/auth/logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.Sessions != nil {
		h.Sessions.ClearCookie(w)
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "signed out"})
}

// Session handles GET /api/auth/session.
func (h AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	session, ok := currentSession(r, h.Sessions)
	if !ok {
		respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, sessionResponse{User: session, ExpiresAt: session.ExpiresAt})
}

// OAuthStart handles GET /api/auth/oauth/{provider} by redirecting to the provider.
func (h AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Auth == nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	provider, ok := h.Auth.Provider(r.PathValue("provider"))
	if !ok {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	state, err := auth.NewState()
	if err != nil {
		logging.FromContext(ctx).Error("generate oauth state", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to start sign-in"})
		return
	}

	auth.SetStateCookie(w, state, h.CookieSecure)
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback handles GET /api/auth/oauth/{provider}/callback.
func (h AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil || h.Sessions == nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	query := r.URL.Query()
	if !auth.ConsumeState(w, r, query.Get("state"), h.CookieSecure) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid oauth state"})
		return
	}
	if reason := query.Get("error"); reason != "" {
		logger.Warn("provider denied sign-in", "provider", r.PathValue("provider"), "reason", reason)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "sign-in was cancelled"})
		return
	}

	grant, err := h.Auth.Authenticate(ctx, auth.ProviderAssertion{Provider: r.PathValue("provider"), Token: query.Get("code")})
	if err != nil {
		h.respondAuthError(ctx, w, err)
		return
	}

	h.Sessions.SetCookie(w, grant.Token)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h AuthHandler) respondAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrProviderRejected):
		logging.FromContext(ctx).Info("authentication rejected", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrUnknownProvider):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
	default:
		logging.FromContext(ctx).Error("authentication failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication failed"})
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      auth.Session `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Token     string       `json:"token,omitempty"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
