package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/jmylchreest/hlsgate/internal/auth"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/jmylchreest/hlsgate/internal/repository"
)

// maxLoginBody bounds the login request body. Credentials are short;
// anything larger is not a login attempt.
const maxLoginBody = 4 * 1024

// AuthHandler handles the login endpoint and issues session cookies.
type AuthHandler struct {
	svc        *auth.Service
	events     repository.StreamEventRepository
	logger     *slog.Logger
	rateLimit  int
	rateWindow time.Duration
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{
		svc:        svc,
		logger:     slog.Default(),
		rateLimit:  10,
		rateWindow: time.Minute,
	}
}

// WithLogger sets the logger for the handler.
func (h *AuthHandler) WithLogger(logger *slog.Logger) *AuthHandler {
	h.logger = logger
	return h
}

// WithEvents sets the event repository used to journal failed logins.
func (h *AuthHandler) WithEvents(events repository.StreamEventRepository) *AuthHandler {
	h.events = events
	return h
}

// WithRateLimit overrides the per-IP login rate limit.
func (h *AuthHandler) WithRateLimit(limit int, window time.Duration) *AuthHandler {
	if limit > 0 {
		h.rateLimit = limit
	}
	if window > 0 {
		h.rateWindow = window
	}
	return h
}

// RegisterChiRoutes registers the login route directly with Chi.
// Login stays outside Huma so the response can set the session cookie
// and return the legacy plain-text error bodies, and so the per-IP
// rate limit applies only here.
func (h *AuthHandler) RegisterChiRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.rateLimit, h.rateWindow))
		r.Post("/login", h.Login)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates the posted credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody)).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.Authenticate(creds.Username, creds.Password); err != nil {
		h.logger.Warn("login rejected",
			slog.String("username", creds.Username),
			slog.String("remote_addr", r.RemoteAddr),
		)
		h.recordFailure(creds.Username, r.RemoteAddr)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.svc.Issue(creds.Username)
	if err != nil {
		h.logger.Error("issuing session token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.svc.SessionCookie(token))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged in"})
}

// recordFailure journals a rejected login without blocking the response.
func (h *AuthHandler) recordFailure(username, remoteAddr string) {
	if h.events == nil {
		return
	}
	event := &models.StreamEvent{
		Type:    models.EventLoginFailed,
		Message: "invalid credentials for " + username + " from " + remoteAddr,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.events.Create(ctx, event); err != nil {
			h.logger.Warn("recording login failure", slog.Any("error", err))
		}
	}()
}

// NewAuthGuard returns a Huma middleware that rejects API operations
// lacking a valid session cookie. The docs and OpenAPI spec are served
// by the adapter, not as operations, so they stay public.
func NewAuthGuard(api huma.API, svc *auth.Service) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cookie, err := huma.ReadCookie(ctx, svc.CookieName())
		if err != nil || cookie == nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		if _, err := svc.Verify(cookie.Value); err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		next(ctx)
	}
}
