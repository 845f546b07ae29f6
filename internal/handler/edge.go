package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kaizenpbi/kaizen/internal/authclient"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/server/middleware"
	"github.com/kaizenpbi/kaizen/internal/session"
)

// AuthLogin forwards a login to the auth service.
type AuthLogin interface {
	Login(ctx context.Context, req model.InternalLoginRequest) (*authclient.Response, error)
}

// EdgeHandler serves the browser session endpoints of the edge.
type EdgeHandler struct {
	auth     AuthLogin
	sessions *session.Manager
	logger   *slog.Logger
}

// NewEdgeHandler creates an EdgeHandler.
func NewEdgeHandler(auth AuthLogin, sessions *session.Manager, logger *slog.Logger) *EdgeHandler {
	return &EdgeHandler{auth: auth, sessions: sessions, logger: logger}
}

// Login exchanges a license for session cookies. Failures from the auth
// service are passed through unchanged.
// POST /auth/license/login, /auth/login
func (h *EdgeHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LicenseRequest
	if err := readJSON(w, r, &req); err != nil {
		writeStatus(w, model.StatusInvalidBody)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	resp, err := h.auth.Login(r.Context(), model.InternalLoginRequest{
		License: req.License,
		Meta: model.LoginMeta{
			ClientIP:      remoteIP(r),
			UserAgent:     r.UserAgent(),
			EdgeRequestID: requestID,
		},
	})
	if errors.Is(err, authclient.ErrBadResponse) {
		h.logger.Error("auth service returned a non-JSON body",
			"status", resp.StatusCode,
			"body", truncate(string(resp.Body), 400),
			"request_id", requestID,
		)
		writeStatus(w, model.StatusBadAuthResponse)
		return
	}
	if err != nil {
		serverError(w, r, h.logger, "edge login failed", err)
		return
	}

	if !resp.OK() {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			w.Header().Set("Retry-After", ra)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
		return
	}

	h.sessions.Set(w, resp.Session)
	writeJSON(w, http.StatusOK, model.LoginResponse{Status: model.StatusOK, Prefix: resp.Session.Prefix})
}

// Me reports the current session, refreshing it when the access cookie has
// lapsed.
// GET /auth/me
func (h *EdgeHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, status := h.sessions.Authenticate(w, r)
	if status != model.StatusOK {
		writeStatus(w, status)
		return
	}
	writeJSON(w, http.StatusOK, model.MeResponse{
		Status: model.StatusOK,
		User:   model.MeUser{ID: sess.Subject, TenantID: sess.TenantID},
	})
}

// Logout clears both cookies whatever their state.
// POST /auth/logout
func (h *EdgeHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
