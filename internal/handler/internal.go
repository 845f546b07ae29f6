package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/service"
)

// InternalHandler serves the signed edge to auth endpoints. Signatures are
// checked by middleware before these handlers run.
type InternalHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
	now      func() time.Time
}

// NewInternalHandler creates an InternalHandler.
func NewInternalHandler(sessions *service.SessionService, logger *slog.Logger) *InternalHandler {
	return &InternalHandler{sessions: sessions, logger: logger, now: time.Now}
}

// Login runs a login for the edge and mints a session on success.
// POST /internal/auth/license/login
func (h *InternalHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.InternalLoginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeStatus(w, model.StatusInvalidBody)
		return
	}

	ip := req.Meta.ClientIP
	if ip == "" {
		ip = remoteIP(r)
	}
	res, issued, err := h.sessions.Login(r.Context(), service.Attempt{
		License:       req.License,
		ClientIP:      ip,
		UserAgent:     req.Meta.UserAgent,
		Source:        model.SourceLogin,
		EdgeRequestID: req.Meta.EdgeRequestID,
	})
	if err != nil {
		serverError(w, r, h.logger, "internal login failed", err)
		return
	}
	if res.Status != model.StatusOK {
		writeLoginFailure(w, res, h.now())
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(res.Prefix, issued))
}

// Refresh rotates a session.
// POST /internal/auth/refresh
func (h *InternalHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := readJSON(w, r, &req); err != nil {
		writeStatus(w, model.StatusInvalidBody)
		return
	}

	issued, status, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		serverError(w, r, h.logger, "session refresh failed", err)
		return
	}
	if status != model.StatusOK {
		writeStatus(w, model.StatusRefreshFailed)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(issued.Session.TenantID, issued))
}

func (h *InternalHandler) sessionResponse(prefix string, issued *service.Issued) model.SessionResponse {
	iss := h.sessions.Issuer()
	return model.SessionResponse{
		Status:     model.StatusOK,
		Prefix:     prefix,
		Claims:     issued.Session,
		Tokens:     issued.Tokens,
		AccessTTL:  seconds(iss.AccessTTL()),
		RefreshTTL: seconds(iss.RefreshTTL()),
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
