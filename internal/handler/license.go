package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/server/middleware"
	"github.com/kaizenpbi/kaizen/internal/service"
)

// LicenseHandler serves the public license endpoints of the auth service.
type LicenseHandler struct {
	login   *service.LoginService
	reports *service.ReportService
	logger  *slog.Logger
	now     func() time.Time
}

// NewLicenseHandler creates a LicenseHandler.
func NewLicenseHandler(login *service.LoginService, reports *service.ReportService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{login: login, reports: reports, logger: logger, now: time.Now}
}

func (h *LicenseHandler) attempt(r *http.Request, raw, source string) service.Attempt {
	return service.Attempt{
		License:       raw,
		ClientIP:      remoteIP(r),
		UserAgent:     r.UserAgent(),
		Source:        source,
		EdgeRequestID: middleware.GetRequestID(r.Context()),
	}
}

// run decodes the body and runs the login pipeline. It writes the failure
// response itself and returns ok=false in that case.
func (h *LicenseHandler) run(w http.ResponseWriter, r *http.Request, source string) (service.LoginResult, bool) {
	var req model.LicenseRequest
	if err := readJSON(w, r, &req); err != nil {
		writeStatus(w, model.StatusInvalidBody)
		return service.LoginResult{}, false
	}

	res, err := h.login.Login(r.Context(), h.attempt(r, req.License, source))
	if err != nil {
		serverError(w, r, h.logger, "license login failed", err)
		return service.LoginResult{}, false
	}
	if res.Status != model.StatusOK {
		writeLoginFailure(w, res, h.now())
		return res, false
	}
	return res, true
}

func writeLoginFailure(w http.ResponseWriter, res service.LoginResult, now time.Time) {
	if res.Status == model.StatusRateLimited {
		writeRateLimited(w, res.Until, now)
		return
	}
	writeStatus(w, res.Status)
}

// Login validates a license.
// POST /login, /license/login, /auth/login, /auth/license/login
func (h *LicenseHandler) Login(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, model.SourceLogin)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{Status: model.StatusOK, Prefix: res.Prefix})
}

// Options validates a license and lists the reports it can open.
// POST /reports/options
func (h *LicenseHandler) Options(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, model.SourceOptions)
	if !ok {
		return
	}
	view, err := h.reports.ForLicense(r.Context(), res.License)
	if err != nil {
		serverError(w, r, h.logger, "list report options failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOptionsResponse(view))
}
