package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/service"
)

// ReportsHandler serves the prefix-addressed report endpoints.
type ReportsHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

// NewReportsHandler creates a ReportsHandler.
func NewReportsHandler(reports *service.ReportService, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, logger: logger}
}

// view loads the client view for ?prefix= and writes the failure response
// when the client is unknown or its license cannot open reports.
func (h *ReportsHandler) view(w http.ResponseWriter, r *http.Request, needLicense bool) (service.ClientView, bool) {
	view, err := h.reports.ForPrefix(r.Context(), queryString(r, "prefix"))
	if err != nil {
		serverError(w, r, h.logger, "load client view failed", err)
		return view, false
	}
	if view.Status != model.StatusOK {
		writeStatus(w, view.Status)
		return view, false
	}
	if needLicense && view.LicenseStatus != model.StatusOK {
		writeStatus(w, view.LicenseStatus)
		return view, false
	}
	return view, true
}

// Home resolves the default report.
// GET /reports/home?prefix=
func (h *ReportsHandler) Home(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r, true)
	if !ok {
		return
	}
	report, status := service.Home(view.Reports)
	if status != model.StatusOK {
		writeStatus(w, status)
		return
	}
	writeJSON(w, http.StatusOK, model.ReportURLResponse{Status: model.StatusOK, URL: report.EmbedURL, ReportCode: report.Code})
}

// ByCode resolves one visible report.
// GET /reports/{code}?prefix=
func (h *ReportsHandler) ByCode(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r, true)
	if !ok {
		return
	}
	report, status := service.ByCode(view.Reports, chi.URLParam(r, "code"))
	if status != model.StatusOK {
		writeStatus(w, status)
		return
	}
	writeJSON(w, http.StatusOK, model.ReportURLResponse{Status: model.StatusOK, URL: report.EmbedURL, ReportCode: report.Code})
}

// ClientInfo describes the client, its current license and, when the
// license is usable, its reports.
// GET /reports/client-info?prefix=
func (h *ReportsHandler) ClientInfo(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOptionsResponse(view))
}

func toOptionsResponse(view service.ClientView) model.ReportOptionsResponse {
	out := model.ReportOptionsResponse{
		Status:  model.StatusOK,
		Reports: make([]model.ReportDTO, 0, len(view.Reports.Reports)),
	}
	if view.Client != nil {
		out.Client = model.ClientDTO{Prefix: view.Client.Prefix, Name: view.Client.Name}
	}
	out.License = model.LicenseDTO{Status: string(view.LicenseStatus)}
	if view.License != nil && view.License.ExpiresAt != nil {
		exp := view.License.ExpiresAt.UTC()
		out.License.ExpiryDate = exp.Format(time.DateOnly)
		out.License.ExpiresAt = exp.Format(time.RFC3339)
	}
	if view.Reports.DefaultCode != "" {
		code := view.Reports.DefaultCode
		out.DefaultReportCode = &code
	}
	for _, r := range view.Reports.Reports {
		out.Reports = append(out.Reports, model.ReportDTO{
			Code:      r.Code,
			Name:      r.Name,
			IsDefault: r.IsDefault,
			URL:       r.EmbedURL,
		})
	}
	return out
}
