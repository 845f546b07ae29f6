package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/server/middleware"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStatus writes the {status, error} envelope with the code the status
// maps to.
func writeStatus(w http.ResponseWriter, s model.Status) {
	writeJSON(w, s.HTTPStatus(), model.StatusResponse{Status: s, Error: s})
}

// writeRateLimited adds Retry-After and the until instant.
func writeRateLimited(w http.ResponseWriter, until time.Time, now time.Time) {
	body := model.StatusResponse{Status: model.StatusRateLimited, Error: model.StatusRateLimited}
	if !until.IsZero() {
		secs := int(math.Ceil(until.Sub(now).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		body.Until = until.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusTooManyRequests, body)
}

// serverError logs err with the request id and answers with the opaque
// server-error status.
func serverError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err, "request_id", middleware.GetRequestID(r.Context()))
	writeStatus(w, model.StatusServerError)
}

// readJSON decodes a bounded request body into v. An empty body leaves v
// at its zero value so the caller reports the missing field.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// remoteIP returns the host portion of RemoteAddr, which RealIP has already
// resolved through trusted proxies.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
