package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/signature"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 64 << 10

// VerifySignature rejects internal calls whose HMAC does not match the raw
// body. The body is restored for the next handler.
func VerifySignature(s *signature.Signer, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			r.Body.Close()
			if err != nil {
				writeStatus(w, model.StatusInvalidBody)
				return
			}

			if err := s.Verify(r.Header, body); err != nil {
				reason := "mismatch"
				switch {
				case errors.Is(err, signature.ErrMissing):
					reason = "missing"
				case errors.Is(err, signature.ErrStale):
					reason = "stale"
				case errors.Is(err, signature.ErrReplay):
					reason = "replay"
				}
				m.SignatureFailure(reason)
				logger.Warn("internal signature rejected",
					"reason", reason,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeStatus(w, model.StatusInvalidSignature)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}
