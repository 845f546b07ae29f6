package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/session"
)

type contextKeySession string

// SessionKey is the context key for the authenticated browser session.
const SessionKey contextKeySession = "session"

// RequireSession authenticates the browser session, refreshing it when
// needed, and pins the request to the session's tenant: a missing prefix
// query parameter is filled in, a different one is refused with 403.
func RequireSession(mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, status := mgr.Authenticate(w, r)
			if status != model.StatusOK {
				writeStatus(w, status)
				return
			}

			q := r.URL.Query()
			prefix := strings.ToUpper(strings.TrimSpace(q.Get("prefix")))
			switch {
			case prefix == "":
				q.Set("prefix", sess.TenantID)
				r.URL.RawQuery = q.Encode()
			case prefix != sess.TenantID:
				writeStatus(w, model.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session attached by RequireSession.
func GetSession(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(SessionKey).(model.Session)
	return s, ok
}
