package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaizenpbi/kaizen/internal/authclient"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/rate"
	"github.com/kaizenpbi/kaizen/internal/session"
	"github.com/kaizenpbi/kaizen/internal/signature"
	"github.com/kaizenpbi/kaizen/internal/token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) model.Status {
	t.Helper()
	var body model.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	if body.Error != body.Status {
		t.Errorf("error %q != status %q", body.Error, body.Status)
	}
	return body.Status
}

func newMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	return m
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	return rr.Body.String()
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

func TestRequestIDRejectsUnsafeClientID(t *testing.T) {
	for _, bad := range []string{"has spaces", "line\nbreak", strings.Repeat("a", 65), "<script>"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", bad)
		rr := httptest.NewRecorder()
		RequestID(okHandler).ServeHTTP(rr, req)
		if got := rr.Header().Get("X-Request-ID"); got == bad || len(got) != 36 {
			t.Errorf("client id %q: response id %q, want a fresh UUID", bad, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Logger middleware tests
// ---------------------------------------------------------------------------

func TestLoggerRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := newMetrics(t)

	r := chi.NewRouter()
	r.Use(Logger(logger, m))
	r.Get("/reports/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/reports/SALES?prefix=ACME", nil))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "route=/reports/{code}") {
		t.Errorf("log line = %q", out)
	}
	if strings.Contains(out, "prefix=ACME") {
		t.Error("query string should not be logged")
	}
	if want := `kaizen_http_requests_total{method="GET",route="/reports/{code}",status="400"} 1`; !strings.Contains(scrape(t, m), want) {
		t.Errorf("metrics missing %s", want)
	}
}

// ---------------------------------------------------------------------------
// Rate limit middleware tests
// ---------------------------------------------------------------------------

func TestRateLimitReturnsStatusBody(t *testing.T) {
	handler := RateLimit(2, time.Minute)(okHandler)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", last.Code)
	}
	if got := decodeStatus(t, last); got != model.StatusRateLimited {
		t.Errorf("status = %q", got)
	}
}

type fakeLimiter struct {
	res rate.Result
	err error
	key string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	f.key = key
	return f.res, f.err
}

func TestSharedRateLimit(t *testing.T) {
	l := &fakeLimiter{res: rate.Result{Allowed: false, Limit: 20, RetryAfter: 1500 * time.Millisecond}}
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	rr := httptest.NewRecorder()
	SharedRateLimit(l, discardLogger())(okHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if l.key != "ip:198.51.100.7" {
		t.Errorf("key = %q", l.key)
	}

	l.res = rate.Result{Allowed: true, Limit: 20, Remaining: 19}
	rr = httptest.NewRecorder()
	SharedRateLimit(l, discardLogger())(okHandler).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Remaining") != "19" {
		t.Errorf("allowed: code %d remaining %q", rr.Code, rr.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestSharedRateLimitFailsOpen(t *testing.T) {
	l := &fakeLimiter{err: errors.New("redis down")}
	rr := httptest.NewRecorder()
	SharedRateLimit(l, discardLogger())(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("code = %d, want 200 when the limiter is down", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RealIP middleware tests
// ---------------------------------------------------------------------------

func TestRealIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer keeps address", "203.0.113.5:4000", "10.0.0.1", "203.0.113.5:4000"},
		{"trusted peer uses forwarded client", "127.0.0.1:4000", "198.51.100.9", "198.51.100.9:0"},
		{"rightmost untrusted hop wins", "127.0.0.1:4000", "6.6.6.6, 198.51.100.9, 127.0.0.1", "198.51.100.9:0"},
		{"no header", "127.0.0.1:4000", "", "127.0.0.1:4000"},
		{"garbage header", "127.0.0.1:4000", "not-an-ip", "127.0.0.1:4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(LoopbackProxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SecurityHeaders middleware tests
// ---------------------------------------------------------------------------

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("headers = %v", rr.Header())
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be sent over TLS")
	}
}

func TestStripSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	h := rr.Header().Clone()
	h.Set("Strict-Transport-Security", "max-age=1")
	StripSecurityHeaders(h)
	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Strict-Transport-Security"} {
		if h.Get(name) != "" {
			t.Errorf("%s not stripped", name)
		}
	}
}

// ---------------------------------------------------------------------------
// VerifySignature middleware tests
// ---------------------------------------------------------------------------

func newSigner(t *testing.T) *signature.Signer {
	t.Helper()
	s, err := signature.New("middleware-hmac-secret", 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerifySignatureRestoresBody(t *testing.T) {
	s := newSigner(t)
	body := []byte(`{"refreshToken":"rt"}`)
	var seen []byte
	h := VerifySignature(s, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest("POST", "/internal/auth/refresh", bytes.NewReader(body))
	s.Sign(req.Header, body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !bytes.Equal(seen, body) {
		t.Errorf("code %d, handler saw %q", rr.Code, seen)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	s := newSigner(t)
	m := newMetrics(t)
	h := VerifySignature(s, m, discardLogger())(okHandler)

	body := []byte(`{"refreshToken":"rt"}`)
	tampered := httptest.NewRequest("POST", "/", bytes.NewReader([]byte(`{"refreshToken":"other"}`)))
	s.Sign(tampered.Header, body)
	unsigned := httptest.NewRequest("POST", "/", bytes.NewReader(body))

	for name, req := range map[string]*http.Request{"tampered": tampered, "unsigned": unsigned} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized || decodeStatus(t, rr) != model.StatusInvalidSignature {
			t.Errorf("%s: code %d body %s", name, rr.Code, rr.Body)
		}
	}
	out := scrape(t, m)
	for _, want := range []string{
		`kaizen_signature_failures_total{reason="missing"} 1`,
		`kaizen_signature_failures_total{reason="mismatch"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestVerifySignatureRejectsReplay(t *testing.T) {
	s := newSigner(t)
	m := newMetrics(t)
	h := VerifySignature(s, m, discardLogger())(okHandler)

	body := []byte(`{"refreshToken":"rt"}`)
	signed := http.Header{}
	s.Sign(signed, body)

	for i, want := range []int{http.StatusOK, http.StatusUnauthorized} {
		req := httptest.NewRequest("POST", "/internal/auth/refresh", bytes.NewReader(body))
		req.Header = signed.Clone()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("attempt %d: code %d, want %d", i+1, rr.Code, want)
		}
	}
	if out := scrape(t, m); !strings.Contains(out, `kaizen_signature_failures_total{reason="replay"} 1`) {
		t.Errorf("replay not counted:\n%s", out)
	}
}

func TestVerifySignatureBodyLimit(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	rr := httptest.NewRecorder()
	VerifySignature(newSigner(t), nil, discardLogger())(okHandler).ServeHTTP(rr, httptest.NewRequest("POST", "/", bytes.NewReader(big)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireSession middleware tests
// ---------------------------------------------------------------------------

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (*authclient.Response, error) {
	return &authclient.Response{StatusCode: http.StatusUnauthorized, Status: model.StatusRefreshFailed}, nil
}

func sessionFixture(t *testing.T) (*session.Manager, string) {
	t.Helper()
	iss, err := token.NewIssuer(token.Config{Secret: "middleware-jwt-secret"})
	if err != nil {
		t.Fatal(err)
	}
	pair, _, err := iss.Mint(model.Session{Subject: "3", TenantID: "ACME"})
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := session.NewManager(session.CookieConfig{}, iss, noRefresh{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return mgr, pair.AccessToken
}

func TestRequireSession(t *testing.T) {
	mgr, access := sessionFixture(t)
	var gotPrefix, gotTenant string
	h := RequireSession(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefix = r.URL.Query().Get("prefix")
		if s, ok := GetSession(r.Context()); ok {
			gotTenant = s.TenantID
		}
	}))

	tests := []struct {
		name       string
		url        string
		cookie     bool
		wantCode   int
		wantPrefix string
	}{
		{"no cookies", "/reports/home", false, http.StatusUnauthorized, ""},
		{"prefix filled from session", "/reports/home", true, http.StatusOK, "ACME"},
		{"matching prefix", "/reports/home?prefix=acme", true, http.StatusOK, "acme"},
		{"foreign prefix", "/reports/home?prefix=OTHER", true, http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPrefix, gotTenant = "", ""
			req := httptest.NewRequest("GET", tt.url, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: "kaizen_at", Value: access})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rr.Code, tt.wantCode)
			}
			if gotPrefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", gotPrefix, tt.wantPrefix)
			}
			if tt.wantCode == http.StatusOK && gotTenant != "ACME" {
				t.Errorf("session tenant = %q", gotTenant)
			}
		})
	}
}
