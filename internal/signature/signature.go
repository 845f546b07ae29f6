// Package signature authenticates edge to auth calls with an HMAC over the
// request timestamp, a per-request nonce and the raw body.
//
// A verifier remembers every nonce it accepted for twice the skew, so a
// captured request is rejected if replayed against the same auth instance.
// Nonces are not shared between auth instances: behind a load balancer a
// replay can still land on another instance within the skew window.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	HeaderTimestamp = "X-Kaizen-Timestamp"
	HeaderNonce     = "X-Kaizen-Nonce"
	HeaderSignature = "X-Kaizen-Signature"

	// DefaultSkew bounds how far a request timestamp may drift from the
	// verifier's clock.
	DefaultSkew = 5 * time.Minute

	maxNonceLen = 64
)

var (
	ErrMissing  = errors.New("signature headers missing")
	ErrStale    = errors.New("signature timestamp outside tolerance")
	ErrMismatch = errors.New("signature mismatch")
	ErrReplay   = errors.New("signature nonce already used")
)

// Signer computes and checks request signatures with a shared secret.
type Signer struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
	seen   *cache.Cache
}

// New returns a Signer. A zero skew takes DefaultSkew.
func New(secret string, skew time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("hmac secret must be at least 16 bytes")
	}
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Signer{
		secret: []byte(secret),
		skew:   skew,
		now:    time.Now,
		seen:   cache.New(2*skew, skew),
	}, nil
}

// Sum returns the hex HMAC-SHA256 of timestamp "." nonce "." body.
func (s *Signer) Sum(timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write([]byte(nonce))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign stamps the signature headers on an outgoing request whose body is
// body.
func (s *Signer) Sign(h http.Header, body []byte) {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	nonce := uuid.NewString()
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSignature, s.Sum(ts, nonce, body))
}

// Verify checks the signature headers in h against body. A valid signature
// is accepted once; presenting its nonce again yields ErrReplay.
func (s *Signer) Verify(h http.Header, body []byte) error {
	ts := h.Get(HeaderTimestamp)
	nonce := h.Get(HeaderNonce)
	sig := h.Get(HeaderSignature)
	if ts == "" || nonce == "" || sig == "" || len(nonce) > maxNonceLen {
		return ErrMissing
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrStale
	}
	drift := s.now().Sub(time.Unix(unix, 0))
	if drift > s.skew || drift < -s.skew {
		return ErrStale
	}

	want, err := hex.DecodeString(s.Sum(ts, nonce, body))
	if err != nil {
		return ErrMismatch
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return ErrMismatch
	}

	// Add fails when the key is present, which makes check-and-set atomic.
	if err := s.seen.Add(nonce, struct{}{}, cache.DefaultExpiration); err != nil {
		return ErrReplay
	}
	return nil
}
