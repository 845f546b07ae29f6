package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
)

// Attempt is one presentation of a license by a caller.
type Attempt struct {
	License       string
	ClientIP      string
	UserAgent     string
	Source        string // model.SourceLogin or model.SourceOptions
	EdgeRequestID string
}

// LoginResult is the outcome of an attempt. License is set only when Status
// is ok; it is for in-process callers and never serialized to browsers.
type LoginResult struct {
	Status  model.Status
	Prefix  string
	Until   time.Time // set when Status is rate-limited
	License *model.License
}

// inFlightRetry is the Retry-After hint when a pair has no lock yet but its
// in-flight attempts already fill the remaining failure budget.
const inFlightRetry = time.Second

// LoginService runs the audited login pipeline: input validation, an atomic
// lockout check that reserves the attempt, resolution, then one atomic
// audit-and-count write.
type LoginService struct {
	resolver *Resolver
	audit    AuditStore
	policy   model.LockoutPolicy
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoginService wires a LoginService. A zero policy takes
// DefaultLockoutPolicy.
func NewLoginService(r *Resolver, audit AuditStore, policy model.LockoutPolicy, m *metrics.Metrics, logger *slog.Logger) *LoginService {
	if policy.Threshold <= 0 || policy.Window <= 0 || policy.Duration <= 0 {
		policy = DefaultLockoutPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginService{
		resolver: r,
		audit:    audit,
		policy:   policy,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the active lockout policy.
func (s *LoginService) Policy() model.LockoutPolicy {
	return s.policy
}

// Login processes one attempt and records it exactly once.
//
// Input errors return before any store access and are not audited. A
// (prefix, ip) pair under lockout gets rate-limited without the resolver
// being consulted, so a locked caller learns nothing about the license. The
// same holds while attempts already in flight could still reach the
// threshold.
func (s *LoginService) Login(ctx context.Context, a Attempt) (LoginResult, error) {
	key, status := ParseKey(a.License)
	if status != model.StatusOK {
		return LoginResult{Status: status}, nil
	}
	if a.Source == "" {
		a.Source = model.SourceLogin
	}

	now := s.now().UTC()
	ev := &model.LoginEvent{
		ClientPrefix:  key.Prefix(),
		Source:        a.Source,
		IPHash:        license.HashIP(a.ClientIP),
		IPMasked:      MaskIP(a.ClientIP),
		UserAgent:     a.UserAgent,
		EdgeRequestID: a.EdgeRequestID,
		CreatedAt:     now,
	}

	state, ok, err := s.audit.ReserveAttempt(ctx, ev.ClientPrefix, ev.IPHash, now, s.policy)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lockout lookup: %w", err)
	}
	if !ok {
		until := state.LockedUntil
		if !state.Locked(now) {
			until = now.Add(inFlightRetry)
		}
		ev.Outcome = model.OutcomeRateLimited
		ev.Reason = string(model.StatusRateLimited)
		if _, err := s.audit.RecordLogin(ctx, ev, s.policy); err != nil {
			return LoginResult{}, err
		}
		s.metrics.LoginAttempt(ev.Outcome, ev.Reason, ev.Source)
		return LoginResult{Status: model.StatusRateLimited, Prefix: key.Prefix(), Until: until}, nil
	}

	res, err := s.resolver.ResolveKey(ctx, key)
	if err != nil {
		s.release(ctx, ev)
		return LoginResult{}, err
	}

	ev.Reason = string(res.Status)
	ev.Outcome = model.OutcomeFailed
	if res.Status == model.StatusOK {
		ev.Outcome = model.OutcomeSuccess
	}
	if res.License != nil {
		id := res.License.ID
		ev.LicenseID = &id
	}

	state, err = s.audit.RecordLogin(ctx, ev, s.policy)
	if err != nil {
		s.release(ctx, ev)
		return LoginResult{}, err
	}
	s.metrics.LoginAttempt(ev.Outcome, ev.Reason, ev.Source)

	if ev.Failed() && state.Locked(now) {
		s.metrics.Lockout()
		s.logger.Warn("login lockout",
			"prefix", ev.ClientPrefix,
			"ip", ev.IPMasked,
			"failures", state.Failures,
			"until", state.LockedUntil)
	}

	out := LoginResult{Status: res.Status, Prefix: key.Prefix()}
	if res.Status == model.StatusOK {
		out.License = res.License
	}
	return out, nil
}

// release gives back the attempt's reservation after an infrastructure
// failure. It runs even when ctx is already canceled.
func (s *LoginService) release(ctx context.Context, ev *model.LoginEvent) {
	ctx = context.WithoutCancel(ctx)
	if err := s.audit.ReleaseAttempt(ctx, ev.ClientPrefix, ev.IPHash); err != nil {
		s.logger.Warn("release login attempt",
			"prefix", ev.ClientPrefix,
			"ip", ev.IPMasked,
			"error", err)
	}
}

// MaskIP truncates an address for display in the audit log: IPv4 to its
// /24, IPv6 to its /48. Unparseable input yields the empty string.
func MaskIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return p.String()
}
