package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

// Resolution is the outcome of resolving a license key.
type Resolution struct {
	Status model.Status
	Prefix string
	// License is set whenever a record with a matching prefix was found,
	// including non-ok outcomes, so the audit row can reference it.
	License *model.License
}

// Resolver turns license keys into outcomes. It is safe for concurrent use.
type Resolver struct {
	store   LicenseStore
	pepper  license.Pepper
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver returns a Resolver hashing with pepper. The pepper is
// normalized here so every caller hashes the same bytes.
func NewResolver(st LicenseStore, pepper string, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   st,
		pepper:  license.NormalizePepper(pepper),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Pepper returns the normalized pepper.
func (r *Resolver) Pepper() license.Pepper {
	return r.pepper
}

// Resolve canonicalizes raw and resolves it. Input errors come back as
// missing-license or invalid-license without touching the store.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	key, status := ParseKey(raw)
	if status != model.StatusOK {
		return Resolution{Status: status}, nil
	}
	return r.ResolveKey(ctx, key)
}

// ParseKey canonicalizes raw, mapping failures to input statuses.
func ParseKey(raw string) (license.Key, model.Status) {
	key, err := license.Canonicalize(raw)
	switch {
	case errors.Is(err, license.ErrMissing):
		return license.Key{}, model.StatusMissingLicense
	case err != nil:
		return license.Key{}, model.StatusInvalidLicense
	}
	return key, model.StatusOK
}

// ResolveKey looks up a canonical key. A hash match whose stored prefix
// differs from the key's prefix is treated exactly like no match.
func (r *Resolver) ResolveKey(ctx context.Context, key license.Key) (Resolution, error) {
	res := Resolution{Status: model.StatusMismatch, Prefix: key.Prefix()}

	lic, err := r.store.FindLicenseByHash(ctx, license.Hash(r.pepper, key))
	if errors.Is(err, store.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("find license: %w", err)
	}
	if lic.ClientPrefix != key.Prefix() {
		r.logger.Warn("license hash matched across prefixes",
			"parsed_prefix", key.Prefix(), "stored_prefix", lic.ClientPrefix, "license_id", lic.ID)
		return res, nil
	}

	status, err := r.Classify(ctx, lic)
	if err != nil {
		return res, err
	}
	res.Status = status
	res.License = lic
	return res, nil
}

// Classify derives the outcome for a stored license. An active license past
// its expiry is flipped to expired in the store; the flip is conditional on
// the row still being active, so concurrent callers converge.
func (r *Resolver) Classify(ctx context.Context, lic *model.License) (model.Status, error) {
	if lic == nil {
		return model.StatusMismatch, nil
	}
	if lic.Status != model.LicenseActive {
		return model.StatusForLicense(lic.Status), nil
	}
	if !lic.ExpiredAt(r.now()) {
		return model.StatusOK, nil
	}

	flipped, err := r.store.ExpireLicense(ctx, lic.ID)
	if err != nil {
		return "", fmt.Errorf("expire license %d: %w", lic.ID, err)
	}
	if flipped {
		r.metrics.ExpiryFlip()
		r.logger.Info("license expired", "license_id", lic.ID, "prefix", lic.ClientPrefix, "expires_at", lic.ExpiresAt)
	}
	lic.Status = model.LicenseExpired
	return model.StatusExpired, nil
}

// ClassifyID loads a license by id and classifies it. Missing rows yield
// mismatch_or_not_found.
func (r *Resolver) ClassifyID(ctx context.Context, id int64) (*model.License, model.Status, error) {
	lic, err := r.store.GetLicense(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.StatusMismatch, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get license %d: %w", id, err)
	}
	status, err := r.Classify(ctx, lic)
	if err != nil {
		return nil, "", err
	}
	return lic, status, nil
}

// Current returns the client's most recently issued license and its
// outcome. A client without licenses yields not_found.
func (r *Resolver) Current(ctx context.Context, prefix string) (*model.License, model.Status, error) {
	lic, err := r.store.CurrentLicense(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.StatusNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("current license %s: %w", prefix, err)
	}
	status, err := r.Classify(ctx, lic)
	if err != nil {
		return nil, "", err
	}
	return lic, status, nil
}
