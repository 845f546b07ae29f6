package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

// ReportService decides which reports a license may see.
type ReportService struct {
	store    ReportStore
	resolver *Resolver
	cache    *gocache.Cache // nil when caching is disabled
}

// NewReportService returns a ReportService. A positive cacheTTL caches
// report catalogs per prefix and per license for that long; catalog edits
// then take up to cacheTTL to become visible.
func NewReportService(st ReportStore, r *Resolver, cacheTTL time.Duration) *ReportService {
	s := &ReportService{store: st, resolver: r}
	if cacheTTL > 0 {
		s.cache = gocache.New(cacheTTL, time.Minute)
	}
	return s
}

// List returns the reports visible to lic. Allow-all licenses see every
// active report of their client; others see only active reports granted to
// them. Inactive reports are never visible.
func (s *ReportService) List(ctx context.Context, lic *model.License) (model.ReportList, error) {
	var (
		reports []model.Report
		err     error
	)
	if lic.AllowAllReports {
		reports, err = s.cached(ctx, "prefix:"+lic.ClientPrefix, func(ctx context.Context) ([]model.Report, error) {
			return s.store.ListActiveReports(ctx, lic.ClientPrefix)
		})
	} else {
		reports, err = s.cached(ctx, "license:"+strconv.FormatInt(lic.ID, 10), func(ctx context.Context) ([]model.Report, error) {
			return s.store.ListGrantedReports(ctx, lic.ID, lic.ClientPrefix)
		})
	}
	if err != nil {
		return model.ReportList{}, fmt.Errorf("list reports for license %d: %w", lic.ID, err)
	}
	return NewReportList(reports), nil
}

func (s *ReportService) cached(ctx context.Context, key string, load func(context.Context) ([]model.Report, error)) ([]model.Report, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return slices.Clone(v.([]model.Report)), nil
		}
	}
	reports, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(key, slices.Clone(reports))
	}
	return reports, nil
}

// Flush drops every cached catalog.
func (s *ReportService) Flush() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

// NewReportList orders reports (default first, then by name, then by code)
// and picks the default. Inactive entries are dropped. With several
// defaults the first in that order wins.
func NewReportList(reports []model.Report) model.ReportList {
	visible := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		if r.IsActive {
			visible = append(visible, r)
		}
	}
	slices.SortStableFunc(visible, func(a, b model.Report) int {
		if a.IsDefault != b.IsDefault {
			if a.IsDefault {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})

	list := model.ReportList{Reports: visible}
	if len(visible) > 0 && visible[0].IsDefault {
		list.DefaultCode = visible[0].Code
	}
	return list
}

// Home resolves the default report, or no_default when none is flagged.
func Home(list model.ReportList) (model.Report, model.Status) {
	if list.DefaultCode == "" {
		return model.Report{}, model.StatusNoDefault
	}
	return ByCode(list, list.DefaultCode)
}

// ByCode resolves a visible report by code. A code that does not exist and
// one that exists but is not visible are indistinguishable.
func ByCode(list model.ReportList, code string) (model.Report, model.Status) {
	code = strings.TrimSpace(code)
	if code != "" {
		for _, r := range list.Reports {
			if r.Code == code {
				return r, model.StatusOK
			}
		}
	}
	return model.Report{}, model.StatusReportNotFound
}

// ClientView is what the prefix-addressed endpoints know about a client.
type ClientView struct {
	// Status is ok, missing-prefix or not_found.
	Status        model.Status
	Client        *model.Client
	License       *model.License
	LicenseStatus model.Status
	// Reports is populated only when LicenseStatus is ok.
	Reports model.ReportList
}

// ForPrefix loads a client, classifies its current license and, if that
// license is usable, lists its reports.
func (s *ReportService) ForPrefix(ctx context.Context, rawPrefix string) (ClientView, error) {
	prefix := license.NormalizePrefix(rawPrefix)
	if prefix == "" {
		return ClientView{Status: model.StatusMissingPrefix}, nil
	}
	if !license.ValidPrefix(prefix) {
		return ClientView{Status: model.StatusNotFound}, nil
	}

	client, err := s.store.GetClient(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return ClientView{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return ClientView{}, fmt.Errorf("get client %s: %w", prefix, err)
	}

	lic, status, err := s.resolver.Current(ctx, prefix)
	if err != nil {
		return ClientView{}, err
	}
	if status == model.StatusNotFound {
		return ClientView{Status: model.StatusNotFound}, nil
	}

	view := ClientView{Status: model.StatusOK, Client: client, License: lic, LicenseStatus: status}
	if status == model.StatusOK {
		if view.Reports, err = s.List(ctx, lic); err != nil {
			return ClientView{}, err
		}
	}
	return view, nil
}

// ForLicense builds the view for a license that already passed login.
func (s *ReportService) ForLicense(ctx context.Context, lic *model.License) (ClientView, error) {
	client, err := s.store.GetClient(ctx, lic.ClientPrefix)
	if errors.Is(err, store.ErrNotFound) {
		// licenses reference clients, so this only happens mid-deletion
		client = &model.Client{Prefix: lic.ClientPrefix}
	} else if err != nil {
		return ClientView{}, fmt.Errorf("get client %s: %w", lic.ClientPrefix, err)
	}

	list, err := s.List(ctx, lic)
	if err != nil {
		return ClientView{}, err
	}
	return ClientView{
		Status:        model.StatusOK,
		Client:        client,
		License:       lic,
		LicenseStatus: model.StatusOK,
		Reports:       list,
	}, nil
}
