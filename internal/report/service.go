package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
)

// SummaryCache is satisfied by *Cache.
type SummaryCache interface {
	Get(ctx context.Context) (*Summary, bool, error)
	Set(ctx context.Context, s *Summary) error
}

type Service struct {
	catalog appointment.Catalog
	repo    appointment.Repository
	cache   SummaryCache
	loc     *time.Location
	now     func() time.Time
}

// NewService builds a report service. cache may be nil, in which case every
// call recomputes.
func NewService(catalog appointment.Catalog, repo appointment.Repository, cache SummaryCache, loc *time.Location) *Service {
	return &Service{
		catalog: catalog,
		repo:    repo,
		cache:   cache,
		loc:     loc,
		now:     time.Now,
	}
}

// Summary returns the cached summary when there is one and fresh is false;
// otherwise it recomputes and refreshes the cache.
func (s *Service) Summary(ctx context.Context, fresh bool) (*Summary, error) {
	if s.cache != nil && !fresh {
		cached, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			// Fall through to the store.
			log.Warn().Err(err).Msg("report cache read failed")
		case ok:
			observability.RecordReportCache(ctx, true)
			return cached, nil
		default:
			observability.RecordReportCache(ctx, false)
		}
	}

	return s.Refresh(ctx)
}

// Refresh computes the summary from the store and writes it to the cache.
func (s *Service) Refresh(ctx context.Context) (*Summary, error) {
	appts, err := s.repo.ListAppointments(ctx, appointment.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	services, err := s.catalog.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	dentists, err := s.catalog.ListDentists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dentists: %w", err)
	}

	summary := Build(appts, services, dentists, s.loc)
	summary.GeneratedAt = s.now().UTC()

	if s.cache != nil {
		if err := s.cache.Set(ctx, &summary); err != nil {
			log.Warn().Err(err).Msg("report cache write failed")
		}
	}

	return &summary, nil
}
