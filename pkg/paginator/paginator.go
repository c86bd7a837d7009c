// Package paginator drives repeated page fetches against an upstream
// resource until it is exhausted.
package paginator

import (
	"context"
	"time"

	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// DefaultPageSize is the largest page the upstream serves.
const DefaultPageSize = 250

// OrderUpdatedAtAsc asks the upstream for ascending update order.
const OrderUpdatedAtAsc = "updated_at asc"

// Strategy selects how the next page is located.
type Strategy string

const (
	// StrategyTrailingID filters each page by the last record's id and
	// stops on the first short page.
	StrategyTrailingID Strategy = "trailing_id"
	// StrategyLink follows the continuation token returned with each page
	// and stops when none is returned.
	StrategyLink Strategy = "link"
)

// ParseStrategy validates a strategy name. The empty string selects
// StrategyTrailingID.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyTrailingID:
		return StrategyTrailingID, nil
	case StrategyLink:
		return StrategyLink, nil
	default:
		return "", synerrors.Newf(synerrors.ErrorTypeConfig, "unknown pagination strategy %q", s)
	}
}

// Fetcher retrieves one page of a resource.
type Fetcher interface {
	FetchPage(ctx context.Context, resource models.Resource, req models.PageRequest) (models.Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, resource models.Resource, req models.PageRequest) (models.Page, error)

// FetchPage implements Fetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, resource models.Resource, req models.PageRequest) (models.Page, error) {
	return f(ctx, resource, req)
}

// Config configures a Paginator.
type Config struct {
	PageSize int
	Strategy Strategy
	// Overrides selects a different strategy for specific resources.
	Overrides map[models.Resource]Strategy
	// MaxPages bounds a single FetchAllSince call; zero means unbounded.
	MaxPages int
}

// Paginator concatenates every page changed since a watermark.
type Paginator struct {
	fetcher Fetcher
	config  Config
	logger  *zap.Logger
}

// New creates a paginator.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyTrailingID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger.With(zap.String("component", "paginator")),
	}
}

// StrategyFor returns the strategy used for resource.
func (p *Paginator) StrategyFor(resource models.Resource) Strategy {
	if s, ok := p.config.Overrides[resource]; ok && s != "" {
		return s
	}
	return p.config.Strategy
}

// FetchAllSince returns every record updated at or after since, in the
// order the upstream returned them. Page fetch errors are returned
// unchanged; retries belong to the caller and wrap the whole call.
func (p *Paginator) FetchAllSince(ctx context.Context, resource models.Resource, since time.Time) ([]models.Record, error) {
	strategy := p.StrategyFor(resource)
	base := models.PageRequest{
		Limit:        p.config.PageSize,
		UpdatedAtMin: since,
		Order:        OrderUpdatedAtAsc,
	}

	var (
		all   []models.Record
		req   = base
		pages int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.fetcher.FetchPage(ctx, resource, req)
		if err != nil {
			return nil, err
		}
		pages++

		if len(page.Records) > p.config.PageSize {
			return nil, synerrors.Newf(synerrors.ErrorTypeValidation,
				"upstream returned %d records for page size %d", len(page.Records), p.config.PageSize).
				WithDetail("resource", resource.String())
		}

		all = append(all, page.Records...)

		p.logger.Debug("fetched page",
			zap.String("resource", resource.String()),
			zap.String("strategy", string(strategy)),
			zap.Int("page", pages),
			zap.Int("records", len(page.Records)),
			zap.Int("total", len(all)))

		next, more := p.next(strategy, base, page)
		if !more {
			break
		}
		if p.config.MaxPages > 0 && pages >= p.config.MaxPages {
			return nil, synerrors.Newf(synerrors.ErrorTypeValidation,
				"pagination exceeded %d pages", p.config.MaxPages).
				WithDetail("resource", resource.String())
		}
		req = next
	}

	p.logger.Info("fetched resource",
		zap.String("resource", resource.String()),
		zap.Int("pages", pages),
		zap.Int("records", len(all)))

	return all, nil
}

// next builds the request for the following page from base, never from the
// previous request, so no parameter can leak across pages.
func (p *Paginator) next(strategy Strategy, base models.PageRequest, page models.Page) (models.PageRequest, bool) {
	switch strategy {
	case StrategyLink:
		if page.Next == "" {
			return models.PageRequest{}, false
		}
		return base.WithPageInfo(page.Next), true
	default:
		n := len(page.Records)
		if n == 0 || n < p.config.PageSize {
			return models.PageRequest{}, false
		}
		return base.WithSinceID(page.Records[n-1].ID), true
	}
}

func (s Strategy) String() string { return string(s) }
