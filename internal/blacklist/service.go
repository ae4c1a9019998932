package blacklist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Aggregator computes a recipient's historical aggregates.
type Aggregator interface {
	Aggregate(ctx context.Context, tenantID, recipientID string) (domain.RecipientAggregates, error)
}

// Service computes recommendations on demand. It reads the registry but
// only Promote writes to it.
type Service struct {
	repo       domain.Repository
	aggregator Aggregator
	registry   *Registry
	thresholds *ThresholdStore
	metrics    *metrics.Metrics
	workers    int
	timeout    time.Duration
}

// NewService creates a recommendation service. workers bounds concurrent
// aggregations when listing; values below 1 mean 1. timeout bounds the reads
// behind one recommendation; zero or less means 5s.
func NewService(repo domain.Repository, agg Aggregator, registry *Registry, thresholds *ThresholdStore, m *metrics.Metrics, workers int, timeout time.Duration) *Service {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		repo:       repo,
		aggregator: agg,
		registry:   registry,
		thresholds: thresholds,
		metrics:    m,
		workers:    workers,
		timeout:    timeout,
	}
}

// Recommendation computes the recommendation for one recipient.
func (s *Service) Recommendation(ctx context.Context, tenantID, recipientID string) (*domain.Recommendation, error) {
	return s.recommend(ctx, tenantID, recipientID, nil)
}

// recommend reads thresholds (unless given), aggregates and membership under
// one deadline.
func (s *Service) recommend(ctx context.Context, tenantID, recipientID string, t *domain.BlacklistThresholds) (*domain.Recommendation, error) {
	recipientID = domain.NormalizeRecipientID(recipientID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if t == nil {
		var err error
		if t, err = s.thresholds.Get(ctx, tenantID); err != nil {
			return nil, storeTimeout(err)
		}
	}
	agg, err := s.aggregator.Aggregate(ctx, tenantID, recipientID)
	if err != nil {
		return nil, storeTimeout(err)
	}
	listed, err := s.registry.Contains(ctx, tenantID, recipientID)
	if err != nil {
		return nil, storeTimeout(err)
	}
	rec := Recommend(recipientID, agg, *t, listed)
	return &rec, nil
}

func storeTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrStoreTimeout, err)
	}
	return err
}

// Recommendations computes recommendations for every recipient with
// assessment history, sorted by recipient id. Unless includeAll is set, only
// recommended or already listed recipients are returned. Any failure fails
// the whole listing.
func (s *Service) Recommendations(ctx context.Context, tenantID string, includeAll bool) ([]*domain.Recommendation, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	t, err := s.thresholds.Get(tctx, tenantID)
	cancel()
	if err != nil {
		return nil, storeTimeout(err)
	}

	recipients, err := s.repo.ListAssessedRecipients(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	results := make([]*domain.Recommendation, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, recipientID := range recipients {
		g.Go(func() error {
			rec, err := s.recommend(gctx, tenantID, recipientID, t)
			if err != nil {
				return fmt.Errorf("recipient %s: %w", recipientID, err)
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*domain.Recommendation, 0, len(results))
	recommended := 0
	for _, rec := range results {
		if rec.Recommended() {
			recommended++
		}
		if includeAll || rec.Status() != domain.StatusUnlisted {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })

	s.metrics.SetRecommended(recommended)
	return out, nil
}

// Promote lists a recipient on an operator's explicit request. An empty
// reason is replaced by the recommendation's current reasons.
func (s *Service) Promote(ctx context.Context, tenantID, recipientID, actor, reason string) (*domain.BlacklistEntry, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		rec, err := s.Recommendation(ctx, tenantID, recipientID)
		if err != nil {
			return nil, err
		}
		if rec.IsAlreadyBlacklisted {
			return nil, fmt.Errorf("%w: recipient %s is already blacklisted", domain.ErrConflict, recipientID)
		}
		reason = "promoted recommendation"
		if len(rec.Reasons) > 0 {
			reason = strings.Join(rec.Reasons, "; ")
		}
	}
	return s.registry.Add(ctx, tenantID, recipientID, reason, actor)
}
