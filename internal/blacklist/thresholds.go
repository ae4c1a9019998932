package blacklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
)

// ThresholdStore reads and writes the per-tenant recommendation thresholds.
type ThresholdStore struct {
	repo domain.Repository
	now  func() time.Time
}

func NewThresholdStore(repo domain.Repository) *ThresholdStore {
	return &ThresholdStore{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the saved thresholds, or the defaults at version 0 when none were saved.
func (s *ThresholdStore) Get(ctx context.Context, tenantID string) (*domain.BlacklistThresholds, error) {
	t, err := s.repo.GetThresholds(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		d := domain.DefaultBlacklistThresholds()
		d.TenantID = tenantID
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return t, nil
}

// Save validates and stores thresholds as the next version. A non-zero
// Version must match the stored one.
func (s *ThresholdStore) Save(ctx context.Context, tenantID string, t domain.BlacklistThresholds, actor string) (*domain.BlacklistThresholds, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Version != 0 && t.Version != current.Version {
		return nil, fmt.Errorf("%w: thresholds are at version %d, not %d", domain.ErrConflict, current.Version, t.Version)
	}

	t.TenantID = tenantID
	t.Version = current.Version + 1
	t.UpdatedBy = actor
	t.UpdatedAt = s.now()

	if err := s.repo.SaveThresholds(ctx, tenantID, &t); err != nil {
		return nil, err
	}

	slog.Info("blacklist thresholds saved",
		"tenant_id", tenantID,
		"version", t.Version,
		"min_complaints", t.MinComplaints,
		"min_reported_amount", t.MinReportedAmount.String(),
		"min_confirmed_fraud", t.MinConfirmedFraud,
		"actor", actor,
	)
	return &t, nil
}
