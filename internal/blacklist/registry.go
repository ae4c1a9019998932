// Package blacklist maintains the recipient blacklist and derives
// recommendations for adding recipients to it.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
)

// Registry is the authoritative set of banned recipients.
// Membership is read straight from the repository, never from a cache, so a
// committed add is visible to the next evaluation.
type Registry struct {
	repo    domain.Repository
	bus     domain.EventBus
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRegistry creates a registry. bus and m may be nil.
func NewRegistry(repo domain.Repository, b domain.EventBus, m *metrics.Metrics) *Registry {
	return &Registry{
		repo:    repo,
		bus:     b,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Add lists a recipient. Adding a listed recipient returns ErrConflict; under
// concurrent adds exactly one caller succeeds.
func (r *Registry) Add(ctx context.Context, tenantID, recipientID, reason, actor string) (*domain.BlacklistEntry, error) {
	recipientID = domain.NormalizeRecipientID(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipientId is required", domain.ErrValidation)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	entry := &domain.BlacklistEntry{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Reason:      reason,
		CreatedBy:   actor,
		CreatedAt:   r.now(),
	}

	if err := r.repo.InsertBlacklistEntry(ctx, tenantID, entry); err != nil {
		r.metrics.BlacklistChanged("add", outcome(err))
		return nil, err
	}
	r.metrics.BlacklistChanged("add", "ok")

	slog.Info("recipient blacklisted",
		"tenant_id", tenantID,
		"recipient_id", recipientID,
		"entry_id", entry.ID,
		"actor", actor,
	)
	r.publish(ctx, tenantID, "added", entry, actor)
	return entry, nil
}

// Remove deletes an entry by id. Unknown ids return ErrNotFound.
func (r *Registry) Remove(ctx context.Context, tenantID, entryID, actor string) error {
	entry, err := r.repo.GetBlacklistEntry(ctx, tenantID, entryID)
	if err != nil {
		r.metrics.BlacklistChanged("remove", outcome(err))
		return err
	}

	if err := r.repo.DeleteBlacklistEntry(ctx, tenantID, entryID); err != nil {
		r.metrics.BlacklistChanged("remove", outcome(err))
		return err
	}
	r.metrics.BlacklistChanged("remove", "ok")

	slog.Info("recipient removed from blacklist",
		"tenant_id", tenantID,
		"recipient_id", entry.RecipientID,
		"entry_id", entryID,
		"actor", actor,
	)
	r.publish(ctx, tenantID, "removed", entry, actor)
	return nil
}

// Contains reports whether the recipient is listed. An empty recipient is never listed.
func (r *Registry) Contains(ctx context.Context, tenantID, recipientID string) (bool, error) {
	recipientID = domain.NormalizeRecipientID(recipientID)
	if recipientID == "" {
		return false, nil
	}
	_, err := r.repo.FindBlacklistEntry(ctx, tenantID, recipientID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check blacklist: %w", err)
	}
}

// Get returns an entry by id.
func (r *Registry) Get(ctx context.Context, tenantID, entryID string) (*domain.BlacklistEntry, error) {
	return r.repo.GetBlacklistEntry(ctx, tenantID, entryID)
}

// List returns every entry, newest first.
func (r *Registry) List(ctx context.Context, tenantID string) ([]*domain.BlacklistEntry, error) {
	return r.repo.ListBlacklistEntries(ctx, tenantID)
}

func (r *Registry) publish(ctx context.Context, tenantID, action string, entry *domain.BlacklistEntry, actor string) {
	if r.bus == nil {
		return
	}
	evt := domain.BlacklistEvent{Action: action, Entry: entry, Actor: actor}
	if err := bus.PublishJSON(ctx, r.bus, tenantID, domain.TopicBlacklistChanged, evt); err != nil {
		slog.Warn("failed to publish blacklist change", "tenant_id", tenantID, "action", action, "error", err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case domain.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}
