package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/cache"
	"github.com/opensource-finance/fraudwatch/internal/domain"
)

const snapshotKey = "rules:snapshot"

// RulesChangedEvent is published on domain.TopicRulesChanged after a save.
type RulesChangedEvent struct {
	RuleID  string `json:"ruleId"`
	Code    string `json:"code"`
	Version int    `json:"version"`
	Enabled bool   `json:"enabled"`
}

// Store manages rule configuration and serves cached rule snapshots.
// A cached snapshot may lag a save on another node by up to the TTL.
type Store struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	policy domain.ScoringPolicy
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a rule store. cache and bus may be nil.
func NewStore(repo domain.Repository, c domain.Cache, b domain.EventBus, policy domain.ScoringPolicy, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Store{
		repo:   repo,
		cache:  c,
		bus:    b,
		policy: policy,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot returns the tenant's active rules and scoring policy.
// Cache failures degrade to a store read.
func (s *Store) Snapshot(ctx context.Context, tenantID string) (*domain.RuleSnapshot, error) {
	if s.cache != nil {
		var snap domain.RuleSnapshot
		found, err := cache.GetJSON(ctx, s.cache, tenantID, snapshotKey, &snap)
		if err != nil {
			slog.Warn("rule snapshot cache read failed", "tenant_id", tenantID, "error", err)
		} else if found {
			return &snap, nil
		}
	}

	rules, err := s.repo.ListRules(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	snap := &domain.RuleSnapshot{
		TenantID: tenantID,
		Version:  snapshotVersion(rules, s.policy),
		Rules:    rules,
		Policy:   s.policy,
		LoadedAt: s.now(),
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, tenantID, snapshotKey, snap, s.ttl); err != nil {
			slog.Warn("rule snapshot cache write failed", "tenant_id", tenantID, "error", err)
		}
	}

	return snap, nil
}

// Save validates and stores a rule as a new version.
// An empty ID creates a rule. A non-zero Version must equal the stored version,
// otherwise another edit won and ErrConflict is returned.
func (s *Store) Save(ctx context.Context, tenantID string, rule *domain.Rule) (*domain.Rule, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}

	saved := *rule
	saved.TenantID = tenantID
	now := s.now()

	if saved.ID == "" {
		saved.ID = uuid.New().String()
		saved.Version = 1
		saved.CreatedAt = now
	} else {
		current, err := s.repo.GetRule(ctx, tenantID, saved.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			saved.Version = 1
			saved.CreatedAt = now
		case err != nil:
			return nil, fmt.Errorf("load rule %s: %w", saved.ID, err)
		default:
			if rule.Version != 0 && rule.Version != current.Version {
				return nil, fmt.Errorf("%w: rule %s is at version %d, not %d", domain.ErrConflict, saved.ID, current.Version, rule.Version)
			}
			saved.Version = current.Version + 1
			saved.CreatedAt = current.CreatedAt
		}
	}
	saved.UpdatedAt = now

	if err := s.repo.SaveRule(ctx, tenantID, &saved); err != nil {
		return nil, err
	}

	s.Invalidate(ctx, tenantID)

	if s.bus != nil {
		evt := RulesChangedEvent{RuleID: saved.ID, Code: saved.Code, Version: saved.Version, Enabled: saved.Enabled}
		if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicRulesChanged, evt); err != nil {
			slog.Warn("failed to publish rules change", "tenant_id", tenantID, "rule_id", saved.ID, "error", err)
		}
	}

	slog.Info("rule saved",
		"tenant_id", tenantID,
		"rule_id", saved.ID,
		"code", saved.Code,
		"version", saved.Version,
		"enabled", saved.Enabled,
	)

	return &saved, nil
}

// Disable stores a disabled version of the rule.
func (s *Store) Disable(ctx context.Context, tenantID string, ruleID string) (*domain.Rule, error) {
	rule, err := s.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return rule, nil
	}
	rule.Enabled = false
	return s.Save(ctx, tenantID, rule)
}

// Get returns the latest version of a rule.
func (s *Store) Get(ctx context.Context, tenantID string, ruleID string) (*domain.Rule, error) {
	return s.repo.GetRule(ctx, tenantID, ruleID)
}

// List returns the latest version of every rule.
func (s *Store) List(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.Rule, error) {
	return s.repo.ListRules(ctx, tenantID, enabledOnly)
}

// Invalidate drops the tenant's cached snapshot.
func (s *Store) Invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tenantID, snapshotKey); err != nil {
		slog.Warn("rule snapshot invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// snapshotVersion hashes rule identity, versions and policy so two snapshots
// with the same content share a version.
func snapshotVersion(rules []*domain.Rule, policy domain.ScoringPolicy) string {
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, fmt.Sprintf("%s@%d", r.ID, r.Version))
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("\n")
	}
	fmt.Fprintf(h, "policy:%d/%d/%d", policy.BlacklistBonus, policy.MediumFrom, policy.HighFrom)
	return fmt.Sprintf("%016x", h.Sum64())
}
