package velocity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/repository"
	"github.com/shopspring/decimal"
)

func tx(id, account string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		AccountID: account,
		Amount:    decimal.NewFromInt(100),
		Channel:   domain.ChannelCard,
		Timestamp: ts,
		CreatedAt: ts,
	}
}

func TestVelocityService(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "velocity.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("OnlyTheTransactionItself", func(t *testing.T) {
		current := tx("solo", "acc-solo", now)
		h, err := svc.Load(ctx, tenantID, current, time.Hour)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := h.Count(time.Hour); got != 1 {
			t.Errorf("expected count 1, got %d", got)
		}
	})

	t.Run("WithTransactions", func(t *testing.T) {
		// Four earlier transactions ten minutes apart, plus one two hours back.
		for i := 1; i <= 4; i++ {
			if err := repo.SaveTransaction(ctx, tenantID, tx(fmt.Sprintf("tx-%d", i), "acc-1", now.Add(-time.Duration(i*10)*time.Minute))); err != nil {
				t.Fatalf("SaveTransaction failed: %v", err)
			}
		}
		if err := repo.SaveTransaction(ctx, tenantID, tx("tx-old", "acc-1", now.Add(-2*time.Hour))); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
		if err := repo.SaveTransaction(ctx, tenantID, tx("tx-other", "acc-2", now)); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		current := tx("tx-now", "acc-1", now)
		if err := repo.SaveTransaction(ctx, tenantID, current); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		h, err := svc.Load(ctx, tenantID, current, time.Hour)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if h.Len() != 5 {
			t.Errorf("expected 5 distinct transactions, got %d", h.Len())
		}
		if got := h.Count(time.Hour); got != 5 {
			t.Errorf("expected 5 in the hour, got %d", got)
		}
		if got := h.Count(20 * time.Minute); got != 3 {
			t.Errorf("expected 3 in 20 minutes (boundary inclusive), got %d", got)
		}
	})

	t.Run("ZeroWindowSkipsStore", func(t *testing.T) {
		h, err := svc.Load(ctx, tenantID, tx("x", "acc-1", now), 0)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if h.Len() != 1 {
			t.Errorf("expected only the evaluated transaction, got %d", h.Len())
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := svc.Load(ctx, "", tx("x", "acc-1", now), time.Hour); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestNewHistory(t *testing.T) {
	now := time.Now().UTC()
	current := tx("cur", "acc", now)

	h := NewHistory(current, []*domain.Transaction{
		tx("cur", "acc", now),
		tx("a", "acc", now.Add(-time.Minute)),
		tx("a", "acc", now.Add(-time.Minute)),
		tx("b", "other", now),
		tx("future", "acc", now.Add(time.Minute)),
	})

	if h.Len() != 3 {
		t.Errorf("expected cur, a and future, got %d", h.Len())
	}
	if got := h.Count(time.Hour); got != 2 {
		t.Errorf("expected later transactions excluded from count, got %d", got)
	}
}
