package recipient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/repository"
	"github.com/shopspring/decimal"
)

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "recipient.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seed records a transaction to the recipient with an assessment at level.
func seed(t *testing.T, repo domain.Repository, txID, recipient, amount string, level domain.RiskLevel) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	tx := &domain.Transaction{
		ID: txID, AccountID: "acc-" + txID, Amount: decimal.RequireFromString(amount),
		Channel: domain.ChannelEWallet, RecipientID: recipient, Timestamp: now, CreatedAt: now,
	}
	if err := repo.SaveTransaction(ctx, "t1", tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	a := &domain.Assessment{ID: "a-" + txID, TxID: txID, Level: level, Reasons: []string{}, SnapshotVersion: "v", AssessedAt: now}
	if err := repo.UpsertAssessment(ctx, "t1", a); err != nil {
		t.Fatalf("UpsertAssessment failed: %v", err)
	}
}

func report(t *testing.T, repo domain.Repository, caseID, category, decision string, txIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.SaveCase(ctx, "t1", &domain.Case{ID: caseID, Category: category, Decision: decision, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveCase failed: %v", err)
	}
	for _, id := range txIDs {
		if err := repo.LinkCaseTransaction(ctx, "t1", caseID, id); err != nil {
			t.Fatalf("LinkCaseTransaction failed: %v", err)
		}
	}
}

func TestAggregate(t *testing.T) {
	repo := newRepo(t)
	agg := NewAggregator(repo, nil, time.Second, nil)
	ctx := context.Background()

	t.Run("NoHistory", func(t *testing.T) {
		got, err := agg.Aggregate(ctx, "t1", "nobody")
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if got.ComplaintCount != 0 || !got.TotalReportedAmount.IsZero() || got.ConfirmedFraudCount != 0 {
			t.Errorf("expected all zeros, got %+v", got)
		}
	})

	seed(t, repo, "tx-1", "rcp-1", "40000.50", domain.LevelHigh)
	seed(t, repo, "tx-2", "rcp-1", "19999.50", domain.LevelMedium)
	seed(t, repo, "tx-3", "rcp-1", "750", domain.LevelLow)

	// tx-1 is linked by two fraud cases and must count once.
	report(t, repo, "case-1", domain.CategoryScam, "", "tx-1", "tx-2")
	report(t, repo, "case-2", domain.CategoryFraudReport, "", "tx-1")
	report(t, repo, "case-3", domain.CategoryInquiry, domain.DecisionFraudConfirmed, "tx-3")

	t.Run("DistinctCounting", func(t *testing.T) {
		got, err := agg.Aggregate(ctx, "t1", "rcp-1")
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if got.ComplaintCount != 2 {
			t.Errorf("expected 2 complaints, got %d", got.ComplaintCount)
		}
		if !got.TotalReportedAmount.Equal(decimal.RequireFromString("60000")) {
			t.Errorf("expected exact total 60000, got %s", got.TotalReportedAmount)
		}
		if got.ConfirmedFraudCount != 1 {
			t.Errorf("expected 1 confirmed case, got %d", got.ConfirmedFraudCount)
		}
	})

	t.Run("CustomCategories", func(t *testing.T) {
		inquiries := NewAggregator(repo, []string{domain.CategoryInquiry}, time.Second, nil)
		got, err := inquiries.Aggregate(ctx, "t1", "rcp-1")
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if !got.TotalReportedAmount.Equal(decimal.NewFromInt(750)) {
			t.Errorf("expected 750 from inquiry cases, got %s", got.TotalReportedAmount)
		}
	})

	t.Run("RequiresRecipient", func(t *testing.T) {
		if _, err := agg.Aggregate(ctx, "t1", ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

// slowRepo blocks complaint counting until the context ends.
type slowRepo struct {
	domain.Repository
}

func (slowRepo) CountComplaints(ctx context.Context, tenantID, recipientID string) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestAggregateTimeout(t *testing.T) {
	agg := NewAggregator(slowRepo{}, nil, 20*time.Millisecond, nil)

	_, err := agg.Aggregate(context.Background(), "t1", "rcp-1")
	if !errors.Is(err, domain.ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("expected timeout to be retryable")
	}
}
