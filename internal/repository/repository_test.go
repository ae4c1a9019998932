package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fraudwatch-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testTx(id, account, recipient string, amount int64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		AccountID:   account,
		Amount:      decimal.NewFromInt(amount),
		Channel:     domain.ChannelBankTransfer,
		RecipientID: recipient,
		Timestamp:   ts,
		CreatedAt:   ts,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := testTx("tx-001", "acc-001", "rcp-001", 0, base)
		tx.Amount = decimal.RequireFromString("1250.75")
		tx.Location = "Jakarta"

		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		got, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if !got.Amount.Equal(tx.Amount) {
			t.Errorf("expected amount %s, got %s", tx.Amount, got.Amount)
		}
		if got.RecipientID != "rcp-001" || got.Location != "Jakarta" {
			t.Errorf("unexpected recipient/location: %q %q", got.RecipientID, got.Location)
		}
		if !got.Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got.Timestamp)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
	})

	t.Run("DuplicateTransactionConflicts", func(t *testing.T) {
		err := repo.SaveTransaction(ctx, tenantID, testTx("tx-001", "acc-001", "", 1, base))
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("TransactionWithoutRecipient", func(t *testing.T) {
		tx := testTx("tx-atm", "acc-009", "", 200, base)
		tx.Channel = domain.ChannelATM
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
		got, err := repo.GetTransaction(ctx, tenantID, "tx-atm")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got.HasRecipient() {
			t.Errorf("expected no recipient, got %q", got.RecipientID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "tenant-002", "tx-001")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, "", &domain.Transaction{ID: "x"}); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if _, err := repo.GetTransaction(ctx, "", "tx-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.ListBlacklistEntries(ctx, ""); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("GetAccountTransactionsWindowIsInclusive", func(t *testing.T) {
		for i, offset := range []time.Duration{-61 * time.Minute, -60 * time.Minute, -30 * time.Minute, 0} {
			tx := testTx("win-"+string(rune('a'+i)), "acc-win", "rcp-x", 10, base.Add(offset))
			if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
				t.Fatalf("SaveTransaction failed: %v", err)
			}
		}

		txs, err := repo.GetAccountTransactions(ctx, tenantID, "acc-win", base.Add(-time.Hour), base)
		if err != nil {
			t.Fatalf("GetAccountTransactions failed: %v", err)
		}
		if len(txs) != 3 {
			t.Fatalf("expected 3 transactions in window, got %d", len(txs))
		}
		if txs[0].ID != "win-b" || txs[2].ID != "win-d" {
			t.Errorf("expected oldest first, got %s..%s", txs[0].ID, txs[2].ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, tenantID, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAssessment(ctx, tenantID, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetRule(ctx, tenantID, "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetThresholds(ctx, tenantID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestRuleVersions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	threshold := decimal.NewFromInt(10000)
	rule := &domain.Rule{
		ID:         "rule-1",
		Code:       "HIGH_AMOUNT",
		Kind:       domain.KindAmountThreshold,
		Threshold:  &threshold,
		RiskPoints: 40,
		Enabled:    true,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.SaveRule(ctx, "t1", rule); err != nil {
		t.Fatalf("SaveRule failed: %v", err)
	}

	t.Run("SameVersionConflicts", func(t *testing.T) {
		if err := repo.SaveRule(ctx, "t1", rule); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("LatestVersionWins", func(t *testing.T) {
		v2 := *rule
		v2.Version = 2
		v2.Enabled = false
		if err := repo.SaveRule(ctx, "t1", &v2); err != nil {
			t.Fatalf("SaveRule v2 failed: %v", err)
		}

		got, err := repo.GetRule(ctx, "t1", "rule-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if got.Version != 2 || got.Enabled {
			t.Errorf("expected disabled v2, got v%d enabled=%v", got.Version, got.Enabled)
		}
		if got.Threshold == nil || !got.Threshold.Equal(threshold) {
			t.Errorf("threshold not preserved: %v", got.Threshold)
		}

		enabled, err := repo.ListRules(ctx, "t1", true)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(enabled) != 0 {
			t.Errorf("expected no enabled rules, got %d", len(enabled))
		}

		all, err := repo.ListRules(ctx, "t1", false)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected one rule across versions, got %d", len(all))
		}
	})

	t.Run("FrequencyFieldsRoundTrip", func(t *testing.T) {
		count, window := 5, 60
		freq := &domain.Rule{
			ID: "rule-2", Code: "VELOCITY", Kind: domain.KindFrequencyWindow,
			FreqCount: &count, WindowMinutes: &window,
			RiskPoints: 30, Enabled: true, Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.SaveRule(ctx, "t1", freq); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}
		got, err := repo.GetRule(ctx, "t1", "rule-2")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if got.Threshold != nil {
			t.Errorf("expected nil threshold, got %v", got.Threshold)
		}
		if got.FreqCount == nil || *got.FreqCount != 5 || got.WindowMinutes == nil || *got.WindowMinutes != 60 {
			t.Errorf("frequency fields not preserved: %+v", got)
		}
	})
}

func TestUpsertAssessment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.SaveTransaction(ctx, "t1", testTx("tx-1", "acc", "rcp", 100, now)); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	first := &domain.Assessment{
		ID: "a-1", TxID: "tx-1", Score: 40, Level: domain.LevelMedium,
		Reasons: []string{"HIGH_AMOUNT"}, SnapshotVersion: "v1", AssessedAt: now,
	}
	if err := repo.UpsertAssessment(ctx, "t1", first); err != nil {
		t.Fatalf("UpsertAssessment failed: %v", err)
	}

	second := &domain.Assessment{
		ID: "a-2", TxID: "tx-1", Score: 90, Level: domain.LevelHigh,
		Reasons: []string{"HIGH_AMOUNT", domain.ReasonBlacklisted}, SnapshotVersion: "v2", AssessedAt: now.Add(time.Minute),
	}
	if err := repo.UpsertAssessment(ctx, "t1", second); err != nil {
		t.Fatalf("second UpsertAssessment failed: %v", err)
	}
	if second.ID != "a-1" {
		t.Errorf("expected replacement to keep id a-1, got %s", second.ID)
	}

	got, err := repo.GetAssessment(ctx, "t1", "tx-1")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got.Score != 90 || got.Level != domain.LevelHigh {
		t.Errorf("expected replaced assessment, got %d %s", got.Score, got.Level)
	}
	if len(got.Reasons) != 2 || got.Reasons[1] != domain.ReasonBlacklisted {
		t.Errorf("unexpected reasons %v", got.Reasons)
	}
}

func TestRecipientAggregationQueries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	tenant := "t1"

	txs := []*domain.Transaction{
		testTx("tx-1", "acc-1", "rcp-1", 30000, now),
		testTx("tx-2", "acc-2", "rcp-1", 25000, now),
		testTx("tx-3", "acc-3", "rcp-1", 100, now),
		testTx("tx-4", "acc-4", "rcp-2", 999, now),
	}
	for _, tx := range txs {
		if err := repo.SaveTransaction(ctx, tenant, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	levels := map[string]domain.RiskLevel{"tx-1": domain.LevelHigh, "tx-2": domain.LevelMedium, "tx-3": domain.LevelLow}
	for txID, level := range levels {
		a := &domain.Assessment{ID: "a-" + txID, TxID: txID, Level: level, Reasons: []string{}, SnapshotVersion: "v", AssessedAt: now}
		if err := repo.UpsertAssessment(ctx, tenant, a); err != nil {
			t.Fatalf("UpsertAssessment failed: %v", err)
		}
	}

	cases := []*domain.Case{
		{ID: "case-1", Category: domain.CategoryScam, Decision: domain.DecisionFraudConfirmed, CreatedAt: now},
		{ID: "case-2", Category: domain.CategoryFraudReport, CreatedAt: now},
		{ID: "case-3", Category: domain.CategoryDispute, Decision: domain.DecisionFraudConfirmed, CreatedAt: now},
	}
	for _, c := range cases {
		if err := repo.SaveCase(ctx, tenant, c); err != nil {
			t.Fatalf("SaveCase failed: %v", err)
		}
	}
	links := [][2]string{{"case-1", "tx-1"}, {"case-2", "tx-1"}, {"case-2", "tx-2"}, {"case-3", "tx-3"}, {"case-1", "tx-1"}}
	for _, l := range links {
		if err := repo.LinkCaseTransaction(ctx, tenant, l[0], l[1]); err != nil {
			t.Fatalf("LinkCaseTransaction failed: %v", err)
		}
	}

	t.Run("CountComplaints", func(t *testing.T) {
		n, err := repo.CountComplaints(ctx, tenant, "rcp-1")
		if err != nil {
			t.Fatalf("CountComplaints failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 complaints, got %d", n)
		}
	})

	t.Run("ReportedTransactionsAreDistinct", func(t *testing.T) {
		reported, err := repo.ListReportedTransactions(ctx, tenant, "rcp-1", domain.DefaultFraudCategories())
		if err != nil {
			t.Fatalf("ListReportedTransactions failed: %v", err)
		}
		if len(reported) != 2 {
			t.Fatalf("expected tx-1 and tx-2 once each, got %d", len(reported))
		}
		if reported[0].ID != "tx-1" || reported[1].ID != "tx-2" {
			t.Errorf("unexpected reported ids %s %s", reported[0].ID, reported[1].ID)
		}
	})

	t.Run("ConfirmedFraudCountsCasesOnce", func(t *testing.T) {
		n, err := repo.CountConfirmedFraudCases(ctx, tenant, "rcp-1")
		if err != nil {
			t.Fatalf("CountConfirmedFraudCases failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected case-1 and case-3, got %d", n)
		}
	})

	t.Run("ListAssessedRecipients", func(t *testing.T) {
		ids, err := repo.ListAssessedRecipients(ctx, tenant)
		if err != nil {
			t.Fatalf("ListAssessedRecipients failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != "rcp-1" {
			t.Errorf("expected [rcp-1], got %v", ids)
		}
	})
}

func TestBlacklistEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &domain.BlacklistEntry{ID: "bl-1", RecipientID: "rcp-1", Reason: "mule", CreatedBy: "admin-1", CreatedAt: now}
	if err := repo.InsertBlacklistEntry(ctx, "t1", entry); err != nil {
		t.Fatalf("InsertBlacklistEntry failed: %v", err)
	}

	t.Run("DuplicateRecipientConflicts", func(t *testing.T) {
		dup := &domain.BlacklistEntry{ID: "bl-2", RecipientID: "rcp-1", CreatedBy: "admin-2", CreatedAt: now}
		if err := repo.InsertBlacklistEntry(ctx, "t1", dup); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		entries, err := repo.ListBlacklistEntries(ctx, "t1")
		if err != nil {
			t.Fatalf("ListBlacklistEntries failed: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected exactly one entry, got %d", len(entries))
		}
	})

	t.Run("SameRecipientOtherTenant", func(t *testing.T) {
		other := &domain.BlacklistEntry{ID: "bl-3", RecipientID: "rcp-1", CreatedBy: "admin", CreatedAt: now}
		if err := repo.InsertBlacklistEntry(ctx, "t2", other); err != nil {
			t.Errorf("expected tenant-scoped uniqueness, got %v", err)
		}
	})

	t.Run("FindAndGet", func(t *testing.T) {
		found, err := repo.FindBlacklistEntry(ctx, "t1", "rcp-1")
		if err != nil {
			t.Fatalf("FindBlacklistEntry failed: %v", err)
		}
		if found.ID != "bl-1" || found.CreatedBy != "admin-1" {
			t.Errorf("unexpected entry %+v", found)
		}
		if _, err := repo.GetBlacklistEntry(ctx, "t1", "bl-1"); err != nil {
			t.Errorf("GetBlacklistEntry failed: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteBlacklistEntry(ctx, "t1", "bl-1"); err != nil {
			t.Fatalf("DeleteBlacklistEntry failed: %v", err)
		}
		if err := repo.DeleteBlacklistEntry(ctx, "t1", "bl-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
		if _, err := repo.FindBlacklistEntry(ctx, "t1", "rcp-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected recipient to be unlisted, got %v", err)
		}
	})

	t.Run("ConcurrentAddsHaveOneWinner", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.InsertBlacklistEntry(ctx, "t1", &domain.BlacklistEntry{
					ID: "race-" + string(rune('a'+i)), RecipientID: "rcp-race", CreatedBy: "admin", CreatedAt: now,
				})
			}(i)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 || conflicts != len(errs)-1 {
			t.Errorf("expected 1 winner and %d conflicts, got %d and %d", len(errs)-1, wins, conflicts)
		}
	})
}

func TestThresholdVersions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	th := domain.DefaultBlacklistThresholds()
	th.Version = 1
	th.UpdatedBy = "admin"
	th.UpdatedAt = time.Now().UTC()
	if err := repo.SaveThresholds(ctx, "t1", &th); err != nil {
		t.Fatalf("SaveThresholds failed: %v", err)
	}

	stale := th
	stale.MinComplaints = 9
	if err := repo.SaveThresholds(ctx, "t1", &stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for same version, got %v", err)
	}

	got, err := repo.GetThresholds(ctx, "t1")
	if err != nil {
		t.Fatalf("GetThresholds failed: %v", err)
	}
	if got.MinComplaints != 3 || !got.MinReportedAmount.Equal(decimal.NewFromInt(50000)) || got.Version != 1 {
		t.Errorf("unexpected thresholds %+v", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if got := repo.rebind(tt.input); got != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}
