package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/recipient"
	"github.com/opensource-finance/fraudwatch/internal/repository"
	"github.com/shopspring/decimal"
)

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "blacklist.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newService(t *testing.T, repo domain.Repository) *Service {
	t.Helper()
	agg := recipient.NewAggregator(repo, nil, time.Second, nil)
	return NewService(repo, agg, NewRegistry(repo, nil, nil), NewThresholdStore(repo), nil, 4, time.Second)
}

// assessed records a transaction to recipientID with a MEDIUM assessment.
func assessed(t *testing.T, repo domain.Repository, txID, recipientID, amount string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID: txID, AccountID: "acc-1", Amount: decimal.RequireFromString(amount),
		Channel: domain.ChannelBankTransfer, RecipientID: recipientID, Timestamp: now, CreatedAt: now,
	}
	if err := repo.SaveTransaction(ctx, "t1", tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	a := &domain.Assessment{ID: "a-" + txID, TxID: txID, Score: 40, Level: domain.LevelMedium, Reasons: []string{"X"}, SnapshotVersion: "v", AssessedAt: now}
	if err := repo.UpsertAssessment(ctx, "t1", a); err != nil {
		t.Fatalf("UpsertAssessment failed: %v", err)
	}
}

func reported(t *testing.T, repo domain.Repository, caseID, decision string, txIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.SaveCase(ctx, "t1", &domain.Case{ID: caseID, Category: domain.CategoryScam, Decision: decision, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveCase failed: %v", err)
	}
	for _, id := range txIDs {
		if err := repo.LinkCaseTransaction(ctx, "t1", caseID, id); err != nil {
			t.Fatalf("LinkCaseTransaction failed: %v", err)
		}
	}
}

func thresholds(complaints int, amount string, confirmed int) domain.BlacklistThresholds {
	return domain.BlacklistThresholds{
		MinComplaints:     complaints,
		MinReportedAmount: decimal.RequireFromString(amount),
		MinConfirmedFraud: confirmed,
	}
}

func TestRecommend(t *testing.T) {
	th := thresholds(3, "50000", 1)

	t.Run("OnlyAmountCriterion", func(t *testing.T) {
		agg := domain.RecipientAggregates{ComplaintCount: 2, TotalReportedAmount: decimal.NewFromInt(60000)}
		rec := Recommend("rcp-1", agg, th, false)
		if len(rec.Reasons) != 1 || rec.Reasons[0] != "total reported amount ≥ 50000" {
			t.Fatalf("expected single amount reason, got %q", rec.Reasons)
		}
		if rec.Status() != domain.StatusRecommended {
			t.Errorf("expected RECOMMENDED, got %s", rec.Status())
		}
		if rec.ComplaintCount != 2 {
			t.Errorf("expected aggregates carried through, got %+v", rec.RecipientAggregates)
		}
	})

	t.Run("AllCriteriaInOrder", func(t *testing.T) {
		agg := domain.RecipientAggregates{ComplaintCount: 4, TotalReportedAmount: decimal.NewFromInt(50000), ConfirmedFraudCount: 2}
		rec := Recommend("rcp-1", agg, th, false)
		want := []string{"4 complaints filed", "total reported amount ≥ 50000", "2 confirmed fraud cases"}
		if len(rec.Reasons) != len(want) {
			t.Fatalf("expected %d reasons, got %q", len(want), rec.Reasons)
		}
		for i := range want {
			if rec.Reasons[i] != want[i] {
				t.Errorf("reason %d: expected %q, got %q", i, want[i], rec.Reasons[i])
			}
		}
	})

	t.Run("ZeroAggregatesNeverQualify", func(t *testing.T) {
		for _, th := range []domain.BlacklistThresholds{th, thresholds(0, "0", 0), thresholds(-1, "-5", -1)} {
			rec := Recommend("rcp-1", domain.RecipientAggregates{}, th, false)
			if rec.Reasons == nil || len(rec.Reasons) != 0 {
				t.Errorf("thresholds %+v: expected empty reasons, got %#v", th, rec.Reasons)
			}
			if rec.Status() != domain.StatusUnlisted {
				t.Errorf("expected UNLISTED, got %s", rec.Status())
			}
		}
	})

	t.Run("AlreadyBlacklisted", func(t *testing.T) {
		agg := domain.RecipientAggregates{ComplaintCount: 10, TotalReportedAmount: decimal.NewFromInt(1e6), ConfirmedFraudCount: 3}
		rec := Recommend("rcp-1", agg, th, true)
		if len(rec.Reasons) != 0 {
			t.Errorf("expected no reasons for listed recipient, got %q", rec.Reasons)
		}
		if rec.Recommended() || rec.Status() != domain.StatusBlacklisted {
			t.Errorf("expected BLACKLISTED and not recommended, got %s", rec.Status())
		}
	})
}

func TestThresholdStore(t *testing.T) {
	repo := newRepo(t)
	store := NewThresholdStore(repo)
	ctx := context.Background()

	t.Run("DefaultsWhenUnset", func(t *testing.T) {
		got, err := store.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.MinComplaints != 3 || !got.MinReportedAmount.Equal(decimal.NewFromInt(50000)) || got.MinConfirmedFraud != 1 {
			t.Errorf("unexpected defaults: %+v", got)
		}
		if got.Version != 0 {
			t.Errorf("expected version 0, got %d", got.Version)
		}
	})

	t.Run("SaveBumpsVersion", func(t *testing.T) {
		saved, err := store.Save(ctx, "t1", thresholds(5, "1000.50", 2), "admin-1")
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if saved.Version != 1 {
			t.Errorf("expected version 1, got %d", saved.Version)
		}
		got, err := store.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.MinComplaints != 5 || !got.MinReportedAmount.Equal(decimal.RequireFromString("1000.5")) || got.UpdatedBy != "admin-1" {
			t.Errorf("unexpected stored thresholds: %+v", got)
		}
	})

	t.Run("StaleVersion", func(t *testing.T) {
		stale := thresholds(6, "1000", 1)
		stale.Version = 7
		if _, err := store.Save(ctx, "t1", stale, "admin-2"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, th := range []domain.BlacklistThresholds{thresholds(0, "1", 1), thresholds(1, "0", 1), thresholds(1, "1", 0)} {
			if _, err := store.Save(ctx, "t1", th, "admin-1"); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("thresholds %+v: expected ErrValidation, got %v", th, err)
			}
		}
	})
}

func TestRegistry(t *testing.T) {
	repo := newRepo(t)
	b := bus.NewChannelBus(16)
	defer b.Close()
	reg := NewRegistry(repo, b, nil)
	ctx := context.Background()

	events := make(chan domain.BlacklistEvent, 4)
	if _, err := b.Subscribe(ctx, "t1", domain.TopicBlacklistChanged, func(ctx context.Context, msg *domain.Message) error {
		var evt domain.BlacklistEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return err
		}
		events <- evt
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	entry, err := reg.Add(ctx, "t1", "rcp-9", "mule account", "analyst-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	t.Run("Contains", func(t *testing.T) {
		ok, err := reg.Contains(ctx, "t1", "rcp-9")
		if err != nil || !ok {
			t.Errorf("expected listed, got %v %v", ok, err)
		}
		ok, _ = reg.Contains(ctx, "t2", "rcp-9")
		if ok {
			t.Error("entry leaked across tenants")
		}
		ok, _ = reg.Contains(ctx, "t1", "")
		if ok {
			t.Error("empty recipient must never be listed")
		}
		ok, _ = reg.Contains(ctx, "t1", " rcp-9\t")
		if !ok {
			t.Error("expected padded recipient id to match the stored entry")
		}
	})

	t.Run("DuplicateAdd", func(t *testing.T) {
		if _, err := reg.Add(ctx, "t1", "rcp-9", "again", "analyst-2"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if _, err := reg.Add(ctx, "t1", "  rcp-9 ", "again", "analyst-2"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict for padded id, got %v", err)
		}
	})

	t.Run("RequiresActor", func(t *testing.T) {
		if _, err := reg.Add(ctx, "t1", "rcp-10", "", ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := reg.Remove(ctx, "t1", entry.ID, "admin-1"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if ok, _ := reg.Contains(ctx, "t1", "rcp-9"); ok {
			t.Error("expected recipient to be unlisted")
		}
		if err := reg.Remove(ctx, "t1", entry.ID, "admin-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second remove, got %v", err)
		}
	})

	t.Run("Events", func(t *testing.T) {
		var actions []string
		timeout := time.After(time.Second)
		for len(actions) < 2 {
			select {
			case evt := <-events:
				actions = append(actions, evt.Action)
			case <-timeout:
				t.Fatalf("expected 2 events, got %v", actions)
			}
		}
		if actions[0] != "added" || actions[1] != "removed" {
			t.Errorf("unexpected event order: %v", actions)
		}
	})

	t.Run("ConcurrentAddSingleWinner", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.Add(ctx, "t1", "rcp-race", "race", "analyst-1")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 || conflicts != 7 {
			t.Errorf("expected 1 winner and 7 conflicts, got %d and %d", wins, conflicts)
		}
	})
}

func TestService(t *testing.T) {
	repo := newRepo(t)
	svc := newService(t, repo)
	ctx := context.Background()

	if _, err := svc.thresholds.Save(ctx, "t1", thresholds(3, "50000", 1), "admin-1"); err != nil {
		t.Fatalf("Save thresholds failed: %v", err)
	}

	// rcp-a: two complaints totalling 60000, no confirmed fraud.
	assessed(t, repo, "tx-a1", "rcp-a", "30000")
	assessed(t, repo, "tx-a2", "rcp-a", "30000")
	reported(t, repo, "case-a", "", "tx-a1", "tx-a2")

	// rcp-b: assessed but never reported.
	assessed(t, repo, "tx-b1", "rcp-b", "100")

	// rcp-c: listed already.
	assessed(t, repo, "tx-c1", "rcp-c", "100")
	if _, err := svc.registry.Add(ctx, "t1", "rcp-c", "known", "admin-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	t.Run("Recommendation", func(t *testing.T) {
		rec, err := svc.Recommendation(ctx, "t1", "rcp-a")
		if err != nil {
			t.Fatalf("Recommendation failed: %v", err)
		}
		if len(rec.Reasons) != 1 || rec.Reasons[0] != "total reported amount ≥ 50000" {
			t.Errorf("expected single amount reason, got %q", rec.Reasons)
		}
		if rec.ComplaintCount != 2 || !rec.TotalReportedAmount.Equal(decimal.NewFromInt(60000)) {
			t.Errorf("unexpected aggregates: %+v", rec.RecipientAggregates)
		}
	})

	t.Run("UnknownRecipient", func(t *testing.T) {
		rec, err := svc.Recommendation(ctx, "t1", "rcp-none")
		if err != nil {
			t.Fatalf("Recommendation failed: %v", err)
		}
		if len(rec.Reasons) != 0 || rec.IsAlreadyBlacklisted {
			t.Errorf("expected empty recommendation, got %+v", rec)
		}
	})

	t.Run("Listing", func(t *testing.T) {
		recs, err := svc.Recommendations(ctx, "t1", false)
		if err != nil {
			t.Fatalf("Recommendations failed: %v", err)
		}
		if len(recs) != 2 || recs[0].RecipientID != "rcp-a" || recs[1].RecipientID != "rcp-c" {
			t.Fatalf("expected rcp-a and rcp-c, got %d entries", len(recs))
		}
		if !recs[1].IsAlreadyBlacklisted {
			t.Error("expected rcp-c to be flagged as listed")
		}

		all, err := svc.Recommendations(ctx, "t1", true)
		if err != nil {
			t.Fatalf("Recommendations failed: %v", err)
		}
		if len(all) != 3 || all[1].RecipientID != "rcp-b" {
			t.Errorf("expected all three recipients sorted, got %d", len(all))
		}
	})

	t.Run("ListingDoesNotMutate", func(t *testing.T) {
		if ok, _ := svc.registry.Contains(ctx, "t1", "rcp-a"); ok {
			t.Error("recommendation must not list the recipient")
		}
	})

	t.Run("Promote", func(t *testing.T) {
		if _, err := svc.Promote(ctx, "t1", "rcp-a", "", ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation without actor, got %v", err)
		}

		entry, err := svc.Promote(ctx, "t1", "rcp-a", "analyst-7", "")
		if err != nil {
			t.Fatalf("Promote failed: %v", err)
		}
		if entry.Reason != "total reported amount ≥ 50000" || entry.CreatedBy != "analyst-7" {
			t.Errorf("unexpected entry: %+v", entry)
		}

		rec, err := svc.Recommendation(ctx, "t1", "rcp-a")
		if err != nil {
			t.Fatalf("Recommendation failed: %v", err)
		}
		if !rec.IsAlreadyBlacklisted || len(rec.Reasons) != 0 {
			t.Errorf("expected listed recipient with no reasons, got %+v", rec)
		}

		if _, err := svc.Promote(ctx, "t1", "rcp-a", "analyst-7", "again"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if _, err := svc.Promote(ctx, "t1", "rcp-a", "analyst-7", ""); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})
}

// stalledRepo blocks blacklist lookups until the caller's deadline.
type stalledRepo struct {
	domain.Repository
}

func (r stalledRepo) FindBlacklistEntry(ctx context.Context, tenantID, recipientID string) (*domain.BlacklistEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type emptyAggregator struct{}

func (emptyAggregator) Aggregate(ctx context.Context, tenantID, recipientID string) (domain.RecipientAggregates, error) {
	return domain.RecipientAggregates{}, nil
}

func TestRecommendationReadTimeout(t *testing.T) {
	repo := stalledRepo{newRepo(t)}
	svc := NewService(repo, emptyAggregator{}, NewRegistry(repo, nil, nil), NewThresholdStore(repo), nil, 1, 50*time.Millisecond)

	start := time.Now()
	_, err := svc.Recommendation(context.Background(), "t1", "rcp-a")
	if !errors.Is(err, domain.ErrStoreTimeout) || !domain.IsRetryable(err) {
		t.Fatalf("expected retryable ErrStoreTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("recommendation was not bounded, took %v", elapsed)
	}
}
