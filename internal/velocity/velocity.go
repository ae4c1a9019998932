// Package velocity provides per-account transaction frequency over time windows.
package velocity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
)

// Service loads account history for frequency rules.
type Service struct {
	repo domain.Repository
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// History is the account's transactions in the widest window ending at the
// evaluated transaction. It always contains that transaction.
type History struct {
	at  time.Time
	txs []*domain.Transaction
}

// Load fetches the account's transactions with timestamps in [tx.Timestamp-window, tx.Timestamp].
func (s *Service) Load(ctx context.Context, tenantID string, tx *domain.Transaction, window time.Duration) (*History, error) {
	if tenantID == "" || tx == nil || tx.AccountID == "" {
		return nil, fmt.Errorf("%w: tenantID and account are required", domain.ErrValidation)
	}

	var txs []*domain.Transaction
	if window > 0 {
		var err error
		txs, err = s.repo.GetAccountTransactions(ctx, tenantID, tx.AccountID, tx.Timestamp.Add(-window), tx.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("load account history: %w", err)
		}
	}

	return NewHistory(tx, txs), nil
}

// NewHistory builds a history from already loaded transactions. Duplicates and
// other accounts are dropped; the evaluated transaction is always present.
func NewHistory(tx *domain.Transaction, txs []*domain.Transaction) *History {
	seen := make(map[string]struct{}, len(txs)+1)
	out := make([]*domain.Transaction, 0, len(txs)+1)

	for _, t := range append([]*domain.Transaction{tx}, txs...) {
		if t.AccountID != tx.AccountID {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return &History{at: tx.Timestamp, txs: out}
}

// Count returns how many transactions fall in [at-window, at]. Never less than one.
func (h *History) Count(window time.Duration) int {
	from := h.at.Add(-window)
	n := 0
	for _, t := range h.txs {
		if !t.Timestamp.Before(from) && !t.Timestamp.After(h.at) {
			n++
		}
	}
	return n
}

// Len returns the number of distinct transactions loaded.
func (h *History) Len() int {
	return len(h.txs)
}
