// Package scoring turns rule matches into risk assessments.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/rules"
	"github.com/opensource-finance/fraudwatch/internal/velocity"
)

// Processor computes an assessment from a transaction, its account history,
// a rule snapshot and the recipient's blacklist status. It has no side effects.
type Processor struct {
	engine *rules.Engine
}

// NewProcessor creates a processor backed by the CEL rule engine.
func NewProcessor(engine *rules.Engine) *Processor {
	return &Processor{engine: engine}
}

// Decision is a scored assessment plus the rule-level detail behind it.
type Decision struct {
	Assessment *domain.Assessment `json:"assessment"`
	Matches    []rules.Match      `json:"matches"`
	Skipped    []rules.Skipped    `json:"skipped,omitempty"`
}

// Score sums the points of every matched rule, adds the blacklist bonus and
// derives the level from the snapshot's policy.
// Reasons follow evaluation order with RECIPIENT_BLACKLISTED last.
func (p *Processor) Score(ctx context.Context, tx *domain.Transaction, history *velocity.History, snap *domain.RuleSnapshot, blacklisted bool) (*Decision, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	in := &rules.Input{
		TenantID: tx.TenantID,
		TxID:     tx.ID,
		Amount:   tx.Amount,
	}
	if history != nil {
		in.Count = history.Count
	} else {
		in.Count = velocity.NewHistory(tx, nil).Count
	}

	result, err := p.engine.Evaluate(ctx, snap, in)
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}

	score := 0
	reasons := make([]string, 0, len(result.Matches)+1)
	for _, m := range result.Matches {
		score += m.Points
		reasons = append(reasons, m.Code)
	}
	if blacklisted {
		score += snap.Policy.BlacklistBonus
		reasons = append(reasons, domain.ReasonBlacklisted)
	}

	return &Decision{
		Assessment: &domain.Assessment{
			TenantID:        tx.TenantID,
			TxID:            tx.ID,
			Score:           score,
			Level:           snap.Policy.LevelFor(score),
			Reasons:         reasons,
			SnapshotVersion: snap.Version,
			AssessedAt:      time.Now().UTC(),
		},
		Matches: result.Matches,
		Skipped: result.Skipped,
	}, nil
}
