package blacklist

import (
	"fmt"

	"github.com/opensource-finance/fraudwatch/internal/domain"
)

// Recommend applies the thresholds to a recipient's aggregates. Each criterion
// is independent and only fires on a positive aggregate, so a recipient with
// no history never qualifies. A listed recipient carries no reasons.
func Recommend(recipientID string, agg domain.RecipientAggregates, t domain.BlacklistThresholds, blacklisted bool) domain.Recommendation {
	rec := domain.Recommendation{
		RecipientID:          recipientID,
		IsAlreadyBlacklisted: blacklisted,
		Reasons:              []string{},
		RecipientAggregates:  agg,
	}
	if blacklisted {
		return rec
	}

	if agg.ComplaintCount > 0 && agg.ComplaintCount >= t.MinComplaints {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d complaints filed", agg.ComplaintCount))
	}
	if agg.TotalReportedAmount.IsPositive() && agg.TotalReportedAmount.GreaterThanOrEqual(t.MinReportedAmount) {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("total reported amount ≥ %s", t.MinReportedAmount.String()))
	}
	if agg.ConfirmedFraudCount > 0 && agg.ConfirmedFraudCount >= t.MinConfirmedFraud {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d confirmed fraud cases", agg.ConfirmedFraudCount))
	}
	return rec
}
