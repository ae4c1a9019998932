package domain

import "time"

// RiskLevel is one of three ordered bands.
type RiskLevel string

const (
	LevelLow    RiskLevel = "LOW"
	LevelMedium RiskLevel = "MEDIUM"
	LevelHigh   RiskLevel = "HIGH"
)

// ReasonBlacklisted is the reason appended when the recipient is on the blacklist.
const ReasonBlacklisted = "RECIPIENT_BLACKLISTED"

// LevelFor derives the band for a score. Bands are checked high to low and
// are inclusive at their lower bound.
func (p ScoringPolicy) LevelFor(score int) RiskLevel {
	switch {
	case score >= p.HighFrom:
		return LevelHigh
	case score >= p.MediumFrom:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Assessment is the scored result for one transaction. At most one per transaction;
// re-evaluation replaces it.
type Assessment struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	TxID            string    `json:"txId"`
	Score           int       `json:"score"`
	Level           RiskLevel `json:"level"`
	Reasons         []string  `json:"reasons"`
	SnapshotVersion string    `json:"snapshotVersion"`
	AssessedAt      time.Time `json:"assessedAt"`
}

// IsComplaint reports whether the assessment counts as a complaint against the recipient.
func (a *Assessment) IsComplaint() bool {
	return a.Level == LevelMedium || a.Level == LevelHigh
}
