package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeRecipientID is the single form recipient ids are stored, listed
// and looked up in.
func NormalizeRecipientID(id string) string {
	return strings.TrimSpace(id)
}

// BlacklistEntry is the authoritative record that a recipient is banned.
type BlacklistEntry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	RecipientID string    `json:"recipientId"`
	Reason      string    `json:"reason,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BlacklistThresholds are the admin-configured recommendation triggers.
// Each minimum is an independent trigger.
type BlacklistThresholds struct {
	TenantID          string          `json:"tenantId,omitempty"`
	MinComplaints     int             `json:"minComplaints"`
	MinReportedAmount decimal.Decimal `json:"minReportedAmount"`
	MinConfirmedFraud int             `json:"minConfirmedFraud"`
	Version           int             `json:"version"`
	UpdatedBy         string          `json:"updatedBy,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt,omitempty"`
}

// DefaultBlacklistThresholds applies until an administrator saves thresholds.
func DefaultBlacklistThresholds() BlacklistThresholds {
	return BlacklistThresholds{
		MinComplaints:     3,
		MinReportedAmount: decimal.NewFromInt(50000),
		MinConfirmedFraud: 1,
	}
}

// Validate checks the thresholds are usable triggers.
func (t *BlacklistThresholds) Validate() error {
	if t.MinComplaints < 1 {
		return fmt.Errorf("%w: minComplaints must be at least 1", ErrValidation)
	}
	if !t.MinReportedAmount.IsPositive() {
		return fmt.Errorf("%w: minReportedAmount must be positive", ErrValidation)
	}
	if t.MinConfirmedFraud < 1 {
		return fmt.Errorf("%w: minConfirmedFraud must be at least 1", ErrValidation)
	}
	return nil
}

// RecipientAggregates are the historical signals against one recipient.
type RecipientAggregates struct {
	ComplaintCount      int             `json:"complaintCount"`
	TotalReportedAmount decimal.Decimal `json:"totalReportedAmount"`
	ConfirmedFraudCount int             `json:"confirmedFraudCount"`
}

// RecipientStatus is the logical lifecycle of a recipient. It is never stored.
type RecipientStatus string

const (
	StatusUnlisted    RecipientStatus = "UNLISTED"
	StatusRecommended RecipientStatus = "RECOMMENDED"
	StatusBlacklisted RecipientStatus = "BLACKLISTED"
)

// Recommendation is the computed advisory signal for one recipient.
type Recommendation struct {
	RecipientID          string   `json:"recipientId"`
	IsAlreadyBlacklisted bool     `json:"isAlreadyBlacklisted"`
	Reasons              []string `json:"reasons"`
	RecipientAggregates
}

// Recommended reports whether the recipient meets at least one criterion and is not yet listed.
func (r *Recommendation) Recommended() bool {
	return !r.IsAlreadyBlacklisted && len(r.Reasons) > 0
}

// Status derives the lifecycle state from the current data.
func (r *Recommendation) Status() RecipientStatus {
	switch {
	case r.IsAlreadyBlacklisted:
		return StatusBlacklisted
	case len(r.Reasons) > 0:
		return StatusRecommended
	default:
		return StatusUnlisted
	}
}
