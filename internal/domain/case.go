package domain

import "time"

// Case is a fraud case owned by the case-management application.
// The engine only reads cases; the write methods exist for that application and for seeding.
type Case struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Category  string    `json:"category"`
	Decision  string    `json:"decision,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Case categories and final decisions known to the engine.
const (
	CategoryFraudReport     = "FRAUD_REPORT"
	CategoryScam            = "SCAM"
	CategoryAccountTakeover = "ACCOUNT_TAKEOVER"
	CategoryDispute         = "DISPUTE"
	CategoryInquiry         = "INQUIRY"

	DecisionFraudConfirmed = "FRAUD_CONFIRMED"
	DecisionNotFraud       = "NOT_FRAUD"
	DecisionInconclusive   = "INCONCLUSIVE"
)

// DefaultFraudCategories are the case categories that count as fraud-related reporting.
func DefaultFraudCategories() []string {
	return []string{CategoryFraudReport, CategoryScam, CategoryAccountTakeover}
}
