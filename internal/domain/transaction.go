package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Channel is the payment channel a transaction went through.
type Channel string

const (
	ChannelCard         Channel = "CARD"
	ChannelBankTransfer Channel = "BANK_TRANSFER"
	ChannelEWallet      Channel = "E_WALLET"
	ChannelQRPayment    Channel = "QR_PAYMENT"
	ChannelATM          Channel = "ATM"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelCard, ChannelBankTransfer, ChannelEWallet, ChannelQRPayment, ChannelATM:
		return true
	}
	return false
}

// Transaction is a recorded payment. Immutable once stored.
type Transaction struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   Channel         `json:"channel"`

	// RecipientID is empty when the transaction has no recipient (e.g. ATM withdrawal).
	RecipientID string `json:"recipientId,omitempty"`
	Location    string `json:"location,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasRecipient reports whether the transaction names a recipient.
func (t *Transaction) HasRecipient() bool {
	return t.RecipientID != ""
}

// Validate checks the invariants every stored transaction must satisfy.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("%w: accountId is required", ErrValidation)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrValidation, t.Channel)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	return nil
}

// TransactionRequest is the API payload for recording a transaction.
type TransactionRequest struct {
	ID          string          `json:"id,omitempty"`
	AccountID   string          `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Channel     Channel         `json:"channel"`
	RecipientID string          `json:"recipientId,omitempty"`
	Location    string          `json:"location,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
// A missing timestamp defaults to now.
func (r *TransactionRequest) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	return &Transaction{
		ID:          r.ID,
		TenantID:    tenantID,
		AccountID:   r.AccountID,
		Amount:      r.Amount,
		Channel:     r.Channel,
		RecipientID: NormalizeRecipientID(r.RecipientID),
		Location:    r.Location,
		Timestamp:   ts,
		CreatedAt:   now,
	}
}
