package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind is the discriminator of the closed set of rule conditions.
type RuleKind string

const (
	// KindAmountThreshold fires when the transaction amount reaches a threshold.
	KindAmountThreshold RuleKind = "AMOUNT_THRESHOLD"

	// KindFrequencyWindow fires when an account makes too many transactions in a window.
	KindFrequencyWindow RuleKind = "FREQUENCY_WINDOW"
)

// Rule is an administrator-configured scoring rule as it is stored.
// Evaluation never mutates a rule.
type Rule struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId"`
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Kind        RuleKind `json:"kind"`

	// Amount threshold rules
	Threshold *decimal.Decimal `json:"threshold,omitempty"`

	// Frequency rules
	FreqCount     *int `json:"freqCount,omitempty"`
	WindowMinutes *int `json:"windowMinutes,omitempty"`

	RiskPoints int  `json:"riskPoints"`
	Enabled    bool `json:"enabled"`
	Version    int  `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Condition is the typed form of a rule's trigger. Implementations are
// AmountThreshold and FrequencyWindow; switch on them exhaustively.
type Condition interface {
	Kind() RuleKind
	condition()
}

// AmountThreshold fires when amount >= Threshold.
type AmountThreshold struct {
	Threshold decimal.Decimal
}

// FrequencyWindow fires when the account made at least Count transactions
// in the Window ending at the transaction timestamp.
type FrequencyWindow struct {
	Count  int
	Window time.Duration
}

func (AmountThreshold) Kind() RuleKind { return KindAmountThreshold }
func (AmountThreshold) condition()     {}
func (FrequencyWindow) Kind() RuleKind { return KindFrequencyWindow }
func (FrequencyWindow) condition()     {}

// MaxWindowMinutes caps frequency windows at one leap year.
const MaxWindowMinutes = 366 * 24 * 60

// Condition converts the stored rule into its typed condition.
// A rule missing the fields its kind requires returns ErrInvalidRule.
func (r *Rule) Condition() (Condition, error) {
	if r.RiskPoints < 0 {
		return nil, fmt.Errorf("%w: rule %s has negative risk points", ErrInvalidRule, r.Code)
	}

	switch r.Kind {
	case KindAmountThreshold:
		if r.Threshold == nil {
			return nil, fmt.Errorf("%w: rule %s has no threshold", ErrInvalidRule, r.Code)
		}
		if r.Threshold.IsNegative() {
			return nil, fmt.Errorf("%w: rule %s has a negative threshold", ErrInvalidRule, r.Code)
		}
		return AmountThreshold{Threshold: *r.Threshold}, nil

	case KindFrequencyWindow:
		if r.FreqCount == nil || r.WindowMinutes == nil {
			return nil, fmt.Errorf("%w: rule %s needs both count and window", ErrInvalidRule, r.Code)
		}
		if *r.FreqCount < 1 || *r.WindowMinutes < 1 {
			return nil, fmt.Errorf("%w: rule %s count and window must be positive", ErrInvalidRule, r.Code)
		}
		if *r.WindowMinutes > MaxWindowMinutes {
			return nil, fmt.Errorf("%w: rule %s window exceeds %d minutes", ErrInvalidRule, r.Code, MaxWindowMinutes)
		}
		return FrequencyWindow{
			Count:  *r.FreqCount,
			Window: time.Duration(*r.WindowMinutes) * time.Minute,
		}, nil

	default:
		return nil, fmt.Errorf("%w: rule %s has unknown kind %q", ErrInvalidRule, r.Code, r.Kind)
	}
}

// ScoringPolicy holds the fixed scoring constants. Defaults: bonus 50, MEDIUM from 40, HIGH from 70.
type ScoringPolicy struct {
	BlacklistBonus int `json:"blacklistBonus"`
	MediumFrom     int `json:"mediumFrom"`
	HighFrom       int `json:"highFrom"`
}

// DefaultScoringPolicy returns the documented defaults.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		BlacklistBonus: 50,
		MediumFrom:     40,
		HighFrom:       70,
	}
}

// RuleSnapshot is an immutable view of a tenant's active rules plus the scoring
// policy. Every evaluation receives one explicitly.
type RuleSnapshot struct {
	TenantID string        `json:"tenantId"`
	Version  string        `json:"version"`
	Rules    []*Rule       `json:"rules"`
	Policy   ScoringPolicy `json:"policy"`
	LoadedAt time.Time     `json:"loadedAt"`
}

// MaxWindow returns the largest frequency window among well-formed rules.
func (s *RuleSnapshot) MaxWindow() time.Duration {
	var widest time.Duration
	for _, r := range s.Rules {
		cond, err := r.Condition()
		if err != nil {
			continue
		}
		if fw, ok := cond.(FrequencyWindow); ok && fw.Window > widest {
			widest = fw.Window
		}
	}
	return widest
}
