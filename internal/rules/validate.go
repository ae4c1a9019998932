package rules

import (
	"fmt"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places amounts are scaled by before
// CEL compares them as integers. Thresholds may not be finer than this.
const AmountScale = 4

// maxThreshold keeps scaled thresholds inside int64.
var maxThreshold = decimal.New(1, 14)

// Validate checks an administrator-submitted rule before it is stored.
// Errors wrap domain.ErrInvalidRule.
func Validate(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrInvalidRule)
	}
	if rule.Code == "" {
		return fmt.Errorf("%w: code is required", domain.ErrInvalidRule)
	}

	cond, err := rule.Condition()
	if err != nil {
		return err
	}

	switch c := cond.(type) {
	case domain.AmountThreshold:
		if !c.Threshold.Equal(c.Threshold.Truncate(AmountScale)) {
			return fmt.Errorf("%w: rule %s threshold has more than %d decimal places", domain.ErrInvalidRule, rule.Code, AmountScale)
		}
		if c.Threshold.GreaterThanOrEqual(maxThreshold) {
			return fmt.Errorf("%w: rule %s threshold is out of range", domain.ErrInvalidRule, rule.Code)
		}
		if rule.FreqCount != nil || rule.WindowMinutes != nil {
			return fmt.Errorf("%w: amount rule %s must not set count or window", domain.ErrInvalidRule, rule.Code)
		}
	case domain.FrequencyWindow:
		if rule.Threshold != nil {
			return fmt.Errorf("%w: frequency rule %s must not set a threshold", domain.ErrInvalidRule, rule.Code)
		}
	}

	return nil
}
