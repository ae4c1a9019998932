// Package rules stores scoring rules and evaluates them against transactions
// with CEL.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// Engine compiles rule conditions into CEL programs and evaluates snapshots.
// Compiled programs are shared across snapshots, keyed by expression.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// WindowCounter returns how many transactions the account made in the window
// ending at the evaluated transaction, the transaction itself included.
type WindowCounter func(window time.Duration) int

// Input is the transaction context a snapshot is evaluated against.
type Input struct {
	TenantID string
	TxID     string
	Amount   decimal.Decimal
	Count    WindowCounter
}

// Match is a rule whose condition held.
type Match struct {
	RuleID string `json:"ruleId"`
	Code   string `json:"code"`
	Points int    `json:"points"`
}

// Skipped is a rule that could not be evaluated.
type Skipped struct {
	RuleID string `json:"ruleId"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// Result holds matches in evaluation order.
type Result struct {
	Matches []Match
	Skipped []Skipped
}

// NewEngine creates a new rule evaluation engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount_scaled", cel.IntType),
		cel.Variable("window_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate runs every enabled rule of the snapshot against the input.
// Amount rules run before frequency rules; within a kind rules run by code then id.
// Malformed rules are skipped and reported, never fatal.
func (e *Engine) Evaluate(ctx context.Context, snap *domain.RuleSnapshot, in *Input) (*Result, error) {
	if snap == nil || in == nil {
		return nil, fmt.Errorf("snapshot and input are required")
	}

	ordered, skipped := e.order(snap)
	result := &Result{Skipped: skipped}

	amountScaled := scaleAmount(in.Amount)

	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vars := map[string]any{"amount_scaled": amountScaled, "window_count": int64(0)}
		if fw, ok := p.cond.(domain.FrequencyWindow); ok {
			if in.Count == nil {
				result.Skipped = append(result.Skipped, skip(p.rule, fmt.Errorf("no window counter for frequency rule")))
				continue
			}
			vars["window_count"] = int64(in.Count(fw.Window))
		}

		out, _, err := p.program.Eval(vars)
		if err != nil {
			result.Skipped = append(result.Skipped, skip(p.rule, err))
			continue
		}
		if out == types.True {
			result.Matches = append(result.Matches, Match{
				RuleID: p.rule.ID,
				Code:   p.rule.Code,
				Points: p.rule.RiskPoints,
			})
		}
	}

	for _, s := range result.Skipped {
		slog.Warn("rule skipped",
			"tenant_id", in.TenantID,
			"tx_id", in.TxID,
			"rule_id", s.RuleID,
			"code", s.Code,
			"error", s.Error,
		)
	}

	return result, nil
}

type prepared struct {
	rule    *domain.Rule
	cond    domain.Condition
	program cel.Program
}

func (e *Engine) order(snap *domain.RuleSnapshot) ([]prepared, []Skipped) {
	var ready []prepared
	var skipped []Skipped

	for _, rule := range snap.Rules {
		if !rule.Enabled {
			continue
		}
		cond, err := rule.Condition()
		if err != nil {
			skipped = append(skipped, skip(rule, err))
			continue
		}
		program, err := e.program(expression(cond))
		if err != nil {
			skipped = append(skipped, skip(rule, err))
			continue
		}
		ready = append(ready, prepared{rule: rule, cond: cond, program: program})
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if ka, kb := kindRank(a.cond), kindRank(b.cond); ka != kb {
			return ka < kb
		}
		if a.rule.Code != b.rule.Code {
			return a.rule.Code < b.rule.Code
		}
		return a.rule.ID < b.rule.ID
	})

	return ready, skipped
}

func kindRank(c domain.Condition) int {
	switch c.(type) {
	case domain.AmountThreshold:
		return 0
	default:
		return 1
	}
}

// expression renders a condition as CEL source.
func expression(c domain.Condition) string {
	switch c := c.(type) {
	case domain.AmountThreshold:
		return fmt.Sprintf("amount_scaled >= %d", scaleAmount(c.Threshold))
	case domain.FrequencyWindow:
		return fmt.Sprintf("window_count >= %d", c.Count)
	default:
		return ""
	}
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile %q: %w", domain.ErrInvalidRule, expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression %q must return bool, got %s", domain.ErrInvalidRule, expr, ast.OutputType())
	}

	p, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = p
	e.mu.Unlock()
	return p, nil
}

// ProgramCount returns how many distinct compiled programs are cached.
func (e *Engine) ProgramCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

var maxScaled = decimal.NewFromInt(math.MaxInt64)

// scaleAmount converts a non-negative amount into 1/10^AmountScale units,
// truncating finer digits. For thresholds with at most AmountScale places
// truncation keeps amount >= threshold exact. Amounts beyond int64 saturate.
func scaleAmount(d decimal.Decimal) int64 {
	scaled := d.Shift(AmountScale).Truncate(0)
	if scaled.GreaterThanOrEqual(maxScaled) {
		return math.MaxInt64
	}
	return scaled.IntPart()
}

func skip(rule *domain.Rule, err error) Skipped {
	return Skipped{RuleID: rule.ID, Code: rule.Code, Error: err.Error()}
}
