package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
	"github.com/opensource-finance/fraudwatch/internal/velocity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SnapshotSource supplies the rule snapshot an evaluation runs against.
type SnapshotSource interface {
	Snapshot(ctx context.Context, tenantID string) (*domain.RuleSnapshot, error)
}

// BlacklistChecker reports blacklist membership.
type BlacklistChecker interface {
	Contains(ctx context.Context, tenantID, recipientID string) (bool, error)
}

// AssessmentEvent is published on TopicAssessmentCompleted and TopicHighRisk.
type AssessmentEvent struct {
	TxID        string           `json:"txId"`
	AccountID   string           `json:"accountId"`
	RecipientID string           `json:"recipientId,omitempty"`
	Score       int              `json:"score"`
	Level       domain.RiskLevel `json:"level"`
	Reasons     []string         `json:"reasons"`
}

// Evaluator scores stored transactions and persists their assessments.
type Evaluator struct {
	repo      domain.Repository
	snapshots SnapshotSource
	history   *velocity.Service
	blacklist BlacklistChecker
	processor *Processor
	bus       domain.EventBus
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewEvaluator wires an evaluator. b and m may be nil.
func NewEvaluator(repo domain.Repository, snapshots SnapshotSource, history *velocity.Service, blacklist BlacklistChecker, processor *Processor, b domain.EventBus, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		repo:      repo,
		snapshots: snapshots,
		history:   history,
		blacklist: blacklist,
		processor: processor,
		bus:       b,
		metrics:   m,
		tracer:    otel.Tracer("fraudwatch/scoring"),
	}
}

// Record stores a new transaction and evaluates it. An empty ID is generated.
func (e *Evaluator) Record(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.Assessment, error) {
	tx.RecipientID = domain.NormalizeRecipientID(tx.RecipientID)
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.TenantID = tenantID

	if err := e.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	return e.Evaluate(ctx, tenantID, tx.ID)
}

// Evaluate scores a stored transaction and replaces its assessment.
// Evaluating the same transaction twice against the same rules and blacklist
// yields the same score, level and reasons, and still one stored assessment.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID, txID string) (*domain.Assessment, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "scoring.Evaluate", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("tx_id", txID),
	))
	defer span.End()

	decision, tx, err := e.assess(ctx, tenantID, txID)
	if err != nil {
		e.fail(span, err)
		return nil, err
	}

	a := decision.Assessment
	a.ID = uuid.New().String()
	if err := e.repo.UpsertAssessment(ctx, tenantID, a); err != nil {
		err = fmt.Errorf("store assessment: %w", err)
		e.fail(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("score", a.Score),
		attribute.String("level", string(a.Level)),
		attribute.String("snapshot_version", a.SnapshotVersion),
	)
	e.metrics.ObserveEvaluation(string(a.Level), len(decision.Skipped), time.Since(start))

	slog.Info("transaction assessed",
		"tenant_id", tenantID,
		"tx_id", txID,
		"score", a.Score,
		"level", a.Level,
		"reasons", a.Reasons,
		"skipped_rules", len(decision.Skipped),
		"trace_id", span.SpanContext().TraceID().String(),
	)

	e.publish(ctx, tenantID, tx, a)
	return a, nil
}

// Assess scores a stored transaction without persisting anything.
func (e *Evaluator) Assess(ctx context.Context, tenantID, txID string) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.Assess")
	defer span.End()

	decision, _, err := e.assess(ctx, tenantID, txID)
	if err != nil {
		e.fail(span, err)
		return nil, err
	}
	return decision, nil
}

func (e *Evaluator) assess(ctx context.Context, tenantID, txID string) (*Decision, *domain.Transaction, error) {
	tx, err := e.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("transaction %s: %w", txID, err)
		}
		return nil, nil, fmt.Errorf("load transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, nil, err
	}

	snap, err := e.snapshots.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	history, err := e.history.Load(ctx, tenantID, tx, snap.MaxWindow())
	if err != nil {
		return nil, nil, err
	}

	blacklisted, err := e.blacklist.Contains(ctx, tenantID, tx.RecipientID)
	if err != nil {
		return nil, nil, err
	}

	decision, err := e.processor.Score(ctx, tx, history, snap, blacklisted)
	if err != nil {
		return nil, nil, err
	}
	return decision, tx, nil
}

func (e *Evaluator) publish(ctx context.Context, tenantID string, tx *domain.Transaction, a *domain.Assessment) {
	if e.bus == nil {
		return
	}

	evt := AssessmentEvent{
		TxID:        a.TxID,
		AccountID:   tx.AccountID,
		RecipientID: tx.RecipientID,
		Score:       a.Score,
		Level:       a.Level,
		Reasons:     a.Reasons,
	}

	if err := bus.PublishJSON(ctx, e.bus, tenantID, domain.TopicAssessmentCompleted, evt); err != nil {
		slog.Warn("failed to publish assessment", "tenant_id", tenantID, "tx_id", a.TxID, "error", err)
	}
	if a.Level == domain.LevelHigh {
		if err := bus.PublishJSON(ctx, e.bus, tenantID, domain.TopicHighRisk, evt); err != nil {
			slog.Warn("failed to publish high risk alert", "tenant_id", tenantID, "tx_id", a.TxID, "error", err)
		}
	}
}

func (e *Evaluator) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.EvaluationFailed(errorClass(err))
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
