// Package recipient computes historical risk signals per payment recipient.
package recipient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Aggregator reads complaint, reported amount and confirmed fraud totals.
// Every read shares one deadline; a result is either complete or an error.
type Aggregator struct {
	repo       domain.Repository
	categories []string
	timeout    time.Duration
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// NewAggregator creates an aggregator. Empty categories fall back to the
// default fraud categories; a non-positive timeout means 5s.
func NewAggregator(repo domain.Repository, categories []string, timeout time.Duration, m *metrics.Metrics) *Aggregator {
	if len(categories) == 0 {
		categories = domain.DefaultFraudCategories()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		repo:       repo,
		categories: categories,
		timeout:    timeout,
		metrics:    m,
		tracer:     otel.Tracer("fraudwatch/recipient"),
	}
}

// Aggregate returns the recipient's aggregates. A recipient with no history
// gets all zeros. A deadline overrun returns ErrStoreTimeout.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID, recipientID string) (domain.RecipientAggregates, error) {
	var zero domain.RecipientAggregates
	recipientID = domain.NormalizeRecipientID(recipientID)
	if recipientID == "" {
		return zero, fmt.Errorf("%w: recipientId is required", domain.ErrValidation)
	}

	ctx, span := a.tracer.Start(ctx, "recipient.Aggregate", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("recipient_id", recipientID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	agg, err := a.aggregate(ctx, tenantID, recipientID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreTimeout) {
			err = fmt.Errorf("aggregate %s: %w: %w", recipientID, domain.ErrStoreTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.AggregationDone(outcome(err))
		return zero, err
	}

	span.SetAttributes(
		attribute.Int("complaints", agg.ComplaintCount),
		attribute.String("reported_amount", agg.TotalReportedAmount.String()),
		attribute.Int("confirmed_fraud", agg.ConfirmedFraudCount),
	)
	a.metrics.AggregationDone("ok")
	return agg, nil
}

func (a *Aggregator) aggregate(ctx context.Context, tenantID, recipientID string) (domain.RecipientAggregates, error) {
	var agg domain.RecipientAggregates

	complaints, err := a.repo.CountComplaints(ctx, tenantID, recipientID)
	if err != nil {
		return agg, fmt.Errorf("count complaints: %w", err)
	}

	reported, err := a.repo.ListReportedTransactions(ctx, tenantID, recipientID, a.categories)
	if err != nil {
		return agg, fmt.Errorf("sum reported amount: %w", err)
	}

	confirmed, err := a.repo.CountConfirmedFraudCases(ctx, tenantID, recipientID)
	if err != nil {
		return agg, fmt.Errorf("count confirmed fraud: %w", err)
	}

	// The store returns each transaction once, however many cases link it.
	total := decimal.Zero
	for _, tx := range reported {
		total = total.Add(tx.Amount)
	}

	agg.ComplaintCount = complaints
	agg.TotalReportedAmount = total
	agg.ConfirmedFraudCount = confirmed
	return agg, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrStoreTimeout):
		return "timeout"
	default:
		return "error"
	}
}
