// Package worker evaluates transactions announced on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/domain"
)

// ErrNotConsumed is returned by Enqueue when no subscription of this worker
// would receive the transaction.
var ErrNotConsumed = errors.New("no worker consumes tenant")

// Evaluator records and scores transactions.
type Evaluator interface {
	Record(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.Assessment, error)
	Evaluate(ctx context.Context, tenantID, txID string) (*domain.Assessment, error)
}

// Worker consumes TopicTransactionRecorded and evaluates each transaction.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	tenants       map[string]struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to consume. Empty subscribes to the
	// "_global" tenant, whose messages must name their tenant.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		tenants:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes for the given tenants. A tenant that fails to subscribe
// is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(globalTenant)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	slog.Info("workers started", "tenant_count", len(cfg.TenantIDs))
	return nil
}

const globalTenant = "_global"

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionRecorded, func(ctx context.Context, msg *domain.Message) error {
		return w.handle(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.tenants[tenantID] = struct{}{}
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionRecorded,
	)
	return nil
}

// TransactionMessage is the payload of TopicTransactionRecorded. It carries
// either a new transaction to record, or the id of a stored one to re-evaluate.
type TransactionMessage struct {
	TenantID    string              `json:"tenantId,omitempty"`
	TxID        string              `json:"txId,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// Enqueue publishes tx for asynchronous recording. It goes to the tenant's own
// subscription when there is one, otherwise to "_global" naming its tenant.
// An empty ID is generated so the caller can look the transaction up later.
func (w *Worker) Enqueue(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	w.mu.Lock()
	_, direct := w.tenants[tx.TenantID]
	_, global := w.tenants[globalTenant]
	w.mu.Unlock()

	msg := TransactionMessage{Transaction: tx}
	topicTenant := tx.TenantID
	switch {
	case direct:
	case global:
		topicTenant = globalTenant
		msg.TenantID = tx.TenantID
	default:
		return fmt.Errorf("%w %q", ErrNotConsumed, tx.TenantID)
	}

	return bus.PublishJSON(ctx, w.bus, topicTenant, domain.TopicTransactionRecorded, msg)
}

func (w *Worker) handle(ctx context.Context, tenantID string, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()
	a, err := w.process(ctx, tenantID, msg)
	if err != nil {
		w.failed.Add(1)
		slog.Error("transaction evaluation failed",
			"tenant_id", tenantID,
			"message_id", msg.ID,
			"retryable", domain.IsRetryable(err),
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Debug("transaction processed",
		"tenant_id", tenantID,
		"tx_id", a.TxID,
		"level", a.Level,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) process(ctx context.Context, tenantID string, msg *domain.Message) (*domain.Assessment, error) {
	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		return nil, fmt.Errorf("%w: malformed transaction message: %v", domain.ErrValidation, err)
	}

	if tenantID == globalTenant {
		if txMsg.TenantID == "" {
			return nil, fmt.Errorf("%w: tenantId is required on global messages", domain.ErrValidation)
		}
		tenantID = txMsg.TenantID
	}

	switch {
	case txMsg.Transaction != nil:
		return w.evaluator.Record(ctx, tenantID, txMsg.Transaction)
	case txMsg.TxID != "":
		return w.evaluator.Evaluate(ctx, tenantID, txMsg.TxID)
	default:
		return nil, fmt.Errorf("%w: message names no transaction", domain.ErrValidation)
	}
}

// Stop unsubscribes and waits for in-flight evaluations.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.tenants = make(map[string]struct{})
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         uint64   `json:"processed"`
	Failed            uint64   `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
