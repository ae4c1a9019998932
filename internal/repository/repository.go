// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for calls missing a tenant or other required argument.
var ErrInvalidInput = fmt.Errorf("%w: invalid input", domain.ErrValidation)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, tenant_id, account_id, amount, channel, recipient_id, location, occurred_at, created_at`

// SaveTransaction stores a transaction. Transactions are immutable, so a
// second save of the same id is a conflict.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.AccountID,
		tx.Amount.String(), string(tx.Channel),
		nullString(tx.RecipientID), nullString(tx.Location),
		tx.Timestamp.UnixMilli(), tx.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s already recorded", domain.ErrConflict, tx.ID)
	}
	return storeErr("save transaction", err)
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	return tx, nil
}

// GetAccountTransactions returns the account's transactions with from <= timestamp <= to,
// oldest first.
func (r *SQLRepository) GetAccountTransactions(ctx context.Context, tenantID string, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ?
		  AND account_id = ?
		  AND occurred_at >= ?
		  AND occurred_at <= ?
		ORDER BY occurred_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, storeErr("list account transactions", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// SaveRule inserts rule.Version as a new row. Saving a version that already
// exists returns ErrConflict, which makes concurrent edits of one rule fail loudly.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.Rule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var threshold sql.NullString
	if rule.Threshold != nil {
		threshold = sql.NullString{String: rule.Threshold.String(), Valid: true}
	}

	query := `
		INSERT INTO rules (
			id, tenant_id, code, description, kind, threshold, freq_count, window_minutes,
			risk_points, enabled, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Code, rule.Description, string(rule.Kind),
		threshold, nullInt(rule.FreqCount), nullInt(rule.WindowMinutes),
		rule.RiskPoints, boolToInt(rule.Enabled), rule.Version,
		rule.CreatedAt.UTC(), rule.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: rule %s version %d already exists", domain.ErrConflict, rule.ID, rule.Version)
	}
	return storeErr("save rule", err)
}

const ruleColumns = `id, tenant_id, code, description, kind, threshold, freq_count, window_minutes,
	risk_points, enabled, version, created_at, updated_at`

// latestRuleFilter restricts a rules query to the newest version of each rule.
const latestRuleFilter = `version = (SELECT MAX(r2.version) FROM rules r2 WHERE r2.tenant_id = rules.tenant_id AND r2.id = rules.id)`

// GetRule retrieves the latest version of a rule, enabled or not.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.Rule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE tenant_id = ? AND id = ? AND ` + latestRuleFilter

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if err != nil {
		return nil, storeErr("get rule", err)
	}
	return rule, nil
}

// ListRules retrieves the latest version of every rule ordered by code.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.Rule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE tenant_id = ? AND ` + latestRuleFilter
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY code, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, storeErr("list rules", err)
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, storeErr("scan rule", err)
		}
		rules = append(rules, rule)
	}
	return rules, storeErr("list rules", rows.Err())
}

// UpsertAssessment stores the assessment, replacing any earlier one for the same
// transaction in a single statement. The row keeps its original id.
func (r *SQLRepository) UpsertAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	reasons, err := json.Marshal(a.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, tx_id, score, level, reasons, snapshot_version, assessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, tx_id) DO UPDATE SET
			score = excluded.score,
			level = excluded.level,
			reasons = excluded.reasons,
			snapshot_version = excluded.snapshot_version,
			assessed_at = excluded.assessed_at
		RETURNING id
	`

	var id string
	err = r.db.QueryRowContext(ctx, r.rebind(query),
		a.ID, tenantID, a.TxID, a.Score, string(a.Level),
		string(reasons), a.SnapshotVersion, a.AssessedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return storeErr("upsert assessment", err)
	}

	a.ID = id
	a.TenantID = tenantID
	return nil
}

// GetAssessment retrieves the assessment of a transaction.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, txID string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, score, level, reasons, snapshot_version, assessed_at
		FROM assessments
		WHERE tenant_id = ? AND tx_id = ?
	`

	var a domain.Assessment
	var level, reasons string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&a.ID, &a.TenantID, &a.TxID, &a.Score, &level, &reasons, &a.SnapshotVersion, &a.AssessedAt,
	)
	if err != nil {
		return nil, storeErr("get assessment", err)
	}

	a.Level = domain.RiskLevel(level)
	if err := json.Unmarshal([]byte(reasons), &a.Reasons); err != nil {
		return nil, fmt.Errorf("failed to parse assessment reasons: %w", err)
	}
	return &a, nil
}

// ListAssessedRecipients returns every recipient with at least one assessed transaction.
func (r *SQLRepository) ListAssessedRecipients(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT DISTINCT t.recipient_id
		FROM assessments a
		JOIN transactions t ON t.tenant_id = a.tenant_id AND t.id = a.tx_id
		WHERE a.tenant_id = ?
		  AND t.recipient_id IS NOT NULL
		  AND t.recipient_id <> ''
		ORDER BY t.recipient_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, storeErr("list assessed recipients", err)
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan recipient", err)
		}
		recipients = append(recipients, id)
	}
	return recipients, storeErr("list assessed recipients", rows.Err())
}

// CountComplaints counts MEDIUM and HIGH assessments of transactions to the recipient.
func (r *SQLRepository) CountComplaints(ctx context.Context, tenantID string, recipientID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(DISTINCT a.tx_id)
		FROM assessments a
		JOIN transactions t ON t.tenant_id = a.tenant_id AND t.id = a.tx_id
		WHERE a.tenant_id = ?
		  AND t.recipient_id = ?
		  AND a.level IN (?, ?)
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		tenantID, recipientID, string(domain.LevelMedium), string(domain.LevelHigh),
	).Scan(&count)
	if err != nil {
		return 0, storeErr("count complaints", err)
	}
	return count, nil
}

// ListReportedTransactions returns the distinct transactions to the recipient that are
// linked to at least one case in the given categories.
func (r *SQLRepository) ListReportedTransactions(ctx context.Context, tenantID string, recipientID string, categories []string) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(categories) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(categories)), ", ")
	query := `
		SELECT ` + prefixed("t.", transactionColumns) + `
		FROM transactions t
		WHERE t.tenant_id = ?
		  AND t.recipient_id = ?
		  AND EXISTS (
			SELECT 1
			FROM case_transactions ct
			JOIN cases c ON c.tenant_id = ct.tenant_id AND c.id = ct.case_id
			WHERE ct.tenant_id = t.tenant_id
			  AND ct.tx_id = t.id
			  AND c.category IN (` + placeholders + `)
		  )
		ORDER BY t.id
	`

	args := make([]any, 0, len(categories)+2)
	args = append(args, tenantID, recipientID)
	for _, c := range categories {
		args = append(args, c)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, storeErr("list reported transactions", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// CountConfirmedFraudCases counts distinct fraud-confirmed cases linked to the
// recipient's transactions.
func (r *SQLRepository) CountConfirmedFraudCases(ctx context.Context, tenantID string, recipientID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(DISTINCT c.id)
		FROM cases c
		JOIN case_transactions ct ON ct.tenant_id = c.tenant_id AND ct.case_id = c.id
		JOIN transactions t ON t.tenant_id = ct.tenant_id AND t.id = ct.tx_id
		WHERE c.tenant_id = ?
		  AND t.recipient_id = ?
		  AND c.decision = ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, recipientID, domain.DecisionFraudConfirmed).Scan(&count)
	if err != nil {
		return 0, storeErr("count confirmed fraud cases", err)
	}
	return count, nil
}

// SaveCase creates or updates a case record.
func (r *SQLRepository) SaveCase(ctx context.Context, tenantID string, c *domain.Case) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO cases (id, tenant_id, category, decision, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			category = excluded.category,
			decision = excluded.decision
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Category, nullString(c.Decision), c.CreatedAt.UTC(),
	)
	return storeErr("save case", err)
}

// LinkCaseTransaction associates a transaction with a case. Linking twice is a no-op.
func (r *SQLRepository) LinkCaseTransaction(ctx context.Context, tenantID string, caseID string, txID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO case_transactions (tenant_id, case_id, tx_id)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, case_id, tx_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, caseID, txID)
	return storeErr("link case transaction", err)
}

// InsertBlacklistEntry adds an entry. The unique index on (tenant_id, recipient_id)
// decides concurrent adds: the loser gets ErrConflict.
func (r *SQLRepository) InsertBlacklistEntry(ctx context.Context, tenantID string, entry *domain.BlacklistEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO blacklist_entries (id, tenant_id, recipient_id, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.RecipientID, entry.Reason, entry.CreatedBy, entry.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: recipient %s is already blacklisted", domain.ErrConflict, entry.RecipientID)
	}
	if err != nil {
		return storeErr("insert blacklist entry", err)
	}

	entry.TenantID = tenantID
	return nil
}

// DeleteBlacklistEntry removes an entry by id.
func (r *SQLRepository) DeleteBlacklistEntry(ctx context.Context, tenantID string, entryID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM blacklist_entries WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, entryID)
	if err != nil {
		return storeErr("delete blacklist entry", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeErr("delete blacklist entry", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

const blacklistColumns = `id, tenant_id, recipient_id, reason, created_by, created_at`

// GetBlacklistEntry retrieves an entry by id.
func (r *SQLRepository) GetBlacklistEntry(ctx context.Context, tenantID string, entryID string) (*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE tenant_id = ? AND id = ?`

	entry, err := scanBlacklistEntry(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entryID))
	if err != nil {
		return nil, storeErr("get blacklist entry", err)
	}
	return entry, nil
}

// FindBlacklistEntry retrieves the entry for a recipient.
func (r *SQLRepository) FindBlacklistEntry(ctx context.Context, tenantID string, recipientID string) (*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE tenant_id = ? AND recipient_id = ?`

	entry, err := scanBlacklistEntry(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, recipientID))
	if err != nil {
		return nil, storeErr("find blacklist entry", err)
	}
	return entry, nil
}

// ListBlacklistEntries returns all entries, newest first.
func (r *SQLRepository) ListBlacklistEntries(ctx context.Context, tenantID string) ([]*domain.BlacklistEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE tenant_id = ? ORDER BY created_at DESC, recipient_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, storeErr("list blacklist entries", err)
	}
	defer rows.Close()

	var entries []*domain.BlacklistEntry
	for rows.Next() {
		entry, err := scanBlacklistEntry(rows)
		if err != nil {
			return nil, storeErr("scan blacklist entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, storeErr("list blacklist entries", rows.Err())
}

// GetThresholds returns the tenant's saved thresholds or ErrNotFound.
func (r *SQLRepository) GetThresholds(ctx context.Context, tenantID string) (*domain.BlacklistThresholds, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, min_complaints, min_reported_amount, min_confirmed_fraud, version, updated_by, updated_at
		FROM blacklist_thresholds
		WHERE tenant_id = ?
	`

	var t domain.BlacklistThresholds
	var updatedBy sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&t.TenantID, &t.MinComplaints, &t.MinReportedAmount, &t.MinConfirmedFraud,
		&t.Version, &updatedBy, &t.UpdatedAt,
	)
	if err != nil {
		return nil, storeErr("get thresholds", err)
	}

	t.UpdatedBy = updatedBy.String
	return &t, nil
}

// SaveThresholds writes t.Version. The write only applies over an older version;
// otherwise another administrator saved first and ErrConflict is returned.
func (r *SQLRepository) SaveThresholds(ctx context.Context, tenantID string, t *domain.BlacklistThresholds) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO blacklist_thresholds (
			tenant_id, min_complaints, min_reported_amount, min_confirmed_fraud, version, updated_by, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			min_complaints = excluded.min_complaints,
			min_reported_amount = excluded.min_reported_amount,
			min_confirmed_fraud = excluded.min_confirmed_fraud,
			version = excluded.version,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
		WHERE blacklist_thresholds.version < excluded.version
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, t.MinComplaints, t.MinReportedAmount.String(), t.MinConfirmedFraud,
		t.Version, nullString(t.UpdatedBy), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return storeErr("save thresholds", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeErr("save thresholds", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: thresholds version %d is stale", domain.ErrConflict, t.Version)
	}

	t.TenantID = tenantID
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return storeErr("ping", r.db.PingContext(ctx))
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, channel string
	var recipient, location sql.NullString
	var occurredAt int64

	if err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.AccountID, &amount, &channel,
		&recipient, &location, &occurredAt, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has malformed amount %q: %w", tx.ID, amount, err)
	}

	tx.Amount = parsed
	tx.Channel = domain.Channel(channel)
	tx.RecipientID = recipient.String
	tx.Location = location.String
	tx.Timestamp = time.UnixMilli(occurredAt).UTC()
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storeErr("scan transaction", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, storeErr("iterate transactions", rows.Err())
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var kind string
	var description sql.NullString
	var threshold decimal.NullDecimal
	var freqCount, windowMinutes sql.NullInt64
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Code, &description, &kind,
		&threshold, &freqCount, &windowMinutes,
		&rule.RiskPoints, &enabled, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Kind = domain.RuleKind(kind)
	rule.Description = description.String
	rule.Enabled = enabled == 1
	if threshold.Valid {
		d := threshold.Decimal
		rule.Threshold = &d
	}
	if freqCount.Valid {
		n := int(freqCount.Int64)
		rule.FreqCount = &n
	}
	if windowMinutes.Valid {
		n := int(windowMinutes.Int64)
		rule.WindowMinutes = &n
	}
	return &rule, nil
}

func scanBlacklistEntry(row rowScanner) (*domain.BlacklistEntry, error) {
	var e domain.BlacklistEntry
	var reason sql.NullString

	if err := row.Scan(&e.ID, &e.TenantID, &e.RecipientID, &reason, &e.CreatedBy, &e.CreatedAt); err != nil {
		return nil, err
	}

	e.Reason = reason.String
	return &e, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
