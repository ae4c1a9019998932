// Package domain defines the core interfaces and types for fraudwatch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	GetAccountTransactions(ctx context.Context, tenantID string, accountID string, from, to time.Time) ([]*Transaction, error)

	// Rule operations
	SaveRule(ctx context.Context, tenantID string, rule *Rule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, tenantID string, enabledOnly bool) ([]*Rule, error)

	// Assessment operations. UpsertAssessment replaces any prior assessment of the same transaction.
	UpsertAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, txID string) (*Assessment, error)
	ListAssessedRecipients(ctx context.Context, tenantID string) ([]string, error)

	// Recipient aggregation reads
	CountComplaints(ctx context.Context, tenantID string, recipientID string) (int, error)
	ListReportedTransactions(ctx context.Context, tenantID string, recipientID string, categories []string) ([]*Transaction, error)
	CountConfirmedFraudCases(ctx context.Context, tenantID string, recipientID string) (int, error)

	// Case records belong to the case-management application.
	SaveCase(ctx context.Context, tenantID string, c *Case) error
	LinkCaseTransaction(ctx context.Context, tenantID string, caseID string, txID string) error

	// Blacklist operations. InsertBlacklistEntry returns ErrConflict for a listed recipient.
	InsertBlacklistEntry(ctx context.Context, tenantID string, entry *BlacklistEntry) error
	DeleteBlacklistEntry(ctx context.Context, tenantID string, entryID string) error
	GetBlacklistEntry(ctx context.Context, tenantID string, entryID string) (*BlacklistEntry, error)
	FindBlacklistEntry(ctx context.Context, tenantID string, recipientID string) (*BlacklistEntry, error)
	ListBlacklistEntries(ctx context.Context, tenantID string) ([]*BlacklistEntry, error)

	// Threshold configuration
	GetThresholds(ctx context.Context, tenantID string) (*BlacklistThresholds, error)
	SaveThresholds(ctx context.Context, tenantID string, t *BlacklistThresholds) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgresPort"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgresUser"`
	PostgresPassword string `json:"-" mapstructure:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connMaxLifetime"`
}
