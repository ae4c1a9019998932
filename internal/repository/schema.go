package repository

// Schema definitions for the fraudwatch database.
// Compatible with both SQLite and PostgreSQL.
//
// Amounts are stored as decimal strings and transaction times as unix
// milliseconds so window queries compare exactly on both drivers.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    channel TEXT NOT NULL,
    recipient_id TEXT,
    location TEXT,
    occurred_at BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(tenant_id, account_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions(tenant_id, recipient_id);
`

// schemaRules keeps every saved version of a rule; the highest version is current.
const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    code TEXT NOT NULL,
    description TEXT,
    kind TEXT NOT NULL,
    threshold TEXT,
    freq_count INTEGER,
    window_minutes INTEGER,
    risk_points INTEGER NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    version INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id, version)
);

CREATE INDEX IF NOT EXISTS idx_rules_tenant ON rules(tenant_id);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    level TEXT NOT NULL,
    reasons TEXT NOT NULL,
    snapshot_version TEXT NOT NULL,
    assessed_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, tx_id)
);

CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(tenant_id, level);
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    category TEXT NOT NULL,
    decision TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS case_transactions (
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    PRIMARY KEY (tenant_id, case_id, tx_id)
);

CREATE INDEX IF NOT EXISTS idx_case_transactions_tx ON case_transactions(tenant_id, tx_id);
`

const schemaBlacklist = `
CREATE TABLE IF NOT EXISTS blacklist_entries (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    reason TEXT,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, recipient_id)
);

CREATE TABLE IF NOT EXISTS blacklist_thresholds (
    tenant_id TEXT PRIMARY KEY,
    min_complaints INTEGER NOT NULL,
    min_reported_amount TEXT NOT NULL,
    min_confirmed_fraud INTEGER NOT NULL,
    version INTEGER NOT NULL,
    updated_by TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRules,
		schemaAssessments,
		schemaCases,
		schemaBlacklist,
	}
}
