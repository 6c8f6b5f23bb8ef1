package repository

// Schema definitions for the Talon database.
// Compatible with both SQLite and PostgreSQL.

// schemaAnalyses stores completed analysis runs as immutable audit rows.
// The signal, summary, and alerts columns hold the JSON-encoded result;
// nothing is ever read back into the detection engine.
const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    status TEXT NOT NULL,
    params TEXT NOT NULL,
    summary TEXT NOT NULL,
    signal TEXT NOT NULL,
    alerts TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(tenant_id, status);
`

// schemaPolicies stores the CEL alert policies evaluated over composed
// fraud signals.
const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_enabled ON policies(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_policies_name ON policies(tenant_id, name);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaPolicies,
	}
}
