// Package domain defines the core interfaces and types for Talon.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// Analyses are insert-only audit records; they are never read back into
// the engine or updated in place.
type Repository interface {
	// Analysis results
	SaveAnalysis(ctx context.Context, tenantID string, analysis *Analysis) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*Analysis, error)
	ListAnalyses(ctx context.Context, tenantID string, limit int) ([]*Analysis, error)

	// Alert policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *PolicyConfig) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*PolicyConfig, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*PolicyConfig, error)
	DeletePolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
