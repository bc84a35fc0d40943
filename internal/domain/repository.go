// Package domain defines the core interfaces and types for Fraudscope.
package domain

import (
	"context"
	"time"
)

// Repository persists run summaries. Uploaded rows are never stored.
type Repository interface {
	// Run audit operations
	SaveRun(ctx context.Context, run *RunSummary) error
	GetRun(ctx context.Context, runID string) (*RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitepath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgreshost"`
	PostgresPort     int    `mapstructure:"postgresport"`
	PostgresUser     string `mapstructure:"postgresuser"`
	PostgresPassword string `mapstructure:"postgrespassword"`
	PostgresDB       string `mapstructure:"postgresdb"`
	PostgresSSLMode  string `mapstructure:"postgressslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxopenconns"`
	MaxIdleConns    int           `mapstructure:"maxidleconns"`
	ConnMaxLifetime time.Duration `mapstructure:"connmaxlifetime"`
}

// RunSummary is the audit record of one pipeline run.
type RunSummary struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename,omitempty"`
	Source        string    `json:"source"` // "analyze", "predict_csv", "cli"
	Status        string    `json:"status"` // RunStatusSucceeded or RunStatusFailed
	ErrorKind     string    `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	RowCount      int       `json:"rowCount"`
	FraudCount    int       `json:"fraudCount"`
	PreventedLoss float64   `json:"preventedLoss"`
	AlertCount    int       `json:"alertCount"`
	ModelVersion  string    `json:"modelVersion"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Run status values
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)
