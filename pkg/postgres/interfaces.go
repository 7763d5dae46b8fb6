package postgres

import (
	"context"
	"database/sql"
)

// Client represents a PostgreSQL client interface for testing and abstraction
type Client interface {
	// Connect establishes a connection to the PostgreSQL database
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the PostgreSQL database
	Disconnect() error

	// BeginLocked starts a transaction holding the shared session table lock,
	// retrying once on a deadlock-class error
	BeginLocked(ctx context.Context) (*sql.Tx, error)

	// RunLocked executes a function within a locked transaction
	RunLocked(ctx context.Context, fn func(*sql.Tx) error) error

	// DB returns the underlying connection pool
	DB() *sql.DB

	// HealthCheck performs a health check on the database connection
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
