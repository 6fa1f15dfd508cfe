// Package services provides the PostgreSQL persistence layer for items,
// events, trends, evidence, usage, outcomes, feedback, and taxonomy gaps.
package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoItemsAvailable indicates no pending item could be claimed.
	ErrNoItemsAvailable = errors.New("no pending items available")

	// ErrAtCapacity indicates the global concurrent-item limit is reached.
	ErrAtCapacity = errors.New("at processing capacity")

	// ErrBudgetExceeded indicates the daily budget guard denied a call.
	// Expected and non-fatal: the caller leaves work pending for retry
	// after midnight.
	ErrBudgetExceeded = errors.New("daily budget exceeded")
)

// DB is the query surface shared by *pgxpool.Pool and pgx.Tx, letting
// services run inside or outside an enclosing transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
