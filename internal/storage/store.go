// Package storage defines the database-backed audit store. Two backends are
// provided: SQLite (zero-config, single file) and PostgreSQL (shared,
// multi-host). Both share the GORM model in the postgres package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jkaninda/toolguard/internal/security"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultQueryLimit bounds List when AuditQuery.Limit is zero.
const DefaultQueryLimit = 100

// ErrInvalidRetention is returned by Prune for a zero cutoff.
var ErrInvalidRetention = errors.New("retention cutoff must be set")

// AuditStore is an append-only audit event store. Events are never updated;
// the only deletion path is Prune, which removes whole events older than a
// retention cutoff.
type AuditStore interface {
	security.AuditStore

	// List returns events matching q, newest first.
	List(ctx context.Context, q AuditQuery) ([]security.AuditEvent, error)

	// Prune deletes events with a timestamp before olderThan and returns
	// the number removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Ping checks the connection for readiness probes.
	Ping(ctx context.Context) error

	Close() error

	// Driver returns "sqlite" or "postgres".
	Driver() string
}

// AuditQuery filters List. Zero fields match everything.
type AuditQuery struct {
	Limit         int
	Tool          string
	Result        string
	CorrelationID string
	Since         time.Time
}

// EffectiveLimit returns Limit, or DefaultQueryLimit when unset.
func (q AuditQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}
