package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/storage"
)

// Store implements storage.AuditStore backed by PostgreSQL.
type Store struct {
	pgDB  *DB
	audit *AuditRepository
}

var _ storage.AuditStore = (*Store)(nil)

// NewStore wraps an open DB.
func NewStore(pgDB *DB) *Store {
	return &Store{
		pgDB:  pgDB,
		audit: NewAuditRepository(pgDB.GormDB()),
	}
}

// OpenStore connects and migrates, then returns the audit store.
func OpenStore(cfg Config, logger *slog.Logger) (*Store, error) {
	db, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Append(ctx context.Context, event security.AuditEvent) error {
	return s.audit.Append(ctx, event)
}

func (s *Store) List(ctx context.Context, q storage.AuditQuery) ([]security.AuditEvent, error) {
	return s.audit.Query(ctx, q)
}

func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.audit.Prune(ctx, olderThan)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}
