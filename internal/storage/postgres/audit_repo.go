package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/storage"
)

// AuditRepository implements security.AuditStore over any GORM dialect.
// There is no Update method; Prune is the only deletion path.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ security.AuditStore = (*AuditRepository)(nil)

// Append inserts a single audit event.
func (r *AuditRepository) Append(ctx context.Context, event security.AuditEvent) error {
	model := toAuditModel(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Query returns audit events matching q, newest first.
func (r *AuditRepository) Query(ctx context.Context, q storage.AuditQuery) ([]security.AuditEvent, error) {
	tx := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(q.EffectiveLimit())

	if q.Tool != "" {
		tx = tx.Where("tool = ?", q.Tool)
	}
	if q.Result != "" {
		tx = tx.Where("result = ?", q.Result)
	}
	if q.CorrelationID != "" {
		tx = tx.Where("correlation_id = ?", q.CorrelationID)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UTC())
	}

	var models []AuditEventModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}

	events := make([]security.AuditEvent, len(models))
	for i := range models {
		events[i] = toAuditDomain(&models[i])
	}
	return events, nil
}

// Prune deletes events created before olderThan.
func (r *AuditRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if olderThan.IsZero() {
		return 0, storage.ErrInvalidRetention
	}
	res := r.db.WithContext(ctx).
		Where("created_at < ?", olderThan.UTC()).
		Delete(&AuditEventModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning audit events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
