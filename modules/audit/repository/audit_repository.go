package repository

import (
	"context"

	"github.com/google/uuid"

	"familycal/core/database"
	"familycal/modules/audit/entity"
)

type AuditRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	FindByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]entity.AuditLog, error)
}

type auditRepository struct {
	db database.IDatabase
}

func NewAuditRepository(db database.IDatabase) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, resource_type, resource_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	return r.db.ExecContext(ctx, query,
		log.UserID, log.Action, log.ResourceType, log.ResourceID, log.Metadata,
	)
}

func (r *auditRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]entity.AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource_type, resource_id, metadata, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var logs []entity.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
