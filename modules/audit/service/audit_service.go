package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"familycal/core/errors"
	"familycal/core/logger"
	"familycal/modules/audit/entity"
	"familycal/modules/audit/repository"
)

// Recorder is the best-effort audit sink. A failed write is logged and
// swallowed; audit logging must never fail the calling operation.
type Recorder interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType, resourceID string, metadata map[string]any)
}

// AuditService adds the read side used by the history endpoint.
type AuditService interface {
	Recorder
	History(ctx context.Context, userID uuid.UUID, limit int) ([]entity.AuditLog, *errors.AppError)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Record(ctx context.Context, userID uuid.UUID, action, resourceType, resourceID string, metadata map[string]any) {
	var raw json.RawMessage
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			logger.Error("AuditService:Record:Marshal:Error", "error", err, "action", action)
		} else {
			raw = encoded
		}
	}

	log := &entity.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     raw,
	}

	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("AuditService:Record:Create:Error", "error", err, "action", action, "user_id", userID)
	}
}

const defaultHistoryLimit = 50

func (s *auditService) History(ctx context.Context, userID uuid.UUID, limit int) ([]entity.AuditLog, *errors.AppError) {
	if userID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "user id is required", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}

	logs, err := s.repo.FindByUserID(ctx, userID, limit)
	if err != nil {
		logger.Error("AuditService:History:FindByUserID:Error", "error", err, "user_id", userID)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load audit history", err)
	}
	return logs, nil
}
