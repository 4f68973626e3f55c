package repository

import (
	"context"

	"github.com/google/uuid"

	"familycal/core/database"
	"familycal/modules/family/entity"
)

type FamilyRepository interface {
	// FindByUserID lists the families a user belongs to, oldest membership
	// first. Sync uses the first entry as its target family, so the ordering
	// is stable per user.
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]entity.Family, error)
}

type familyRepository struct {
	db database.IDatabase
}

func NewFamilyRepository(db database.IDatabase) FamilyRepository {
	return &familyRepository{db: db}
}

func (r *familyRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]entity.Family, error) {
	query := `
		SELECT f.id, f.name, f.created_at, f.updated_at
		FROM families f
		JOIN family_members fm ON fm.family_id = f.id
		WHERE fm.user_id = $1
		ORDER BY fm.joined_at ASC, f.id ASC
	`
	var families []entity.Family
	if err := r.db.SelectContext(ctx, &families, query, userID); err != nil {
		return nil, err
	}
	return families, nil
}
