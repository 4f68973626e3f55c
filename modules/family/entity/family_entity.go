package entity

import (
	"time"

	"github.com/google/uuid"

	"familycal/core/entity"
)

// Family is a household sharing one calendar.
type Family struct {
	entity.BaseEntity
	Name string `db:"name" json:"name"`
}

func (Family) TableName() string {
	return "families"
}

// FamilyMember links a user to a family.
type FamilyMember struct {
	entity.BaseEntity
	FamilyID uuid.UUID `db:"family_id" json:"family_id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

func (FamilyMember) TableName() string {
	return "family_members"
}
