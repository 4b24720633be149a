package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

// CreatorMix is a published configuration authored by a creator. Buyers add it as-is.
type CreatorMix struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID     uuid.UUID              `gorm:"column:creator_id;type:uuid;not null"`
	Name          string                 `gorm:"column:name;not null"`
	Configuration types.MixConfiguration `gorm:"column:configuration;type:jsonb;serializer:json;not null"`
	IsPublished   bool                   `gorm:"column:is_published;not null;default:false"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *CreatorMix) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
