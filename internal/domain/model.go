package domain

import (
	"time"

	"gorm.io/datatypes"
)

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of
// gorm.DeletedAt: deletion filtering is applied explicitly by the query layer.
//
// Timestamps are stamped by the mutation layer, never by GORM, so that
// UpdatedAt stays monotonic per record.
type BaseModel struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time         `gorm:"not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time         `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
	DeletedAt *time.Time        `gorm:"index" json:"deletedAt"`
	CreatedBy *string           `gorm:"type:varchar(255)" json:"createdBy"`
	UpdatedBy *string           `gorm:"type:varchar(255)" json:"updatedBy"`
	IsActive  bool              `gorm:"not null" json:"isActive"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	Revision  int64             `gorm:"not null" json:"revision"`
}

// Model returns the embedded base so generic code can reach the audit fields
// of any entity that embeds BaseModel.
func (m *BaseModel) Model() *BaseModel {
	return m
}

// IsDeleted reports whether the record carries a soft-delete mark.
func (m *BaseModel) IsDeleted() bool {
	return m.DeletedAt != nil
}

// AuditStamp carries the audit columns written alongside every lifecycle
// transition (update, soft delete, restore).
type AuditStamp struct {
	At       time.Time
	Actor    *string
	Revision int64
}
