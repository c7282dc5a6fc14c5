// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns the primary key so inserts behave the same across
// the Postgres and SQLite dialects.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Enums

type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleLogistics    Role = "logistics"
	RoleInspector    Role = "inspector"
	RoleConsumer     Role = "consumer"
)

// ValidRole reports whether r is one of the declared roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleManufacturer, RoleLogistics, RoleInspector, RoleConsumer:
		return true
	}
	return false
}

type ProductStatus string

const (
	StatusCreated     ProductStatus = "CREATED"
	StatusInTransit   ProductStatus = "IN_TRANSIT"
	StatusAtWarehouse ProductStatus = "AT_WAREHOUSE"
	StatusDelivered   ProductStatus = "DELIVERED"
	StatusRecalled    ProductStatus = "RECALLED"
	StatusDamaged     ProductStatus = "DAMAGED"
)

// ValidProductStatus is the single source of truth for status validation;
// both the service layer and the persisted column use these constants.
func ValidProductStatus(s ProductStatus) bool {
	switch s {
	case StatusCreated, StatusInTransit, StatusAtWarehouse,
		StatusDelivered, StatusRecalled, StatusDamaged:
		return true
	}
	return false
}
