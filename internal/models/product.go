// internal/models/product.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	BaseModel
	ProductName     string        `json:"product_name" gorm:"size:255;not null"`
	Description     string        `json:"description" gorm:"type:text;not null"`
	SKU             string        `json:"sku" gorm:"size:100;not null;uniqueIndex:idx_products_sku_manufacturer"`
	ManufacturerID  uuid.UUID     `json:"manufacturer_id" gorm:"type:uuid;not null;uniqueIndex:idx_products_sku_manufacturer"`
	CurrentLocation string        `json:"current_location" gorm:"size:255;not null"`
	IsActive        bool          `json:"is_active" gorm:"not null;default:true"`
	Status          ProductStatus `json:"status" gorm:"type:varchar(20);not null;default:'CREATED';index"`
	IdentityHash    string        `json:"identity_hash" gorm:"size:64;not null;uniqueIndex"`
	CodeImageRef    *string       `json:"code_image_ref"`
	LedgerRef       *string       `json:"ledger_ref"`

	// Relationships
	Manufacturer User          `json:"manufacturer,omitempty" gorm:"foreignKey:ManufacturerID"`
	History      []StatusEvent `json:"history,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// StatusEvent is one append-only history entry. LedgerTxRef is the only field
// ever written after insert: it is back-filled once the ledger anchor for the
// event confirms.
type StatusEvent struct {
	ID          uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	ProductID   uuid.UUID     `json:"product_id" gorm:"type:uuid;not null;index"`
	Status      ProductStatus `json:"status" gorm:"type:varchar(20);not null"`
	Timestamp   time.Time     `json:"timestamp" gorm:"not null"`
	LedgerTxRef *string       `json:"ledger_tx_ref"`
}

func (e *StatusEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// NormalizeSKU applies the canonical SKU form used for storage, uniqueness
// and identity hashing.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// ManufacturerRef is the read model for the manufacturer projection.
type ManufacturerRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LocationRef is the read model for the current-location projection.
type LocationRef struct {
	ProductID       string `json:"product_id"`
	CurrentLocation string `json:"current_location"`
	Status          string `json:"status"`
}
