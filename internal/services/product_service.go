// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/protrace/backend/internal/apperrors"
	"github.com/protrace/backend/internal/models"
	"github.com/protrace/backend/internal/utils"
)

type ProductService struct {
	db      *gorm.DB
	ledger  *LedgerService
	events  *EventsService
	qrcodes *QRCodeService
}

type CreateProductRequest struct {
	ProductName     string `json:"product_name" validate:"required,min=1,max=255"`
	Description     string `json:"description" validate:"required"`
	SKU             string `json:"sku" validate:"required,sku"`
	CurrentLocation string `json:"current_location" validate:"required"`
}

type UpdateStatusRequest struct {
	Status models.ProductStatus `json:"status" validate:"required"`
}

// UpdateDetailsRequest carries only the fields the caller wants changed;
// nil pointers are left untouched.
type UpdateDetailsRequest struct {
	ProductName     *string `json:"product_name,omitempty"`
	Description     *string `json:"description,omitempty"`
	SKU             *string `json:"sku,omitempty"`
	CurrentLocation *string `json:"current_location,omitempty"`
}

// ProvenanceResult merges the locally persisted history with whatever the
// ledger is able to report.
type ProvenanceResult struct {
	Product      *models.Product      `json:"product"`
	History      []models.StatusEvent `json:"history"`
	LedgerEvents []LedgerEvent        `json:"ledger_events"`
}

func NewProductService(db *gorm.DB, ledger *LedgerService, events *EventsService, qrcodes *QRCodeService) *ProductService {
	return &ProductService{
		db:      db,
		ledger:  ledger,
		events:  events,
		qrcodes: qrcodes,
	}
}

// Create registers a product under its manufacturer. The identity hash is
// computed once here and never again; the record, its code image reference
// and the initial CREATED history entry are written in one transaction.
// Uniqueness of (sku, manufacturer) and of the identity hash is enforced by
// the schema constraints, so exactly one of N concurrent creates for the
// same key wins and the rest surface as conflicts.
func (s *ProductService) Create(manufacturerID uuid.UUID, req *CreateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	var manufacturer models.User
	if err := s.db.First(&manufacturer, "id = ?", manufacturerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: manufacturer", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	sku := models.NormalizeSKU(req.SKU)
	identityHash := utils.ComputeIdentityHash(req.ProductName, sku, manufacturerID.String())
	payload := utils.IdentityPayload(req.ProductName, sku, manufacturerID.String())

	codeImageRef, err := s.qrcodes.EncodeAndStore(payload, identityHash)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code image: %w", err)
	}

	product := &models.Product{
		ProductName:     req.ProductName,
		Description:     req.Description,
		SKU:             sku,
		ManufacturerID:  manufacturerID,
		CurrentLocation: req.CurrentLocation,
		IsActive:        true,
		Status:          models.StatusCreated,
		IdentityHash:    identityHash,
		CodeImageRef:    &codeImageRef,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return err
		}
		event := &models.StatusEvent{
			ProductID: product.ID,
			Status:    models.StatusCreated,
			Timestamp: time.Now(),
		}
		return tx.Create(event).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: product with this SKU or identity already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if err := s.db.Preload("History").First(product, "id = ?", product.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	return product, nil
}

// GetByID distinguishes a record that never existed (not found) from one
// that was deliberately deactivated (forbidden).
func (s *ProductService) GetByID(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC")
	}).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !product.IsActive {
		return nil, fmt.Errorf("%w: product is not active", apperrors.ErrForbidden)
	}

	return &product, nil
}

// GetByIdentityHash backs the public authenticity check: a scanned code's
// payload hash resolves to the registered product.
func (s *ProductService) GetByIdentityHash(hash string) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC")
	}).First(&product, "identity_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !product.IsActive {
		return nil, fmt.Errorf("%w: product is not active", apperrors.ErrForbidden)
	}

	return &product, nil
}

// GetManufacturer projects the owning account of an existing record. This
// read deliberately skips the active-flag check.
func (s *ProductService) GetManufacturer(id uuid.UUID) (*models.ManufacturerRef, error) {
	var product models.Product
	if err := s.db.Preload("Manufacturer").First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &models.ManufacturerRef{
		ID:       product.ManufacturerID.String(),
		Username: product.Manufacturer.Username,
		Email:    product.Manufacturer.Email,
	}, nil
}

// GetCurrentLocation projects the location of an existing record; like
// GetManufacturer it skips the active-flag check.
func (s *ProductService) GetCurrentLocation(id uuid.UUID) (*models.LocationRef, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &models.LocationRef{
		ProductID:       product.ID.String(),
		CurrentLocation: product.CurrentLocation,
		Status:          string(product.Status),
	}, nil
}

// UpdateStatus moves the product to newStatus. Any declared status is
// reachable from any other; there is no transition graph. The status column
// and history append commit together, then the ledger anchor and event
// publish run detached from the request; their failure never rolls back or
// delays the local change.
func (s *ProductService) UpdateStatus(id uuid.UUID, newStatus models.ProductStatus) (*models.Product, error) {
	if !models.ValidProductStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, newStatus)
	}

	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	event := &models.StatusEvent{
		ProductID: product.ID,
		Status:    newStatus,
		Timestamp: time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&product).Update("status", newStatus).Error; err != nil {
			return err
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	product.Status = newStatus

	// The detached goroutines get their own copy: the reload below rewrites
	// every field of product while they read it.
	snapshot := product
	go s.anchorEvent(&snapshot, event)
	go s.publishStatusChanged(&snapshot, event)

	if err := s.db.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC")
	}).First(&product, "id = ?", product.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	return &product, nil
}

// MarkDamaged is shorthand for an inspector flagging a unit.
func (s *ProductService) MarkDamaged(id uuid.UUID) (*models.Product, error) {
	return s.UpdateStatus(id, models.StatusDamaged)
}

// UpdateDetails applies only the fields present in the request. The SKU is
// re-normalized but its uniqueness against other products is not re-checked
// here; the schema constraint still has the final word and a collision comes
// back as a conflict.
func (s *ProductService) UpdateDetails(id uuid.UUID, req *UpdateDetailsRequest) (*models.Product, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	updates := make(map[string]interface{})
	if req.ProductName != nil {
		updates["product_name"] = *req.ProductName
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.SKU != nil {
		updates["sku"] = models.NormalizeSKU(*req.SKU)
	}
	if req.CurrentLocation != nil {
		updates["current_location"] = *req.CurrentLocation
	}

	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrValidation)
	}

	if err := s.db.Model(&product).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: product with this SKU already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if err := s.db.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC")
	}).First(&product, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	return &product, nil
}

// Delete hard-deletes the record and its history. Nothing is retained
// locally; anchors already written to the ledger stay there, orphaned.
func (s *ProductService) Delete(id uuid.UUID) error {
	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: product", apperrors.ErrNotFound)
		}
		return fmt.Errorf("database error: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.StatusEvent{}).Error; err != nil {
			return fmt.Errorf("failed to delete history: %w", err)
		}
		if err := tx.Delete(&product).Error; err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return nil
	})
}

// ListAll returns every record regardless of the active flag. An empty
// collection is reported as not-found; callers must treat "no products" as
// an error condition rather than an empty success.
func (s *ProductService) ListAll() ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no products registered", apperrors.ErrNotFound)
	}

	return products, nil
}

// ListByManufacturer pages through one manufacturer's catalog.
func (s *ProductService) ListByManufacturer(manufacturerID uuid.UUID, params utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("manufacturer_id = ?", manufacturerID)

	if params.Search != "" {
		searchTerm := "%" + params.Search + "%"
		query = query.Where("product_name LIKE ? OR sku LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "product_name", "sku", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

// Provenance merges the local history with the ledger's view. The ledger
// side degrades to empty on any failure.
func (s *ProductService) Provenance(ctx context.Context, id uuid.UUID) (*ProvenanceResult, error) {
	product, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	return &ProvenanceResult{
		Product:      product,
		History:      product.History,
		LedgerEvents: s.ledger.GetEvents(ctx, product.ID.String()),
	}, nil
}

// anchorEvent records the status change on the ledger and back-fills the
// transaction reference onto the history entry once it confirms. Runs
// detached; the bounded timeout is the only thing that ends a slow call.
func (s *ProductService) anchorEvent(product *models.Product, event *models.StatusEvent) {
	if !s.ledger.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ledger.client.Timeout)
	defer cancel()

	txRef, err := s.ledger.RecordEvent(ctx,
		product.ID.String(),
		string(event.Status),
		product.CurrentLocation,
		product.Description,
		product.IdentityHash,
	)
	if err != nil {
		logrus.WithError(err).WithField("product_id", product.ID).Warn("Ledger anchoring failed")
		return
	}

	if err := s.db.Model(&models.StatusEvent{}).
		Where("id = ?", event.ID).
		Update("ledger_tx_ref", txRef).Error; err != nil {
		logrus.WithError(err).Warn("Failed to back-fill ledger tx ref")
	}

	if product.LedgerRef == nil {
		if err := s.db.Model(&models.Product{}).
			Where("id = ? AND ledger_ref IS NULL", product.ID).
			Update("ledger_ref", txRef).Error; err != nil {
			logrus.WithError(err).Warn("Failed to record ledger ref")
		}
	}
}

func (s *ProductService) publishStatusChanged(product *models.Product, event *models.StatusEvent) {
	if !s.events.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Failure is already logged inside the publisher.
	_ = s.events.PublishStatusChanged(ctx, StatusChangedEvent{
		ProductID:    product.ID.String(),
		Status:       string(event.Status),
		Location:     product.CurrentLocation,
		IdentityHash: product.IdentityHash,
		Timestamp:    event.Timestamp,
	})
}
