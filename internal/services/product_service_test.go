// internal/services/product_service_test.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/protrace/backend/internal/apperrors"
	"github.com/protrace/backend/internal/config"
	"github.com/protrace/backend/internal/models"
	"github.com/protrace/backend/internal/utils"
)

type ProductServiceTestSuite struct {
	suite.Suite
	db           *gorm.DB
	service      *ProductService
	manufacturer *models.User
}

func (s *ProductServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	cfg := newTestConfig()

	// Ledger and event publishing stay disabled; code images fall back to
	// local references.
	s.service = NewProductService(
		s.db,
		NewLedgerService(config.LedgerConfig{}),
		NewEventsService(config.EventsConfig{}),
		NewQRCodeService(cfg),
	)

	s.manufacturer = &models.User{
		Username: "acme",
		Email:    "acme@example.com",
		Role:     models.RoleManufacturer,
	}
	s.Require().NoError(s.manufacturer.SetPassword("Sup3rSecret"))
	s.Require().NoError(s.db.Create(s.manufacturer).Error)
}

func (s *ProductServiceTestSuite) create(name, sku string) *models.Product {
	product, err := s.service.Create(s.manufacturer.ID, &CreateProductRequest{
		ProductName:     name,
		Description:     "test product",
		SKU:             sku,
		CurrentLocation: "Plant 1",
	})
	s.Require().NoError(err)
	return product
}

func (s *ProductServiceTestSuite) TestCreateRegistersProduct() {
	product := s.create("Widget", "wgt-001")

	s.Equal("WGT-001", product.SKU)
	s.Equal(models.StatusCreated, product.Status)
	s.True(product.IsActive)
	s.Len(product.IdentityHash, 64)
	s.Require().NotNil(product.CodeImageRef)
	s.NotEmpty(*product.CodeImageRef)

	// The identity hash is recomputable from the stored fields.
	s.Equal(utils.ComputeIdentityHash("Widget", "WGT-001", s.manufacturer.ID.String()), product.IdentityHash)

	// Registration writes the initial history entry atomically.
	s.Require().Len(product.History, 1)
	s.Equal(models.StatusCreated, product.History[0].Status)
	s.Nil(product.History[0].LedgerTxRef)
}

func (s *ProductServiceTestSuite) TestCreateDuplicateSKUConflicts() {
	s.create("Widget", "WGT-001")

	// SKU uniqueness is case-insensitive through normalization.
	_, err := s.service.Create(s.manufacturer.ID, &CreateProductRequest{
		ProductName:     "Other Widget",
		Description:     "test product",
		SKU:             "wgt-001",
		CurrentLocation: "Plant 1",
	})
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *ProductServiceTestSuite) TestCreateSameSKUDifferentManufacturer() {
	s.create("Widget", "WGT-001")

	other := &models.User{
		Username: "globex",
		Email:    "globex@example.com",
		Role:     models.RoleManufacturer,
	}
	s.Require().NoError(other.SetPassword("Sup3rSecret"))
	s.Require().NoError(s.db.Create(other).Error)

	first, err := s.service.GetByIdentityHash(
		utils.ComputeIdentityHash("Widget", "WGT-001", s.manufacturer.ID.String()))
	s.Require().NoError(err)

	second, err := s.service.Create(other.ID, &CreateProductRequest{
		ProductName:     "Widget",
		Description:     "test product",
		SKU:             "WGT-001",
		CurrentLocation: "Plant 2",
	})
	s.Require().NoError(err)

	// Each product's code image is keyed on its own identity hash, so the
	// two registrations can never share a stored object.
	s.Require().NotNil(first.CodeImageRef)
	s.Require().NotNil(second.CodeImageRef)
	s.NotEqual(*first.CodeImageRef, *second.CodeImageRef)
	s.Contains(*first.CodeImageRef, first.IdentityHash)
	s.Contains(*second.CodeImageRef, second.IdentityHash)
}

func (s *ProductServiceTestSuite) TestCreateRejectsMissingFields() {
	_, err := s.service.Create(s.manufacturer.ID, &CreateProductRequest{
		ProductName: "Widget",
	})
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *ProductServiceTestSuite) TestCreateUnknownManufacturer() {
	_, err := s.service.Create(uuid.New(), &CreateProductRequest{
		ProductName:     "Widget",
		Description:     "test product",
		SKU:             "WGT-001",
		CurrentLocation: "Plant 1",
	})
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *ProductServiceTestSuite) TestGetByIDNotFound() {
	_, err := s.service.GetByID(uuid.New())
	s.ErrorIs(err, apperrors.ErrNotFound)
}

// A deactivated record exists but is not served; the failure is distinct
// from not-found.
func (s *ProductServiceTestSuite) TestGetByIDInactiveIsForbidden() {
	product := s.create("Widget", "WGT-001")

	s.Require().NoError(s.db.Model(product).Update("is_active", false).Error)

	_, err := s.service.GetByID(product.ID)
	s.ErrorIs(err, apperrors.ErrForbidden)
}

func (s *ProductServiceTestSuite) TestGetByIdentityHash() {
	product := s.create("Widget", "WGT-001")

	found, err := s.service.GetByIdentityHash(product.IdentityHash)
	s.Require().NoError(err)
	s.Equal(product.ID, found.ID)

	_, err = s.service.GetByIdentityHash(utils.HashString("unknown"))
	s.ErrorIs(err, apperrors.ErrNotFound)
}

// The manufacturer and location projections serve inactive records too.
func (s *ProductServiceTestSuite) TestProjectionsIgnoreActiveFlag() {
	product := s.create("Widget", "WGT-001")
	s.Require().NoError(s.db.Model(product).Update("is_active", false).Error)

	manufacturer, err := s.service.GetManufacturer(product.ID)
	s.Require().NoError(err)
	s.Equal("acme", manufacturer.Username)

	location, err := s.service.GetCurrentLocation(product.ID)
	s.Require().NoError(err)
	s.Equal("Plant 1", location.CurrentLocation)
}

func (s *ProductServiceTestSuite) TestUpdateStatusAppendsHistory() {
	product := s.create("Widget", "WGT-001")

	updated, err := s.service.UpdateStatus(product.ID, models.StatusInTransit)
	s.Require().NoError(err)
	s.Equal(models.StatusInTransit, updated.Status)

	s.Require().Len(updated.History, 2)
	s.Equal(models.StatusCreated, updated.History[0].Status)
	s.Equal(models.StatusInTransit, updated.History[1].Status)
}

func (s *ProductServiceTestSuite) TestUpdateStatusRejectsUnknownStatus() {
	product := s.create("Widget", "WGT-001")

	_, err := s.service.UpdateStatus(product.ID, "TELEPORTED")
	s.ErrorIs(err, apperrors.ErrValidation)

	// The rejected update leaves no trace in the history.
	fetched, err := s.service.GetByID(product.ID)
	s.Require().NoError(err)
	s.Len(fetched.History, 1)
}

// Any declared status is reachable from any other.
func (s *ProductServiceTestSuite) TestUpdateStatusHasNoTransitionGraph() {
	product := s.create("Widget", "WGT-001")

	for _, status := range []models.ProductStatus{
		models.StatusDelivered,
		models.StatusInTransit,
		models.StatusRecalled,
		models.StatusCreated,
	} {
		updated, err := s.service.UpdateStatus(product.ID, status)
		s.Require().NoError(err)
		s.Equal(status, updated.Status)
	}
}

func (s *ProductServiceTestSuite) TestMarkDamaged() {
	product := s.create("Widget", "WGT-001")

	updated, err := s.service.MarkDamaged(product.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDamaged, updated.Status)
}

func (s *ProductServiceTestSuite) TestUpdateDetailsPartial() {
	product := s.create("Widget", "WGT-001")

	newName := "Widget Mk2"
	newSKU := "wgt-002"
	updated, err := s.service.UpdateDetails(product.ID, &UpdateDetailsRequest{
		ProductName: &newName,
		SKU:         &newSKU,
	})
	s.Require().NoError(err)
	s.Equal("Widget Mk2", updated.ProductName)
	s.Equal("WGT-002", updated.SKU)
	// Untouched fields survive.
	s.Equal("test product", updated.Description)
	// The identity hash is never recomputed after registration.
	s.Equal(product.IdentityHash, updated.IdentityHash)
}

func (s *ProductServiceTestSuite) TestUpdateDetailsSKUCollisionConflicts() {
	s.create("Widget", "WGT-001")
	product := s.create("Gadget", "GDT-001")

	takenSKU := "wgt-001"
	_, err := s.service.UpdateDetails(product.ID, &UpdateDetailsRequest{
		SKU: &takenSKU,
	})
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *ProductServiceTestSuite) TestUpdateDetailsEmptyRequest() {
	product := s.create("Widget", "WGT-001")

	_, err := s.service.UpdateDetails(product.ID, &UpdateDetailsRequest{})
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *ProductServiceTestSuite) TestDeleteRemovesProductAndHistory() {
	product := s.create("Widget", "WGT-001")
	_, err := s.service.UpdateStatus(product.ID, models.StatusInTransit)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(product.ID))

	_, err = s.service.GetByID(product.ID)
	s.ErrorIs(err, apperrors.ErrNotFound)

	var count int64
	s.Require().NoError(s.db.Model(&models.StatusEvent{}).
		Where("product_id = ?", product.ID).Count(&count).Error)
	s.Zero(count)
}

func (s *ProductServiceTestSuite) TestDeleteNotFound() {
	s.ErrorIs(s.service.Delete(uuid.New()), apperrors.ErrNotFound)
}

// An empty catalog is reported as not-found, not as an empty success.
func (s *ProductServiceTestSuite) TestListAllEmptyIsNotFound() {
	_, err := s.service.ListAll()
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *ProductServiceTestSuite) TestListAllIncludesInactive() {
	s.create("Widget", "WGT-001")
	inactive := s.create("Gadget", "GDT-001")
	s.Require().NoError(s.db.Model(inactive).Update("is_active", false).Error)

	products, err := s.service.ListAll()
	s.Require().NoError(err)
	s.Len(products, 2)
}

func (s *ProductServiceTestSuite) TestListByManufacturer() {
	s.create("Widget", "WGT-001")
	s.create("Gadget", "GDT-001")

	products, total, err := s.service.ListByManufacturer(s.manufacturer.ID, utils.PaginationParams{
		Page:  1,
		Limit: 1,
		Sort:  "created_at",
		Order: "asc",
	})
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(products, 1)
}

func (s *ProductServiceTestSuite) TestProvenanceWithoutLedger() {
	product := s.create("Widget", "WGT-001")
	_, err := s.service.UpdateStatus(product.ID, models.StatusDelivered)
	s.Require().NoError(err)

	provenance, err := s.service.Provenance(context.Background(), product.ID)
	s.Require().NoError(err)
	s.Len(provenance.History, 2)
	s.Empty(provenance.LedgerEvents)
}

// The ledger anchors run detached from the request goroutine and read a
// snapshot of the product, so every anchored event must carry the product's
// real identity and end up back-filled with its tx ref.
func (s *ProductServiceTestSuite) TestUpdateStatusAnchorsFromSnapshot() {
	var mu sync.Mutex
	var anchored []recordEventRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		anchored = append(anchored, req)
		mu.Unlock()
		json.NewEncoder(w).Encode(recordEventResponse{TxRef: "0x" + req.EventType})
	}))
	defer server.Close()

	svc := NewProductService(
		s.db,
		NewLedgerService(config.LedgerConfig{GatewayURL: server.URL, Timeout: 5}),
		NewEventsService(config.EventsConfig{}),
		NewQRCodeService(newTestConfig()),
	)

	product, err := svc.Create(s.manufacturer.ID, &CreateProductRequest{
		ProductName:     "Widget",
		Description:     "test product",
		SKU:             "WGT-001",
		CurrentLocation: "Plant 1",
	})
	s.Require().NoError(err)

	statuses := []models.ProductStatus{
		models.StatusInTransit,
		models.StatusAtWarehouse,
		models.StatusDelivered,
	}
	for _, status := range statuses {
		_, err := svc.UpdateStatus(product.ID, status)
		s.Require().NoError(err)
	}

	// The anchors are fire-and-forget; wait for every tx ref to land.
	s.Require().Eventually(func() bool {
		var n int64
		s.db.Model(&models.StatusEvent{}).
			Where("product_id = ? AND ledger_tx_ref IS NOT NULL", product.ID).
			Count(&n)
		return n == int64(len(statuses))
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Require().Len(anchored, len(statuses))
	for _, req := range anchored {
		s.Equal(product.ID.String(), req.ProductID)
		s.Equal(product.IdentityHash, req.IdentityHash)
	}
}

// N racing creates for the same catalog key: the constraint lets exactly one
// through and the rest surface as conflicts.
func (s *ProductServiceTestSuite) TestConcurrentCreatesSingleWinner() {
	const workers = 8

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Create(s.manufacturer.ID, &CreateProductRequest{
				ProductName:     "Widget",
				Description:     "test product",
				SKU:             "WGT-001",
				CurrentLocation: "Plant 1",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrConflict):
			conflicts++
		default:
			s.Require().NoError(err)
		}
	}

	s.Equal(1, wins)
	s.Equal(workers-1, conflicts)
}

func TestProductServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ProductServiceTestSuite))
}
