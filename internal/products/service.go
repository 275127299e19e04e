package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

type storeLoader interface {
	Owned(ctx context.Context, ownerID, storeID uuid.UUID) (*models.Store, error)
}

type quotaLedger interface {
	ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error)
	Check(ctx context.Context, sub models.Subscription, resource enums.QuotaResource, delta int64) error
	Increment(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) (models.Subscription, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput is a merchant's new product. StoreID selects the subscription the product counts against.
type CreateInput struct {
	StoreID        uuid.UUID  `json:"store_id" validate:"required"`
	DesignID       *uuid.UUID `json:"design_id"`
	Name           string     `json:"name" validate:"required,max=200"`
	ProductType    string     `json:"product_type" validate:"required,max=64"`
	BasePriceCents int64      `json:"base_price_cents" validate:"gt=0"`
	MockupBytes    int64      `json:"mockup_bytes" validate:"gte=0"`
}

// LinkInput maps a product to its listing on a storefront.
type LinkInput struct {
	StoreID           uuid.UUID `json:"store_id" validate:"required"`
	ExternalProductID string    `json:"external_product_id" validate:"required"`
}

// ListResult is a page of products.
type ListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}

// Service manages a merchant's catalog.
type Service struct {
	repo   *Repository
	db     txRunner
	stores storeLoader
	quota  quotaLedger
	now    func() time.Time
}

func NewService(repo *Repository, dbClient *db.Client, stores storeLoader, quota quotaLedger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	if quota == nil {
		return nil, fmt.Errorf("quota ledger required")
	}
	return &Service{repo: repo, db: dbClient, stores: stores, quota: quota, now: time.Now}, nil
}

// ListPublished returns the published catalog of a user.
func (s *Service) ListPublished(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	status := enums.ProductStatusPublished
	return s.list(ctx, userID, &status, params)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	return s.list(ctx, userID, nil, params)
}

func (s *Service) list(ctx context.Context, userID uuid.UUID, status *enums.ProductStatus, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, status, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items, next := pagination.Trim(rows, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	if items == nil {
		items = []models.Product{}
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

// Get returns a product. Only the owner may read a product through this path.
func (s *Service) Get(ctx context.Context, userID, productID uuid.UUID) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if p.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another merchant")
	}
	return p, nil
}

// Create adds a draft product after checking the product and storage allowances.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Product, error) {
	store, err := s.stores.Owned(ctx, userID, input.StoreID)
	if err != nil {
		return nil, err
	}
	sub, err := s.quota.ForStore(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, sub, enums.ResourceProducts, 1); err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, sub, enums.ResourceStorage, input.MockupBytes); err != nil {
		return nil, err
	}

	p := &models.Product{
		UserID:         userID,
		DesignID:       input.DesignID,
		Name:           strings.TrimSpace(input.Name),
		ProductType:    strings.ToLower(strings.TrimSpace(input.ProductType)),
		BasePriceCents: input.BasePriceCents,
		MockupBytes:    input.MockupBytes,
		Status:         enums.ProductStatusDraft,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}

	if _, err := s.quota.Increment(ctx, sub.ID, enums.ResourceProducts, 1); err != nil {
		return nil, err
	}
	if p.MockupBytes > 0 {
		if _, err := s.quota.Increment(ctx, sub.ID, enums.ResourceStorage, p.MockupBytes); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetStatus publishes or archives a product. Archiving releases a product slot on the given store.
func (s *Service) SetStatus(ctx context.Context, userID, storeID, productID uuid.UUID, status enums.ProductStatus) (*models.Product, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product status")
	}
	p, err := s.Get(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if p.Status == status {
		return p, nil
	}
	if _, err := s.stores.Owned(ctx, userID, storeID); err != nil {
		return nil, err
	}

	var delta int64
	switch {
	case status == enums.ProductStatusArchived:
		delta = -1
	case p.Status == enums.ProductStatusArchived:
		delta = 1
	}

	sub, err := s.quota.ForStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if delta > 0 {
		if err := s.quota.Check(ctx, sub, enums.ResourceProducts, delta); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, p.ID, status, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
	}
	if delta != 0 {
		if _, err := s.quota.Increment(ctx, sub.ID, enums.ResourceProducts, delta); err != nil {
			return nil, err
		}
	}
	p.Status = status
	return p, nil
}

// Link records the storefront listing of a product so incoming orders can be matched to it.
func (s *Service) Link(ctx context.Context, userID, productID uuid.UUID, input LinkInput) (*models.ProductExternalRef, error) {
	p, err := s.Get(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	store, err := s.stores.Owned(ctx, userID, input.StoreID)
	if err != nil {
		return nil, err
	}
	ref := &models.ProductExternalRef{
		ProductID:         p.ID,
		StoreID:           store.ID,
		Platform:          store.Platform,
		ExternalProductID: strings.TrimSpace(input.ExternalProductID),
	}
	if err := s.repo.CreateExternalRef(ctx, ref); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing already linked")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link product")
	}
	return ref, nil
}
