package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/security"
)

type storeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByShopDomain(ctx context.Context, platform enums.Platform, domain string) (*models.Store, error)
	FindByAPIKeyPrefix(ctx context.Context, prefix string) (*models.Store, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error)
	UpdateAPIKey(ctx context.Context, id uuid.UUID, prefix, hash string) error
}

// Service resolves stores for webhooks, API keys and the dashboard.
type Service struct {
	repo   storeRepository
	keyCfg config.APIKeyConfig
}

func NewService(repo storeRepository, keyCfg config.APIKeyConfig) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &Service{repo: repo, keyCfg: keyCfg}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load store")
	}
	return store, nil
}

func (s *Service) ByShopDomain(ctx context.Context, platform enums.Platform, domain string) (*models.Store, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop domain required")
	}
	store, err := s.repo.FindByShopDomain(ctx, platform, domain)
	if err != nil {
		return nil, notFoundOr(err, "load store by domain")
	}
	return store, nil
}

func (s *Service) ForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error) {
	rows, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}
	return rows, nil
}

// Owned loads a store and checks the user owns it. Missing and foreign stores both read as not found.
func (s *Service) Owned(ctx context.Context, ownerID, storeID uuid.UUID) (*models.Store, error) {
	store, err := s.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.OwnerUserID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return store, nil
}

// Authenticate resolves the store behind an ink_<prefix>_<secret> key.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*models.Store, error) {
	prefix, secret, err := security.ParseAPIKey(rawKey)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	store, err := s.repo.FindByAPIKeyPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store by api key")
	}
	if store.APIKeyHash == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	ok, err := security.Verify(secret, *store.APIKeyHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	return store, nil
}

// RotateAPIKey issues a new key for an owned store. The plaintext is only returned here.
func (s *Service) RotateAPIKey(ctx context.Context, ownerID, storeID uuid.UUID) (string, error) {
	store, err := s.Owned(ctx, ownerID, storeID)
	if err != nil {
		return "", err
	}
	key, err := security.GenerateAPIKey(s.keyCfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate api key")
	}
	if err := s.repo.UpdateAPIKey(ctx, store.ID, key.Prefix, key.Hash); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store api key")
	}
	return key.Plaintext, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
