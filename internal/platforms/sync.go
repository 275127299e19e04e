package platforms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type storeLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

// Syncer pushes local status changes to the storefront that owns an order.
type Syncer struct {
	stores storeLoader
	client HTTPDoer
	opts   []Option
	logg   *logger.Logger
}

func NewSyncer(stores storeLoader, client HTTPDoer, logg *logger.Logger, opts ...Option) (*Syncer, error) {
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Syncer{stores: stores, client: client, opts: opts, logg: logg}, nil
}

// SyncStatus never fails the caller. Adapter errors are logged and dropped.
func (s *Syncer) SyncStatus(ctx context.Context, order models.Order, update StatusUpdate) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	ctx = s.logg.WithPlatform(ctx, string(order.Platform))

	store, err := s.stores.Get(ctx, order.StoreID)
	if err != nil {
		s.logg.WarnErr(ctx, "platform sync skipped: store lookup failed", err)
		return
	}
	adapter, err := New(*store, s.client, s.opts...)
	if err != nil {
		s.logg.WarnErr(ctx, "platform sync skipped", err)
		return
	}
	if err := adapter.UpdateOrderStatus(ctx, order.ExternalOrderID, update); err != nil {
		if errors.Is(err, ErrNotConnected) {
			s.logg.Debug(ctx, "platform sync skipped: store not connected")
			return
		}
		s.logg.WarnErr(ctx, "platform status sync failed", err)
	}
}
