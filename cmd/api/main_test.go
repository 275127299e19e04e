package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/db/dbtest"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/redis"
)

func TestBuildDependenciesWiresEveryService(t *testing.T) {
	cfg := &config.Config{
		JWT:         config.JWTConfig{Secret: "secret", Issuer: "inkroute", ExpirationMinutes: 60, RefreshTokenHours: 720},
		Fulfillment: config.FulfillmentConfig{FlatShippingCents: 500, MaxJobAttempts: 3, DefaultStrategy: "balanced"},
		Webhooks:    config.WebhookConfig{DedupeTTL: time.Hour, AdapterTimeout: time.Second},
	}

	deps, err := buildDependencies(cfg, logger.Nop(), db.FromGorm(dbtest.Open(t)), &redis.Client{})
	require.NoError(t, err)

	assert.NotNil(t, deps.Auth)
	assert.NotNil(t, deps.Stores)
	assert.NotNil(t, deps.Products)
	assert.NotNil(t, deps.Orders)
	assert.NotNil(t, deps.Fulfillment)
	assert.NotNil(t, deps.Notifications)
	assert.NotNil(t, deps.Providers)
	assert.NotNil(t, deps.Users)
	assert.NotNil(t, deps.Quota)
	assert.NotNil(t, deps.Webhooks)
}
