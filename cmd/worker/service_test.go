package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSubscriptions struct {
	err     error
	checked string
}

func (s *stubSubscriptions) PingSubscription(_ context.Context, name string) error {
	s.checked = name
	return s.err
}

type blockingConsumer struct{ started chan struct{} }

func (b blockingConsumer) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{ err error }

func (f failingConsumer) Run(context.Context) error { return f.err }

func newWorker(t *testing.T, subs *stubSubscriptions, consumers ...consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:       logger.Nop(),
		DB:           stubPinger{},
		Redis:        stubPinger{},
		PubSub:       subs,
		Subscription: "alerts",
		Consumers:    consumers,
	})
	require.NoError(t, err)
	return svc
}

func TestServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		PubSub: &stubSubscriptions{},
	})
	assert.Error(t, err)
}

func TestServiceFailsWhenSubscriptionMissing(t *testing.T) {
	subs := &stubSubscriptions{err: errors.New("subscription \"alerts\" does not exist")}
	svc := newWorker(t, subs, failingConsumer{})

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping failed")
	assert.Equal(t, "alerts", subs.checked)
}

func TestServiceReturnsConsumerError(t *testing.T) {
	svc := newWorker(t, &stubSubscriptions{}, failingConsumer{err: errors.New("receive failed")})

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receive failed")
}

func TestServiceStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	svc := newWorker(t, &stubSubscriptions{}, blockingConsumer{started: started})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("consumer never started")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
