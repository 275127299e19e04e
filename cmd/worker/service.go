package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type subscriptionChecker interface {
	PingSubscription(ctx context.Context, name string) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	DB           pinger
	Redis        pinger
	PubSub       subscriptionChecker
	Subscription string
	Consumers    []consumer
}

// Service runs the Pub/Sub consumers of the worker process until one fails or ctx ends.
type Service struct {
	logg         *logger.Logger
	db           pinger
	redis        pinger
	pubsub       subscriptionChecker
	subscription string
	consumers    []consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		redis:        params.Redis,
		pubsub:       params.PubSub,
		subscription: params.Subscription,
		consumers:    params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "pubsub", func(ctx context.Context) error {
		return s.pubsub.PingSubscription(ctx, s.subscription)
	})
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, len(s.consumers))
	for _, c := range s.consumers {
		go func(c consumer) {
			errCh <- c.Run(runCtx)
		}(c)
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			return err
		}
		if err == nil {
			return errors.New("consumer exited")
		}
		return err
	}
}
