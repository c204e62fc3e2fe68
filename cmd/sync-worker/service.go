package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stocksync-backend/internal/syncqueue"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
)

const defaultDepthInterval = 15 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type statusReader interface {
	GetSyncQueueStatus(ctx context.Context) (syncqueue.QueueStatus, error)
}

type ServiceParams struct {
	Logger  *logger.Logger
	DB      pinger
	Redis   pinger
	Worker  runner
	Status  statusReader
	Metrics *metrics.SyncMetrics
	// DepthInterval is how often queue depth gauges are refreshed.
	DepthInterval time.Duration
}

type Service struct {
	logg          *logger.Logger
	db            pinger
	redis         pinger
	worker        runner
	status        statusReader
	metrics       *metrics.SyncMetrics
	depthInterval time.Duration
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
	if params.Worker == nil {
		return nil, errors.New("sync worker is required")
	}
	if params.Status == nil {
		return nil, errors.New("queue status reader is required")
	}
	interval := params.DepthInterval
	if interval <= 0 {
		interval = defaultDepthInterval
	}
	return &Service{
		logg:          params.Logger,
		db:            params.DB,
		redis:         params.Redis,
		worker:        params.Worker,
		status:        params.Status,
		metrics:       params.Metrics,
		depthInterval: interval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all sync worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run drains the queue until ctx is cancelled, refreshing depth gauges on a ticker.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.worker.Run(ctx)
	}()

	ticker := time.NewTicker(s.depthInterval)
	defer ticker.Stop()
	s.refreshDepth(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sync worker context canceled")
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "sync worker stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.refreshDepth(ctx)
		}
	}
}

func (s *Service) refreshDepth(ctx context.Context) {
	status, err := s.status.GetSyncQueueStatus(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logg.Warn(ctx, "sync queue depth refresh failed: "+err.Error())
		}
		return
	}
	s.metrics.SetQueueDepth(map[string]int64{
		"pending":    status.Pending,
		"processing": status.Processing,
		"failed":     status.Failed,
		"completed":  status.Completed,
		"dead":       status.Dead,
	})
}
