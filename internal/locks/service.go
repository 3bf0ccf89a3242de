// Package locks implements the advisory locking used to serialize
// concurrent analysis pipelines against the same (project, branch,
// analysisType) (spec §4.1, Invariant L-1).
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ilogging "github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/store"
)

// Config configures Service, following the config-struct-with-defaults
// constructor convention used by the fixer engine.
type Config struct {
	Logger *zap.Logger

	// Redis is optional; when nil, acquireWithWait falls back to plain
	// polling at PollInterval without the pub/sub wake-up accelerator.
	Redis *redis.Client

	DefaultTTL   time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Service serializes analysis pipelines via AnalysisLock rows. The database
// conditional insert is the correctness source of truth (Invariant L-1);
// Redis pub/sub, when configured, only shortens the poll latency of
// AcquireWithWait — it is never consulted for correctness.
type Service struct {
	locks  *store.LockRepository
	redis  *redis.Client
	logger *zap.Logger

	defaultTTL   time.Duration
	pollInterval time.Duration
	maxWait      time.Duration
}

const lockReleaseChannelPrefix = "codecrow:lock-released:"

func New(locks *store.LockRepository, cfg Config) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		locks:        locks,
		redis:        cfg.Redis,
		logger:       cfg.Logger,
		defaultTTL:   cfg.DefaultTTL,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
	}
}

// Key derives the lock_key for a (projectID, branchName, analysisType)
// triple (spec §4.1: "one lock per project+branch+analysisType").
func Key(projectID, branchName string, analysisType store.AnalysisType) string {
	return fmt.Sprintf("%s:%s:%s", projectID, branchName, analysisType)
}

// Acquire attempts a single non-blocking acquire. Returns
// store.ErrLockNotAcquired if an unexpired lock already holds the key.
func (s *Service) Acquire(ctx context.Context, projectID, branchName string, analysisType store.AnalysisType, commitHash *string, prNumber *int) (*store.AnalysisLock, error) {
	key := Key(projectID, branchName, analysisType)
	lock, err := s.locks.Acquire(ctx, key, projectID, branchName, analysisType, commitHash, prNumber, s.defaultTTL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("lock acquired", ilogging.NewFields().Resource("lock", key)...)
	return lock, nil
}

// AcquireWithWait polls Acquire until it succeeds, ctx is cancelled, or
// maxWait elapses. When Redis is configured it subscribes to the key's
// release channel so it can retry promptly after a Release, instead of
// idling the full PollInterval.
func (s *Service) AcquireWithWait(ctx context.Context, projectID, branchName string, analysisType store.AnalysisType, commitHash *string, prNumber *int) (*store.AnalysisLock, error) {
	key := Key(projectID, branchName, analysisType)

	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	lock, err := s.Acquire(ctx, projectID, branchName, analysisType, commitHash, prNumber)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, store.ErrLockNotAcquired) {
		return nil, err
	}

	wake := s.subscribeRelease(ctx, key)
	if wake != nil {
		defer wake.Close()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var wakeCh <-chan *redis.Message
		if wake != nil {
			wakeCh = wake.Channel()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		case <-wakeCh:
		}

		lock, err = s.Acquire(ctx, projectID, branchName, analysisType, commitHash, prNumber)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, store.ErrLockNotAcquired) {
			return nil, err
		}
	}
}

// Release deletes the lock row and, if Redis is configured, publishes a
// wake-up so any AcquireWithWait callers blocked on this key retry
// immediately.
func (s *Service) Release(ctx context.Context, projectID, branchName string, analysisType store.AnalysisType) error {
	key := Key(projectID, branchName, analysisType)
	if err := s.locks.Release(ctx, key); err != nil {
		return err
	}
	if s.redis != nil {
		if err := s.redis.Publish(ctx, lockReleaseChannelPrefix+key, "1").Err(); err != nil {
			s.logger.Warn("lock release publish failed", ilogging.NewFields().Resource("lock", key).Error(err)...)
		}
	}
	return nil
}

// SweepExpired removes expired lock rows, for the periodic janitor.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.locks.SweepExpired(ctx)
}

func (s *Service) subscribeRelease(ctx context.Context, key string) *redis.PubSub {
	if s.redis == nil {
		return nil
	}
	return s.redis.Subscribe(ctx, lockReleaseChannelPrefix+key)
}
