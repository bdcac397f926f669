package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domrepo "CryptoSignal/internal/domain/repository"
	pkgcache "CryptoSignal/pkg/cache"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

var refreshLockKey = pkgcache.GenerateKey("lock", "scheduled-refresh")

// Locker guards a job across replicas. *pkgcache.RedisCache satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Scheduler refreshes every configured symbol on a cron spec and publishes
// the bundles.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	lockTTL   time.Duration
	symbols   []string
	pipeline  Analyzer
	publisher domrepo.Publisher
	locker    Locker
	metrics   domrepo.Metrics
	log       *applogger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds the scheduler. locker may be nil for single-replica runs.
func NewScheduler(cfg *config.Config, p Analyzer, pub domrepo.Publisher, locker Locker, m domrepo.Metrics, log *applogger.Logger) *Scheduler {
	symbols := make([]string, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		symbols[i] = s.Symbol
	}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:      cfg.Scheduler.Spec,
		lockTTL:   cfg.Scheduler.LockTTL,
		symbols:   symbols,
		pipeline:  p,
		publisher: pub,
		locker:    locker,
		metrics:   m,
		log:       log.Named("scheduler"),
	}
}

// Start registers the refresh job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.spec, func() { _ = s.RunNow(s.jobContext()) }); err != nil {
		return fmt.Errorf("register refresh job %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", applogger.String("spec", s.spec), applogger.Strings("symbols", s.symbols))
	return nil
}

// Stop stops the cron runner and waits for a running job up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// RunNow executes one refresh. It is a no-op when another replica holds the lock.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, refreshLockKey, s.lockTTL)
		if err != nil {
			s.metrics.RecordError("scheduler_lock")
			s.log.Warn("lock unavailable, running unguarded", applogger.Error(err))
		} else if !ok {
			s.log.Debug("refresh skipped, lock held elsewhere")
			return nil
		} else {
			defer func() {
				if err := s.locker.Unlock(context.Background(), refreshLockKey); err != nil {
					s.log.Warn("unlock failed", applogger.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	bundles := s.pipeline.Refresh(ctx, s.symbols)
	if err := s.publisher.PublishBatch(ctx, bundles); err != nil {
		s.metrics.RecordError("scheduler_publish")
		s.log.Error("publish failed", applogger.Error(err))
		return err
	}
	s.metrics.RecordLatency("scheduled_refresh", time.Since(start).Seconds())
	s.log.Info("scheduled refresh done",
		applogger.Int("bundles", len(bundles)),
		applogger.Duration("elapsed", time.Since(start)))
	return nil
}
