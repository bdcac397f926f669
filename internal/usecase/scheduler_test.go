package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/metrics"
)

type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	unlocked int
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.unlocked++
	return nil
}

func TestSchedulerRunNowRefreshesAndPublishes(t *testing.T) {
	an := &stubAnalyzer{}
	pub := &memPublisher{}
	lock := &memLocker{}
	s := NewScheduler(config.Default(), an, pub, lock, metrics.Nop{}, applogger.Nop())

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(an.refreshed) != 1 || len(an.refreshed[0]) != 3 || len(pub.published) != 3 {
		t.Fatalf("refreshed %v published %d", an.refreshed, len(pub.published))
	}
	if lock.unlocked != 1 {
		t.Fatal("lock not released")
	}
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	an := &stubAnalyzer{}
	lock := &memLocker{held: map[string]bool{refreshLockKey: true}}
	s := NewScheduler(config.Default(), an, &memPublisher{}, lock, metrics.Nop{}, applogger.Nop())
	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(an.refreshed) != 0 {
		t.Fatal("refresh ran while another replica held the lock")
	}
}

func TestSchedulerRunsUnguardedWhenLockErrors(t *testing.T) {
	an := &stubAnalyzer{}
	s := NewScheduler(config.Default(), an, &memPublisher{}, &memLocker{err: errors.New("redis down")}, metrics.Nop{}, applogger.Nop())
	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(an.refreshed) != 1 {
		t.Fatal("refresh must still run when the lock backend fails")
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Spec = "every now and then"
	s := NewScheduler(cfg, &stubAnalyzer{}, &memPublisher{}, nil, metrics.Nop{}, applogger.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected spec error")
	}
}
