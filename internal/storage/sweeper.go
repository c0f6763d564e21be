package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/narimato/narimato/internal/storage/repository"
)

// ExpirySweeper periodically deletes plays whose expiry deadline has
// passed. Expired plays reject all input regardless of the sweeper;
// deletion is cleanup, not enforcement.
type ExpirySweeper struct {
	plays        repository.PlayRepository
	config       *SweeperConfig
	ticker       *time.Ticker
	stopChan     chan struct{}
	mu           sync.RWMutex
	running      bool
	lastSweep    time.Time
	lastError    error
	sweepCount   int
	deletedTotal int64
}

// SweeperConfig holds configuration for the expiry sweeper.
type SweeperConfig struct {
	// Interval is how often to sweep.
	Interval time.Duration

	// StartImmediately runs a sweep as soon as the sweeper starts.
	// Default: false
	StartImmediately bool

	// OnSweepComplete is called after each sweep attempt (success or
	// failure). Optional callback for logging or metrics.
	OnSweepComplete func(deleted int64, err error)
}

// DefaultSweeperConfig returns a sweeper config with a 10 minute
// interval.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:         10 * time.Minute,
		StartImmediately: false,
	}
}

// NewExpirySweeper creates a new expiry sweeper.
func NewExpirySweeper(plays repository.PlayRepository, config *SweeperConfig) *ExpirySweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	return &ExpirySweeper{
		plays:    plays,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic sweeping. Returns an error if already running.
func (s *ExpirySweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	s.running = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.stopChan = make(chan struct{})

	go s.run()

	if s.config.StartImmediately {
		go s.sweep()
	}
	return nil
}

// Stop halts periodic sweeping.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.ticker.Stop()
	close(s.stopChan)
}

// SweepNow runs a single sweep synchronously and returns the number of
// plays deleted.
func (s *ExpirySweeper) SweepNow(ctx context.Context) (int64, error) {
	deleted, err := s.plays.DeleteExpired(ctx, time.Now())

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.lastError = err
	s.sweepCount++
	s.deletedTotal += deleted
	s.mu.Unlock()

	return deleted, err
}

// Status reports the sweeper's counters.
func (s *ExpirySweeper) Status() (running bool, sweeps int, deleted int64, lastErr error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running, s.sweepCount, s.deletedTotal, s.lastError
}

func (s *ExpirySweeper) run() {
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *ExpirySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.SweepNow(ctx)
	if s.config.OnSweepComplete != nil {
		s.config.OnSweepComplete(deleted, err)
	}
}
