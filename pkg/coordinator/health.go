// Copyright 2025 Certen Protocol
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

var (
	// ErrCoordinatorStalled indicates the sortition tip has not advanced
	// for longer than the configured threshold (§5, §9).
	ErrCoordinatorStalled = errors.New("coordinator stalled: sortition tip not advancing")
)

// TipFetcher reports the coordinator's current sortition-tip height, the
// quantity StallMonitor watches for forward progress.
type TipFetcher interface {
	SortitionTipHeight(ctx context.Context) (uint64, error)
}

// StallMonitorConfig configures a StallMonitor.
type StallMonitorConfig struct {
	StallThreshold time.Duration
	CheckInterval  time.Duration
}

// DefaultStallMonitorConfig returns the coordinator's default stall-
// detection tuning.
func DefaultStallMonitorConfig() StallMonitorConfig {
	return StallMonitorConfig{
		StallThreshold: 2 * time.Minute,
		CheckInterval:  10 * time.Second,
	}
}

// StallMonitor watches the sortition tip for forward progress and
// raises callbacks on stall/recovery, independent of whether the stall
// is caused by an upstream burnchain outage or a stuck reorg (§5, §9).
type StallMonitor struct {
	mu sync.RWMutex

	lastHeight uint64
	lastMoved  time.Time

	threshold time.Duration
	interval  time.Duration

	isStalled         bool
	stallStartTime    time.Time
	consecutiveStalls int
	lastCheckTime     time.Time

	onStallDetected func(height uint64, duration time.Duration)
	onRecovery      func(height uint64)

	fetcher TipFetcher
	logger  cmtlog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewStallMonitor constructs a StallMonitor. logger defaults to a no-op
// logger if nil.
func NewStallMonitor(cfg StallMonitorConfig, fetcher TipFetcher, logger cmtlog.Logger) *StallMonitor {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StallMonitor{
		threshold: cfg.StallThreshold,
		interval:  cfg.CheckInterval,
		fetcher:   fetcher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetOnStallDetected sets the stall callback.
func (m *StallMonitor) SetOnStallDetected(fn func(height uint64, duration time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStallDetected = fn
}

// SetOnRecovery sets the recovery callback.
func (m *StallMonitor) SetOnRecovery(fn func(height uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecovery = fn
}

// Start begins the periodic check loop in a background goroutine.
func (m *StallMonitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("stall monitor already running")
	}
	m.running = true
	m.mu.Unlock()

	m.logger.Info("starting coordinator stall monitor", "stall_threshold", m.threshold)
	go m.loop()
	return nil
}

// Stop halts the check loop.
func (m *StallMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}

// Check performs one stall check against the current sortition tip.
func (m *StallMonitor) Check(ctx context.Context) error {
	if m.fetcher == nil {
		return fmt.Errorf("stall monitor: no tip fetcher configured")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	height, err := m.fetcher.SortitionTipHeight(checkCtx)
	if err != nil {
		return fmt.Errorf("stall monitor: fetch tip: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.lastCheckTime = now

	if height == m.lastHeight {
		stalled := now.Sub(m.lastMoved)
		if stalled > m.threshold {
			if !m.isStalled {
				m.isStalled = true
				m.stallStartTime = m.lastMoved
				m.consecutiveStalls++
				m.logger.Error("coordinator stalled", "height", m.lastHeight, "duration", stalled, "consecutive", m.consecutiveStalls)
				if m.onStallDetected != nil {
					go m.onStallDetected(m.lastHeight, stalled)
				}
			}
			return ErrCoordinatorStalled
		}
		return nil
	}

	wasStalled := m.isStalled
	m.lastHeight = height
	m.lastMoved = now
	m.isStalled = false
	if wasStalled {
		m.logger.Info("coordinator recovered from stall", "height", height)
		if m.onRecovery != nil {
			go m.onRecovery(height)
		}
	}
	return nil
}

func (m *StallMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	if err := m.Check(m.ctx); err != nil {
		m.logger.Info("initial stall check", "err", err)
	}
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			_ = m.Check(m.ctx)
		}
	}
}

// Status is the current stall-monitor snapshot, exposed over the
// coordinator's health endpoint.
type Status struct {
	Healthy           bool
	LastHeight        uint64
	IsStalled         bool
	StallDuration     time.Duration
	ConsecutiveStalls int
	LastCheckTime     time.Time
}

// GetStatus returns the current stall-monitor snapshot.
func (m *StallMonitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stallDuration time.Duration
	if m.isStalled {
		stallDuration = time.Since(m.stallStartTime)
	}
	return Status{
		Healthy:           !m.isStalled,
		LastHeight:        m.lastHeight,
		IsStalled:         m.isStalled,
		StallDuration:     stallDuration,
		ConsecutiveStalls: m.consecutiveStalls,
		LastCheckTime:     m.lastCheckTime,
	}
}

// SortitionTipHeight implements TipFetcher against the coordinator's own
// sortition store, so the event loop's wiring code can pass a
// Coordinator directly to NewStallMonitor.
func (c *Coordinator) SortitionTipHeight(ctx context.Context) (uint64, error) {
	tip, err := c.sortitions.GetCanonicalTip(ctx)
	if err != nil {
		return 0, err
	}
	return tip.BlockHeight, nil
}

var _ TipFetcher = (*Coordinator)(nil)
