package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/portfolio"
)

// Counters are the cumulative totals the monitoring loop exposes.
type Counters struct {
	Ticks         int64 `json:"ticks"`
	Opportunities int64 `json:"opportunities"`
	Proposals     int64 `json:"proposals"`
	Executions    int64 `json:"executions"`
	PollErrors    int64 `json:"poll_errors"`
	TickErrors    int64 `json:"tick_errors"`
}

// Monitor polls a live feed on a fixed cadence and pushes each poll
// through the pipeline. Start is idempotent and Stop is graceful: the
// tick in flight finishes, the next one never starts.
type Monitor struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	pipeline *Pipeline
	feed     market.Feed
	capture  *market.CaptureStore
	symbols  []string

	ticks      atomic.Int64
	proposals  atomic.Int64
	executions atomic.Int64
	pollErrors atomic.Int64
	tickErrors atomic.Int64
}

func NewMonitor(pl *Pipeline, feed market.Feed, capture *market.CaptureStore, symbols []string) *Monitor {
	return &Monitor{pipeline: pl, feed: feed, capture: capture, symbols: symbols}
}

// Start launches the polling loop. Starting while already running is a
// no-op, not an error: exactly one loop is ever active.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	if interval <= 0 {
		interval = 300 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	observ.Log("monitoring_started", map[string]any{"interval_seconds": interval.Seconds()})

	go m.run(ctx, interval)
}

// Stop ends the loop after the tick in flight completes. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	observ.Log("monitoring_stopped", nil)
}

// Running reports whether a loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ManualScan runs one on-demand tick immediately. Safe to call while the
// loop is running; the pipeline serializes the two.
func (m *Monitor) ManualScan(ctx context.Context) (TickResult, error) {
	return m.scan(ctx)
}

// GetCounters returns the cumulative totals for external inspection.
// Opportunities counts signals that cleared their strategy minimum,
// whether or not sizing produced a proposal.
func (m *Monitor) GetCounters() Counters {
	return Counters{
		Ticks:         m.ticks.Load(),
		Opportunities: observ.CounterTotal("opportunities_total"),
		Proposals:     m.proposals.Load(),
		Executions:    m.executions.Load(),
		PollErrors:    m.pollErrors.Load(),
		TickErrors:    m.tickErrors.Load(),
	}
}

func (m *Monitor) run(ctx context.Context, interval time.Duration) {
	defer func() {
		m.mu.Lock()
		m.running = false
		close(m.done)
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// re-check before every tick so Stop never starts a new one
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := m.scan(ctx); err != nil {
			if errors.Is(err, portfolio.ErrStateCorruption) {
				// invariant violation: halt the loop, require manual restart
				observ.Log("monitoring_halted", map[string]any{"error": err.Error()})
				return
			}
			// a failed tick never stops the loop
			m.tickErrors.Add(1)
			observ.Log("monitoring_tick_error", map[string]any{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) scan(ctx context.Context) (TickResult, error) {
	observations, err := m.feed.Poll(ctx, m.symbols)
	if err != nil {
		m.pollErrors.Add(1)
		return TickResult{}, err
	}

	if m.capture != nil {
		for _, obs := range observations {
			if err := m.capture.Write(m.feed.Source(), obs); err != nil {
				observ.Log("capture_error", map[string]any{"symbol": obs.Symbol, "error": err.Error()})
			}
		}
	}

	res, err := m.pipeline.SubmitTick(observations)
	if err != nil {
		return res, err
	}

	m.ticks.Add(1)
	m.proposals.Add(int64(len(res.Proposals)))
	m.executions.Add(int64(len(res.Executions)))
	return res, nil
}
