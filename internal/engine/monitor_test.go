package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantdesk/pipeline/internal/market"
)

type failingFeed struct{}

func (failingFeed) Poll(ctx context.Context, symbols []string) ([]market.Observation, error) {
	return nil, errors.New("provider unavailable")
}

func (failingFeed) Source() market.Source { return market.SourceReal }

func newMonitor(t *testing.T, feed market.Feed) *Monitor {
	t.Helper()
	st := newTestStack(t)
	return NewMonitor(st.pipeline, feed, nil, []string{"PETR4"})
}

func simFeed() *market.SimFeed {
	return market.NewSimFeed(42, map[string]market.SimSymbol{
		"PETR4": {BasePrice: 38.50, Volatility: 0.02, AvgVolume: 1_000_000},
	})
}

func TestMonitorStartStop(t *testing.T) {
	m := newMonitor(t, simFeed())

	m.Start(10 * time.Millisecond)
	if !m.Running() {
		t.Fatal("monitor should be running after Start")
	}
	// second Start is a no-op while a loop is active
	m.Start(10 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for m.GetCounters().Ticks < 2 {
		if time.Now().After(deadline) {
			t.Fatal("monitor never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	if m.Running() {
		t.Fatal("monitor should be stopped after Stop")
	}
	// Stop again must not block or panic
	m.Stop()

	ticks := m.GetCounters().Ticks
	time.Sleep(50 * time.Millisecond)
	if m.GetCounters().Ticks != ticks {
		t.Fatal("no ticks may run after Stop returns")
	}
}

func TestMonitorRestart(t *testing.T) {
	m := newMonitor(t, simFeed())

	m.Start(10 * time.Millisecond)
	m.Stop()
	m.Start(10 * time.Millisecond)
	if !m.Running() {
		t.Fatal("monitor should accept a restart")
	}
	m.Stop()
}

func TestManualScan(t *testing.T) {
	m := newMonitor(t, simFeed())

	res, err := m.ManualScan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot.Timestamp.IsZero() {
		t.Fatal("manual scan should run a full tick")
	}
	if m.GetCounters().Ticks != 1 {
		t.Fatalf("want 1 tick counted, got %d", m.GetCounters().Ticks)
	}
}

func TestMonitorSurvivesPollErrors(t *testing.T) {
	m := newMonitor(t, failingFeed{})

	m.Start(5 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for m.GetCounters().PollErrors < 3 {
		if time.Now().After(deadline) {
			t.Fatal("poll errors never accumulated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !m.Running() {
		t.Fatal("poll errors must not stop the loop")
	}
	m.Stop()

	c := m.GetCounters()
	if c.Ticks != 0 {
		t.Fatalf("failed polls must not count ticks, got %d", c.Ticks)
	}
	if c.TickErrors == 0 {
		t.Fatal("failed scans should be counted")
	}
}
