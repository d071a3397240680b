package execution

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/trader"
)

func newSim(t *testing.T, cfg SimConfig) (*Simulator, *journal.Journal) {
	t.Helper()
	jrnl, err := journal.New(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	return NewSimulator(cfg, jrnl), jrnl
}

func buyProposal(qty, price float64) *trader.Proposal {
	return &trader.Proposal{
		ID:       "p-exec",
		Symbol:   "PETR4",
		Side:     "BUY",
		Quantity: qty,
		RefPrice: price,
		Status:   trader.StatusApproved,
	}
}

func obsWithVolume(avgVolume float64) market.Observation {
	return market.Observation{
		Symbol:    "PETR4",
		Timestamp: time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC),
		Last:      100,
		AvgVolume: avgVolume,
	}
}

func TestBuySlipsUpSellSlipsDown(t *testing.T) {
	sim, _ := newSim(t, SimConfig{SpreadBps: 5, ImpactCoeffBps: 2500, MaxParticipation: 0.02})
	obs := obsWithVolume(100000)

	buy, err := sim.Submit(buyProposal(100, 100), 100, obs)
	if err != nil {
		t.Fatal(err)
	}
	if buy.Status != StatusFilled || buy.Quantity != 100 {
		t.Fatalf("want full fill, got %+v", buy)
	}
	if buy.FillPrice <= 100 {
		t.Fatalf("buy must pay up, got %f", buy.FillPrice)
	}

	sell := buyProposal(100, 100)
	sell.Side = "SELL"
	fill, err := sim.Submit(sell, 100, obs)
	if err != nil {
		t.Fatal(err)
	}
	if fill.FillPrice >= 100 {
		t.Fatalf("sell must give up the spread, got %f", fill.FillPrice)
	}

	// slippage: spread + impact * participation, participation = 100/100000
	wantBps := 5 + 2500*(100.0/100000)
	if math.Abs(buy.SlippageBps-wantBps) > 1e-9 {
		t.Fatalf("want %.2f bps, got %f", wantBps, buy.SlippageBps)
	}
}

func TestPartialFillAtLiquidityCap(t *testing.T) {
	sim, _ := newSim(t, SimConfig{MaxParticipation: 0.02})

	// liquidity = 1000 * 0.02 = 20 shares
	exec, err := sim.Submit(buyProposal(100, 100), 100, obsWithVolume(1000))
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != StatusPartial {
		t.Fatalf("want PARTIAL, got %s", exec.Status)
	}
	if exec.Quantity != 20 {
		t.Fatalf("want capped fill 20, got %f", exec.Quantity)
	}
	if exec.ProposalID != "p-exec" {
		t.Fatalf("execution must reference its proposal, got %q", exec.ProposalID)
	}
}

func TestDeterministicFills(t *testing.T) {
	sim, _ := newSim(t, SimConfig{})
	obs := obsWithVolume(50000)

	first, err := sim.Submit(buyProposal(40, 100), 40, obs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sim.Submit(buyProposal(40, 100), 40, obs)
	if err != nil {
		t.Fatal(err)
	}
	if first.FillPrice != second.FillPrice || first.SlippageBps != second.SlippageBps {
		t.Fatalf("identical orders must fill identically: %+v vs %+v", first, second)
	}
}

func TestFaultLeavesNoFill(t *testing.T) {
	sim, jrnl := newSim(t, SimConfig{})

	_, err := sim.Submit(buyProposal(0, 100), 0, obsWithVolume(1000))
	if !errors.Is(err, ErrExecutionFault) {
		t.Fatalf("want ErrExecutionFault, got %v", err)
	}
	_, err = sim.Submit(buyProposal(10, 0), 10, obsWithVolume(1000))
	if !errors.Is(err, ErrExecutionFault) {
		t.Fatalf("want ErrExecutionFault, got %v", err)
	}

	entries, err := jrnl.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("faults produce no execution records, got %d", len(entries))
	}

	rejected := sim.RecordRejected(buyProposal(10, 0), obsWithVolume(1000))
	if rejected.Status != StatusRejected {
		t.Fatalf("want REJECTED, got %s", rejected.Status)
	}
	entries, _ = jrnl.Load()
	if len(entries) != 1 || entries[0].Type != journal.TypeExecution {
		t.Fatalf("rejection must be journaled, got %+v", entries)
	}
}

func TestExecutionJournaled(t *testing.T) {
	sim, jrnl := newSim(t, SimConfig{})
	if _, err := sim.Submit(buyProposal(10, 100), 10, obsWithVolume(100000)); err != nil {
		t.Fatal(err)
	}

	entries, err := jrnl.LoadByCorrelation("p-exec")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Type != journal.TypeExecution {
		t.Fatalf("fill must be journaled under the proposal id, got %+v", entries)
	}
}
