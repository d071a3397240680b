// Package execution fills approved proposals through a venue.
package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/trader"
)

// ErrExecutionFault marks a fill failure. The proposal stays approved;
// the portfolio is untouched.
var ErrExecutionFault = errors.New("execution: fault")

// Fill status values.
const (
	StatusFilled   = "FILLED"
	StatusPartial  = "PARTIAL"
	StatusRejected = "REJECTED"
)

// Execution records one fill attempt. ProposalID is an explicit foreign
// key set at creation time.
type Execution struct {
	OrderID     string    `json:"order_id"`
	ProposalID  string    `json:"proposal_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"` // filled quantity
	FillPrice   float64   `json:"fill_price"`
	Status      string    `json:"status"`
	SlippageBps float64   `json:"slippage_bps"`
	Timestamp   time.Time `json:"timestamp"`
}

// Venue fills an order request. The simulator and any live adapter share
// this contract so the drivers stay adapter-agnostic.
type Venue interface {
	Submit(p *trader.Proposal, quantity float64, obs market.Observation) (Execution, error)
}

// SimConfig models the venue's cost structure.
type SimConfig struct {
	SpreadBps        float64 `yaml:"spread_bps"`        // half-spread paid on crossing
	ImpactCoeffBps   float64 `yaml:"impact_coeff_bps"`  // slippage per unit of participation
	MaxParticipation float64 `yaml:"max_participation"` // fill cap as fraction of avg volume
}

// Defaults returns c with conventional values for anything left zero.
func (c SimConfig) Defaults() SimConfig {
	if c.SpreadBps == 0 {
		c.SpreadBps = 5
	}
	if c.ImpactCoeffBps == 0 {
		c.ImpactCoeffBps = 2500
	}
	if c.MaxParticipation == 0 {
		c.MaxParticipation = 0.02
	}
	return c
}

// Simulator fills against a deterministic spread/slippage model so
// backtests reproduce exactly given identical data and configuration.
type Simulator struct {
	cfg     SimConfig
	journal *journal.Journal
}

func NewSimulator(cfg SimConfig, jrnl *journal.Journal) *Simulator {
	return &Simulator{cfg: cfg.Defaults(), journal: jrnl}
}

// Submit fills the requested quantity at the reference price adjusted by
// the modeled spread plus size-driven slippage. When simulated liquidity
// is insufficient the fill is PARTIAL, which is a soft outcome, not an
// error.
func (s *Simulator) Submit(p *trader.Proposal, quantity float64, obs market.Observation) (Execution, error) {
	if quantity <= 0 || p.RefPrice <= 0 {
		return Execution{}, fmt.Errorf("%w: proposal %s qty=%.4f price=%.4f", ErrExecutionFault, p.ID, quantity, p.RefPrice)
	}

	status := StatusFilled
	filled := quantity
	if obs.AvgVolume > 0 {
		liquidity := obs.AvgVolume * s.cfg.MaxParticipation
		if quantity > liquidity && liquidity >= 1 {
			filled = liquidity
			status = StatusPartial
		}
	}

	participation := 0.0
	if obs.AvgVolume > 0 {
		participation = filled / obs.AvgVolume
	}
	slippageBps := s.cfg.SpreadBps + s.cfg.ImpactCoeffBps*participation

	price := p.RefPrice
	adj := 1 + slippageBps/10000
	if p.Side == "SELL" {
		price /= adj
	} else {
		price *= adj
	}

	exec := Execution{
		OrderID:     uuid.NewString(),
		ProposalID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Quantity:    filled,
		FillPrice:   price,
		Status:      status,
		SlippageBps: slippageBps,
		Timestamp:   obs.Timestamp,
	}
	s.record(exec)
	return exec, nil
}

// RecordRejected journals a failed fill attempt so the lifecycle stays
// auditable even when the venue faulted.
func (s *Simulator) RecordRejected(p *trader.Proposal, obs market.Observation) Execution {
	exec := Execution{
		OrderID:    uuid.NewString(),
		ProposalID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Status:     StatusRejected,
		Timestamp:  obs.Timestamp,
	}
	s.record(exec)
	return exec
}

func (s *Simulator) record(exec Execution) {
	if err := s.journal.Append(journal.TypeExecution, exec.ProposalID, exec); err != nil {
		observ.Log("journal_error", map[string]any{"order_id": exec.OrderID, "error": err.Error()})
	}
	observ.IncCounter("executions_total", map[string]string{"status": exec.Status, "symbol": exec.Symbol})
}
