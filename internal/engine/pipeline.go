// Package engine drives observations through the full decision pipeline.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quantdesk/pipeline/internal/execution"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/portfolio"
	"github.com/quantdesk/pipeline/internal/risk"
	"github.com/quantdesk/pipeline/internal/sizing"
	"github.com/quantdesk/pipeline/internal/strategy"
	"github.com/quantdesk/pipeline/internal/trader"
)

// TickResult is the atomic outcome of one pipeline pass.
type TickResult struct {
	Timestamp   time.Time              `json:"timestamp"`
	Proposals   []*trader.Proposal     `json:"proposals"`
	Evaluations []risk.Evaluation      `json:"evaluations"`
	Executions  []execution.Execution  `json:"executions"`
	Snapshot    portfolio.Snapshot     `json:"snapshot"`
	RealizedPnL map[string]float64     `json:"realized_pnl,omitempty"` // order id -> realized
}

// Config shapes one pipeline instance.
type Config struct {
	Symbols     []string
	PairOf      map[string]string // symbol -> second leg for pair strategies
	HistoryBars int
	Source      market.Source
}

// Pipeline wires trader -> risk -> execution -> portfolio. SubmitTick is
// serialized: the portfolio is the only shared-mutable resource and all
// mutation flows through one logical thread of control per tick. Signal
// generation fans out across symbols; that parallelism is a performance
// optimization, the serialized stages own correctness.
type Pipeline struct {
	mu        sync.Mutex
	cfg       Config
	history   *market.History
	trader    *trader.Agent
	risk      *risk.Agent
	venue     execution.Venue
	portfolio *portfolio.Manager
}

func NewPipeline(cfg Config, tr *trader.Agent, ra *risk.Agent, venue execution.Venue, pm *portfolio.Manager) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		history:   market.NewHistory(cfg.HistoryBars),
		trader:    tr,
		risk:      ra,
		venue:     venue,
		portfolio: pm,
	}
}

// SubmitTick pushes one batch of observations through the pipeline and
// returns everything produced. Only ErrStateCorruption propagates: local
// component failures drop their proposal and the tick continues.
func (pl *Pipeline) SubmitTick(observations []market.Observation) (TickResult, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	start := time.Now()
	result := TickResult{RealizedPnL: map[string]float64{}}
	if len(observations) == 0 {
		return result, nil
	}
	result.Timestamp = observations[0].Timestamp

	bySymbol := map[string]market.Observation{}
	for _, obs := range observations {
		pl.history.Append(obs)
		bySymbol[obs.Symbol] = obs
	}

	// fan signal generation out across symbols; proposal order stays
	// deterministic because results are gathered by input index
	acct := sizing.Account{NAV: pl.portfolio.NAV()}
	proposalsBySymbol := make([][]*trader.Proposal, len(observations))
	var wg sync.WaitGroup
	for i, obs := range observations {
		wg.Add(1)
		go func(i int, obs market.Observation) {
			defer wg.Done()
			proposalsBySymbol[i] = pl.trader.Propose(pl.input(obs), acct)
		}(i, obs)
	}
	wg.Wait()

	for _, proposals := range proposalsBySymbol {
		result.Proposals = append(result.Proposals, proposals...)
	}

	// serialized decision path: risk -> venue -> portfolio
	for _, p := range result.Proposals {
		if err := p.Transition(trader.StatusSent); err != nil {
			observ.Log("status_transition_error", map[string]any{"proposal_id": p.ID, "error": err.Error()})
			continue
		}

		ev := pl.risk.Evaluate(p, risk.Data{
			Exposure:    pl.portfolio.GetExposure(),
			Observation: bySymbol[p.Symbol],
			Now:         result.Timestamp,
		})
		result.Evaluations = append(result.Evaluations, ev)
		if ev.Decision == risk.Reject {
			continue
		}

		qty := p.Quantity
		if ev.Decision == risk.Modify && ev.ModifiedQuantity != nil {
			qty = *ev.ModifiedQuantity
		}

		exec, err := pl.venue.Submit(p, qty, bySymbol[p.Symbol])
		if err != nil {
			// fill failure: proposal stays approved, portfolio untouched
			observ.Log("execution_fault", map[string]any{"proposal_id": p.ID, "error": err.Error()})
			if rec, ok := pl.venue.(interface {
				RecordRejected(*trader.Proposal, market.Observation) execution.Execution
			}); ok {
				result.Executions = append(result.Executions, rec.RecordRejected(p, bySymbol[p.Symbol]))
			}
			continue
		}
		result.Executions = append(result.Executions, exec)
		if exec.Status == execution.StatusRejected {
			continue
		}

		realized, err := pl.portfolio.ApplyExecution(portfolio.Fill{
			OrderID:    exec.OrderID,
			ProposalID: exec.ProposalID,
			Symbol:     exec.Symbol,
			Side:       exec.Side,
			Quantity:   exec.Quantity,
			Price:      exec.FillPrice,
			Greeks:     p.Greeks,
			Timestamp:  exec.Timestamp,
		})
		if err != nil {
			if errors.Is(err, portfolio.ErrStateCorruption) {
				observ.IncCounter("tick_errors_total", nil)
				return result, fmt.Errorf("tick halted: %w", err)
			}
			observ.Log("apply_execution_error", map[string]any{"order_id": exec.OrderID, "error": err.Error()})
			continue
		}
		if realized != 0 {
			result.RealizedPnL[exec.OrderID] = realized
		}
	}

	prices := map[string]float64{}
	for sym, obs := range bySymbol {
		prices[sym] = obs.Last
	}
	result.Snapshot = pl.portfolio.MarkToMarket(prices, result.Timestamp)

	observ.IncCounter("ticks_total", nil)
	observ.RecordDuration("tick_latency", time.Since(start), nil)
	return result, nil
}

// GetPortfolioState is the read-only snapshot for the API layer.
func (pl *Pipeline) GetPortfolioState() (map[string]portfolio.Position, float64, portfolio.Exposure) {
	exp := pl.portfolio.GetExposure()
	return pl.portfolio.Positions(), exp.NAV, exp
}

// GetPerformanceHistory returns the ordered performance snapshots.
func (pl *Pipeline) GetPerformanceHistory() []portfolio.Snapshot {
	return pl.portfolio.History()
}

func (pl *Pipeline) input(obs market.Observation) strategy.Input {
	in := strategy.Input{
		Symbol:      obs.Symbol,
		Bars:        pl.history.Window(obs.Symbol, 0),
		Observation: obs,
	}
	if pair, ok := pl.cfg.PairOf[obs.Symbol]; ok {
		in.PairBars = pl.history.Window(pair, 0)
	}
	return in
}
