// Package trader turns signals into sized trade proposals.
package trader

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/sizing"
	"github.com/quantdesk/pipeline/internal/strategy"
)

// StrategySpec binds one strategy instance to its proposal parameters.
type StrategySpec struct {
	Strategy      strategy.Strategy
	MinStrength   float64
	TakeProfitPct float64
	StopLossPct   float64
}

// Agent evaluates the strategy catalog per symbol and emits proposals.
// It creates proposals and journals them; it never touches portfolio
// state.
type Agent struct {
	specs   []StrategySpec
	sizer   sizing.Sizer
	journal *journal.Journal
	source  market.Source
}

func NewAgent(specs []StrategySpec, sizer sizing.Sizer, jrnl *journal.Journal, source market.Source) *Agent {
	return &Agent{specs: specs, sizer: sizer, journal: jrnl, source: source}
}

// Propose runs every configured strategy over the supplied input and
// returns the proposals whose signals cleared the per-strategy minimum.
// Sizing failures drop the single proposal and the cycle continues.
func (a *Agent) Propose(in strategy.Input, acct sizing.Account) []*Proposal {
	var proposals []*Proposal
	for _, spec := range a.specs {
		sig, err := spec.Strategy.GenerateSignal(in)
		if err != nil {
			observ.IncCounter("strategy_errors_total", map[string]string{"strategy": spec.Strategy.Name()})
			observ.Log("strategy_error", map[string]any{
				"strategy": spec.Strategy.Name(), "symbol": in.Symbol, "error": err.Error(),
			})
			continue
		}
		if sig.Direction == strategy.Flat || math.Abs(sig.Strength) < spec.MinStrength {
			continue
		}
		observ.IncCounter("opportunities_total", map[string]string{"strategy": sig.Strategy})

		p, err := a.build(spec, sig, in.Observation, acct)
		if err != nil {
			if errors.Is(err, sizing.ErrSizing) {
				observ.IncCounter("sizing_errors_total", map[string]string{"strategy": sig.Strategy})
				observ.Log("proposal_dropped", map[string]any{
					"strategy": sig.Strategy, "symbol": in.Symbol, "error": err.Error(),
				})
				continue
			}
			observ.Log("proposal_error", map[string]any{
				"strategy": sig.Strategy, "symbol": in.Symbol, "error": err.Error(),
			})
			continue
		}
		if p.Quantity == 0 {
			continue
		}

		if err := a.journal.Append(journal.TypeTraderProposal, p.ID, p); err != nil {
			observ.Log("journal_error", map[string]any{"proposal_id": p.ID, "error": err.Error()})
		}
		observ.IncCounter("proposals_total", map[string]string{"strategy": sig.Strategy})
		proposals = append(proposals, p)
	}
	return proposals
}

func (a *Agent) build(spec StrategySpec, sig strategy.Signal, obs market.Observation, acct sizing.Account) (*Proposal, error) {
	price := obs.Last
	if sig.Option != nil {
		price = sig.Option.Mid()
	}

	side := "BUY"
	stop := price * (1 - spec.StopLossPct)
	if sig.Direction == strategy.Short {
		side = "SELL"
		stop = price * (1 + spec.StopLossPct)
	}

	expVol := expectedVol(sig)
	qty, err := a.sizer.CalculateSize(acct, sizing.Request{
		SignalStrength: sig.Strength,
		Price:          price,
		StopLossPrice:  stop,
		ExpectedReturn: spec.TakeProfitPct * math.Abs(sig.Strength),
		Volatility:     expVol,
		Regime:         regimeOf(sig.Strategy),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Proposal{
		ID:              uuid.NewString(),
		Strategy:        sig.Strategy,
		Symbol:          sig.Symbol,
		Side:            side,
		Quantity:        math.Floor(qty),
		RefPrice:        price,
		ExpectedReturn:  spec.TakeProfitPct * math.Abs(sig.Strength),
		ExpectedVol:     expVol,
		TakeProfitPct:   spec.TakeProfitPct,
		StopLossPct:     spec.StopLossPct,
		Option:          sig.Option,
		SignalMeta:      sig.Metadata,
		Status:          StatusCreated,
		StatusUpdatedAt: now,
		Source:          a.source,
		CreatedAt:       now,
	}
	if sig.Greeks != nil {
		p.Greeks = *sig.Greeks
	}
	return p, nil
}

// expectedVol prefers what the signal measured, falling back to the
// contract's implied vol, then to a broad-market default.
func expectedVol(sig strategy.Signal) float64 {
	if v, ok := sig.Metadata["realized_vol"]; ok && v > 0 {
		return v
	}
	if sig.Option != nil && sig.Option.ImpliedVol > 0 {
		return sig.Option.ImpliedVol
	}
	return 0.20
}

// regimeOf tags a strategy family for adaptive sizing delegation.
func regimeOf(name string) string {
	switch name {
	case "momentum", "breakout", "macd", "intraday_options":
		return "trending"
	case "mean_reversion", "rsi", "pairs", "vol_arb":
		return "ranging"
	default:
		return ""
	}
}
