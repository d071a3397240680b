// Package risk gates trade proposals against portfolio limits and the
// process-wide kill switch.
package risk

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/portfolio"
	"github.com/quantdesk/pipeline/internal/pricing"
	"github.com/quantdesk/pipeline/internal/trader"
)

// Decision is the outcome of one evaluation.
type Decision string

const (
	Approve Decision = "APPROVE"
	Reject  Decision = "REJECT"
	Modify  Decision = "MODIFY"
)

// Evaluation is the append-only record of one proposal's risk decision.
type Evaluation struct {
	ID               string    `json:"id"`
	ProposalID       string    `json:"proposal_id"`
	Decision         Decision  `json:"decision"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
	ModifiedQuantity *float64  `json:"modified_quantity,omitempty"`
	ModifiedPrice    *float64  `json:"modified_price,omitempty"`
}

// Limits configures the exposure gates.
type Limits struct {
	MaxLotsPerSymbol int     `yaml:"max_lots_per_symbol"`
	MaxAggDelta      float64 `yaml:"max_agg_delta"`
	MaxAggGamma      float64 `yaml:"max_agg_gamma"`
	MaxAggVega       float64 `yaml:"max_agg_vega"`
	MaxNAVAtRiskPct  float64 `yaml:"max_nav_at_risk_pct"`
	MinGainLossRatio float64 `yaml:"min_gain_loss_ratio"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`

	// Option gates re-verified at evaluation time.
	DeltaMin     float64 `yaml:"delta_min"`
	DeltaMax     float64 `yaml:"delta_max"`
	MaxDTE       int     `yaml:"max_dte"`
	MaxSpreadPct float64 `yaml:"max_spread_pct"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// Defaults returns l with conventional values for anything left zero.
func (l Limits) Defaults() Limits {
	if l.MaxLotsPerSymbol == 0 {
		l.MaxLotsPerSymbol = 3
	}
	if l.MaxAggDelta == 0 {
		l.MaxAggDelta = 500
	}
	if l.MaxAggGamma == 0 {
		l.MaxAggGamma = 50
	}
	if l.MaxAggVega == 0 {
		l.MaxAggVega = 1000
	}
	if l.MaxNAVAtRiskPct == 0 {
		l.MaxNAVAtRiskPct = 0.5
	}
	if l.MinGainLossRatio == 0 {
		l.MinGainLossRatio = 1.5
	}
	if l.DeltaMin == 0 {
		l.DeltaMin = 0.30
	}
	if l.DeltaMax == 0 {
		l.DeltaMax = 0.70
	}
	if l.MaxDTE == 0 {
		l.MaxDTE = 45
	}
	if l.MaxSpreadPct == 0 {
		l.MaxSpreadPct = 0.10
	}
	return l
}

// Data is the market/portfolio snapshot one evaluation reads.
type Data struct {
	Exposure    portfolio.Exposure
	Observation market.Observation
	Now         time.Time
}

// Agent evaluates proposals. It owns proposal status transitions together
// with the execution stage.
type Agent struct {
	limits  Limits
	ks      *KillSwitch
	journal *journal.Journal
}

func NewAgent(limits Limits, ks *KillSwitch, jrnl *journal.Journal) *Agent {
	return &Agent{limits: limits.Defaults(), ks: ks, journal: jrnl}
}

// Evaluate runs the gate chain in order, short-circuiting on the first
// failure. Any panic inside evaluation is converted to REJECT
// ("evaluation_error"): fail-safe, never fail-open.
func (a *Agent) Evaluate(p *trader.Proposal, data Data) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			observ.IncCounter("risk_evaluation_panics_total", nil)
			observ.Log("evaluation_error", map[string]any{"proposal_id": p.ID, "panic": r})
			ev = a.finish(p, Evaluation{
				ID:         uuid.NewString(),
				ProposalID: p.ID,
				Decision:   Reject,
				Reason:     "evaluation_error",
			})
		}
	}()

	if data.Now.IsZero() {
		data.Now = time.Now().UTC()
	}
	ev = Evaluation{ID: uuid.NewString(), ProposalID: p.ID, Timestamp: data.Now}

	if reason := a.gate(p, data); reason != "" {
		ev.Decision = Reject
		ev.Reason = reason
		return a.finish(p, ev)
	}

	// fit within the remaining NAV-at-risk budget, modifying if needed
	budget := a.limits.MaxNAVAtRiskPct*data.Exposure.NAV - data.Exposure.GrossExposure
	notional := p.Quantity * p.RefPrice
	if notional > budget {
		fitted := math.Floor(budget / p.RefPrice)
		if fitted <= 0 {
			ev.Decision = Reject
			ev.Reason = "nav_at_risk_exceeded"
			return a.finish(p, ev)
		}
		ev.Decision = Modify
		ev.Reason = "resized_to_risk_budget"
		ev.ModifiedQuantity = &fitted
	} else {
		ev.Decision = Approve
		ev.Reason = "all_gates_passed"
	}

	// the kill switch may have tripped mid-evaluation; no APPROVE after a
	// trip, including for the tick in flight
	if a.ks.Active() {
		ev.Decision = Reject
		ev.Reason = "kill_switch_active"
		ev.ModifiedQuantity = nil
	}
	return a.finish(p, ev)
}

// gate returns the first failing gate's reason code, or "".
func (a *Agent) gate(p *trader.Proposal, data Data) string {
	if a.ks.Active() {
		return "kill_switch_active"
	}

	exp := data.Exposure
	if lots, ok := exp.OpenLots[p.Symbol]; ok {
		if exp.Sides[p.Symbol] == p.Side && lots >= a.limits.MaxLotsPerSymbol {
			return "position_limit_exceeded"
		}
	}
	if a.limits.CooldownMinutes > 0 {
		if last, ok := exp.LastTradeAt[p.Symbol]; ok {
			if data.Now.Sub(last) < time.Duration(a.limits.CooldownMinutes)*time.Minute {
				return "cooldown_active"
			}
		}
	}

	qtySigned := p.Quantity
	if p.Side == "SELL" {
		qtySigned = -qtySigned
	}
	if math.Abs(exp.AggDelta+qtySigned*p.Greeks.Delta) > a.limits.MaxAggDelta {
		return "delta_budget_exceeded"
	}
	if math.Abs(exp.AggGamma+qtySigned*p.Greeks.Gamma) > a.limits.MaxAggGamma {
		return "gamma_budget_exceeded"
	}
	if math.Abs(exp.AggVega+qtySigned*p.Greeks.Vega) > a.limits.MaxAggVega {
		return "vega_budget_exceeded"
	}
	if exp.GrossExposure >= a.limits.MaxNAVAtRiskPct*exp.NAV {
		return "nav_at_risk_exceeded"
	}

	if p.StopLossPct <= 0 {
		return "invalid_stop_loss"
	}
	// meeting the threshold exactly passes; tolerance absorbs float division
	if p.TakeProfitPct/p.StopLossPct < a.limits.MinGainLossRatio-1e-9 {
		return "gain_loss_ratio_below_min"
	}

	// option gates re-verified: the market may have moved since proposal
	if p.IsOption() {
		if reason := a.optionGate(p, data); reason != "" {
			return reason
		}
	}
	return ""
}

func (a *Agent) optionGate(p *trader.Proposal, data Data) string {
	q := p.Option
	if q.DaysToExpiry(data.Now) > a.limits.MaxDTE {
		return "dte_cap_exceeded"
	}
	if q.SpreadPct() > a.limits.MaxSpreadPct {
		return "spread_cap_exceeded"
	}

	spot := data.Observation.Last
	if spot <= 0 {
		return "stale_underlying_quote"
	}
	tte := q.Expiry.Sub(data.Now).Hours() / 24 / 365
	delta, err := pricing.Delta(pricing.OptionType(q.Type), spot, q.Strike, tte, q.ImpliedVol, a.limits.RiskFreeRate)
	if err != nil {
		return "delta_unpriceable"
	}
	band := math.Abs(delta)
	if band < a.limits.DeltaMin || band > a.limits.DeltaMax {
		return "delta_band_violation"
	}
	return ""
}

// finish stamps the evaluation, advances the proposal status, and
// journals the decision. One evaluation per proposal, never edited.
func (a *Agent) finish(p *trader.Proposal, ev Evaluation) Evaluation {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	target := trader.StatusApproved
	if ev.Decision == Reject {
		target = trader.StatusCancelled
	}
	if err := p.Transition(target); err != nil {
		observ.Log("status_transition_error", map[string]any{"proposal_id": p.ID, "error": err.Error()})
	}

	if err := a.journal.Append(journal.TypeRiskEvaluation, p.ID, ev); err != nil {
		observ.Log("journal_error", map[string]any{"proposal_id": p.ID, "error": err.Error()})
	}
	observ.IncCounter("risk_evaluations_total", map[string]string{"decision": string(ev.Decision)})
	if ev.Decision == Reject {
		observ.IncCounter("risk_rejects_total", map[string]string{"reason": ev.Reason})
	}
	return ev
}
