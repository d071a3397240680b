package trader

import (
	"fmt"
	"time"

	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/pricing"
)

// Status is the proposal lifecycle state. The wire values are kept from
// the upstream system.
type Status string

const (
	StatusCreated   Status = "gerada"
	StatusSent      Status = "enviada"
	StatusApproved  Status = "aprovada"
	StatusCancelled Status = "cancelada"
)

// statusRank orders the lifecycle; transitions may only move forward.
var statusRank = map[Status]int{
	StatusCreated:   0,
	StatusSent:      1,
	StatusApproved:  2,
	StatusCancelled: 2,
}

// Proposal is a candidate trade pending risk evaluation. Immutable except
// for Status/StatusUpdatedAt, which only the risk and execution stages
// advance.
type Proposal struct {
	ID       string  `json:"id"`
	Strategy string  `json:"strategy"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // BUY | SELL
	Quantity float64 `json:"quantity"`
	RefPrice float64 `json:"ref_price"`

	// Risk metadata captured at proposal time.
	Greeks         pricing.Greeks `json:"greeks"`
	ExpectedReturn float64        `json:"expected_return"`
	ExpectedVol    float64        `json:"expected_vol"`
	TakeProfitPct  float64        `json:"take_profit_pct"`
	StopLossPct    float64        `json:"stop_loss_pct"`

	Option     *market.OptionQuote `json:"option,omitempty"`
	SignalMeta map[string]float64  `json:"signal_meta,omitempty"`

	Status          Status        `json:"status"`
	StatusUpdatedAt time.Time     `json:"status_updated_at"`
	Source          market.Source `json:"source"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Transition advances the status. Backward moves are rejected so the
// lifecycle stays monotonic: gerada -> enviada -> aprovada|cancelada.
func (p *Proposal) Transition(to Status) error {
	from := p.Status
	toRank, ok := statusRank[to]
	if !ok {
		return fmt.Errorf("proposal %s: unknown status %q", p.ID, to)
	}
	if toRank <= statusRank[from] {
		return fmt.Errorf("proposal %s: illegal transition %s -> %s", p.ID, from, to)
	}
	p.Status = to
	p.StatusUpdatedAt = time.Now().UTC()
	return nil
}

// IsOption reports whether the proposal trades an option contract.
func (p *Proposal) IsOption() bool { return p.Option != nil }
