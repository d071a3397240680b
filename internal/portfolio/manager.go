// Package portfolio is the single owner of positions, cash and NAV.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quantdesk/pipeline/internal/observ"
	"github.com/quantdesk/pipeline/internal/pricing"
)

// ErrStateCorruption marks an invariant violation. Fatal for the tick:
// the driver must halt and require manual intervention, never repair.
var ErrStateCorruption = errors.New("portfolio: state corruption")

// Fill is the execution slice the portfolio consumes.
type Fill struct {
	OrderID    string
	ProposalID string
	Symbol     string
	Side       string // BUY | SELL
	Quantity   float64
	Price      float64
	Greeks     pricing.Greeks // per unit, zero for non-options
	Timestamp  time.Time
}

// Position is an open position for one symbol, netted across fills.
type Position struct {
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"` // BUY (long) | SELL (short)
	Quantity      float64        `json:"quantity"`
	AvgPrice      float64        `json:"avg_price"`
	CurrentPrice  float64        `json:"current_price"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	Greeks        pricing.Greeks `json:"greeks"` // per unit, volume-weighted
	Lots          int            `json:"lots"`   // fills accumulated on this side
	LastTradeAt   time.Time      `json:"last_trade_at"`
}

func (p Position) signedQty() float64 {
	if p.Side == "SELL" {
		return -p.Quantity
	}
	return p.Quantity
}

// Snapshot is one immutable performance record, appended per tick.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	NAV              float64   `json:"nav"`
	Cash             float64   `json:"cash"`
	CumulativeReturn float64   `json:"cumulative_return"`
	Drawdown         float64   `json:"drawdown"`
}

// Exposure is the read-only summary the risk agent consumes.
type Exposure struct {
	NAV           float64
	Cash          float64
	GrossExposure float64
	AggDelta      float64
	AggGamma      float64
	AggVega       float64
	OpenLots      map[string]int
	Sides         map[string]string
	LastTradeAt   map[string]time.Time
}

// Manager mutates portfolio state under a single-writer discipline: all
// mutating calls happen on one logical thread of control per tick.
type Manager struct {
	mu         sync.RWMutex
	cash       float64
	initialNAV float64
	peakNAV    float64
	positions  map[string]*Position
	history    []Snapshot
}

func NewManager(initialCash float64) *Manager {
	return &Manager{
		cash:       initialCash,
		initialNAV: initialCash,
		peakNAV:    initialCash,
		positions:  map[string]*Position{},
	}
}

// ApplyExecution folds a fill into positions and cash. Returns the PnL
// realized by the fill (zero for pure entries) or ErrStateCorruption.
func (m *Manager) ApplyExecution(fill Fill) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fill.Quantity < 0 || fill.Price < 0 {
		return 0, fmt.Errorf("%w: fill %s qty=%.4f price=%.4f", ErrStateCorruption, fill.OrderID, fill.Quantity, fill.Price)
	}
	if fill.Quantity == 0 {
		return 0, nil
	}

	fillQty := fill.Quantity
	if fill.Side == "SELL" {
		fillQty = -fillQty
		m.cash += fill.Quantity * fill.Price
	} else {
		m.cash -= fill.Quantity * fill.Price
	}

	pos, exists := m.positions[fill.Symbol]
	if !exists {
		side := "BUY"
		if fillQty < 0 {
			side = "SELL"
		}
		m.positions[fill.Symbol] = &Position{
			Symbol:       fill.Symbol,
			Side:         side,
			Quantity:     math.Abs(fillQty),
			AvgPrice:     fill.Price,
			CurrentPrice: fill.Price,
			Greeks:       fill.Greeks,
			Lots:         1,
			LastTradeAt:  fill.Timestamp,
		}
		return 0, nil
	}

	prevSigned := pos.signedQty()
	newSigned := prevSigned + fillQty
	var realized float64

	switch {
	case sameSign(prevSigned, fillQty):
		// adding: weighted-average entry price and greeks
		total := math.Abs(prevSigned) + math.Abs(fillQty)
		pos.AvgPrice = (pos.AvgPrice*math.Abs(prevSigned) + fill.Price*math.Abs(fillQty)) / total
		pos.Greeks = weightGreeks(pos.Greeks, math.Abs(prevSigned), fill.Greeks, math.Abs(fillQty))
		pos.Quantity = total
		pos.Lots++

	case math.Abs(fillQty) < math.Abs(prevSigned):
		// partial close
		closed := math.Abs(fillQty)
		realized = closed * (fill.Price - pos.AvgPrice) * sign(prevSigned)
		pos.Quantity = math.Abs(newSigned)

	default:
		// full close, possibly flipping side
		realized = math.Abs(prevSigned) * (fill.Price - pos.AvgPrice) * sign(prevSigned)
		if newSigned == 0 {
			delete(m.positions, fill.Symbol)
		} else {
			side := "BUY"
			if newSigned < 0 {
				side = "SELL"
			}
			pos.Side = side
			pos.Quantity = math.Abs(newSigned)
			pos.AvgPrice = fill.Price
			pos.Greeks = fill.Greeks
			pos.Lots = 1
		}
	}

	if p, ok := m.positions[fill.Symbol]; ok {
		if p.Quantity < 0 || math.IsNaN(p.AvgPrice) || p.AvgPrice < 0 {
			return 0, fmt.Errorf("%w: %s qty=%.4f avg=%.4f", ErrStateCorruption, fill.Symbol, p.Quantity, p.AvgPrice)
		}
		p.CurrentPrice = fill.Price
		p.UnrealizedPnL = p.signedQty() * (p.CurrentPrice - p.AvgPrice)
		p.LastTradeAt = fill.Timestamp
	}

	observ.IncCounter("fills_applied_total", map[string]string{"symbol": fill.Symbol, "side": fill.Side})
	return realized, nil
}

// MarkToMarket reprices open positions and appends a performance snapshot.
func (m *Manager) MarkToMarket(prices map[string]float64, ts time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sym, pos := range m.positions {
		if px, ok := prices[sym]; ok && px > 0 {
			pos.CurrentPrice = px
			pos.UnrealizedPnL = pos.signedQty() * (px - pos.AvgPrice)
		}
	}

	nav := m.navUnsafe()
	if nav > m.peakNAV {
		m.peakNAV = nav
	}
	var drawdown float64
	if m.peakNAV > 0 {
		drawdown = (m.peakNAV - nav) / m.peakNAV
	}
	var cumReturn float64
	if m.initialNAV > 0 {
		cumReturn = (nav - m.initialNAV) / m.initialNAV
	}

	snap := Snapshot{
		Timestamp:        ts,
		NAV:              nav,
		Cash:             m.cash,
		CumulativeReturn: cumReturn,
		Drawdown:         drawdown,
	}
	m.history = append(m.history, snap)
	observ.SetGauge("portfolio_nav", nav, nil)
	return snap
}

// NAV is cash plus the mark-to-market value of every position.
func (m *Manager) NAV() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.navUnsafe()
}

func (m *Manager) navUnsafe() float64 {
	nav := m.cash
	for _, pos := range m.positions {
		nav += pos.signedQty() * pos.CurrentPrice
	}
	return nav
}

// GetExposure returns the read-only summary the risk agent gates on.
func (m *Manager) GetExposure() Exposure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp := Exposure{
		NAV:         m.navUnsafe(),
		Cash:        m.cash,
		OpenLots:    map[string]int{},
		Sides:       map[string]string{},
		LastTradeAt: map[string]time.Time{},
	}
	for sym, pos := range m.positions {
		exp.GrossExposure += pos.Quantity * pos.CurrentPrice
		exp.AggDelta += pos.signedQty() * pos.Greeks.Delta
		exp.AggGamma += pos.signedQty() * pos.Greeks.Gamma
		exp.AggVega += pos.signedQty() * pos.Greeks.Vega
		exp.OpenLots[sym] = pos.Lots
		exp.Sides[sym] = pos.Side
		exp.LastTradeAt[sym] = pos.LastTradeAt
	}
	return exp
}

// Positions returns a copy of all open positions.
func (m *Manager) Positions() map[string]Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Position, len(m.positions))
	for sym, pos := range m.positions {
		out[sym] = *pos
	}
	return out
}

// History returns the ordered performance snapshots.
func (m *Manager) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func weightGreeks(a pricing.Greeks, wa float64, b pricing.Greeks, wb float64) pricing.Greeks {
	total := wa + wb
	if total == 0 {
		return a
	}
	return pricing.Greeks{
		Delta: (a.Delta*wa + b.Delta*wb) / total,
		Gamma: (a.Gamma*wa + b.Gamma*wb) / total,
		Vega:  (a.Vega*wa + b.Vega*wb) / total,
		Theta: (a.Theta*wa + b.Theta*wb) / total,
	}
}
