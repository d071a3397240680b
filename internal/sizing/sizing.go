// Package sizing converts signals and account state into order quantities.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrSizing is returned when inputs make a sizing denominator degenerate.
var ErrSizing = errors.New("sizing: degenerate input")

// Account is the slice of portfolio state sizing needs.
type Account struct {
	NAV float64
}

// Request carries one sizing decision's inputs. Optional fields are only
// read by the variants that need them.
type Request struct {
	SignalStrength float64 // [-1, 1]
	Price          float64
	StopLossPrice  float64

	ExpectedReturn float64 // annualized, for kelly
	Volatility     float64 // annualized, for kelly / risk parity
	Regime         string  // market regime tag, for adaptive
}

// Params holds every tunable for the sizing variants.
type Params struct {
	Fraction         float64 `yaml:"fraction"`          // fixed-fraction of NAV
	RiskPerTrade     float64 `yaml:"risk_per_trade"`    // NAV fraction risked per trade
	KellyFraction    float64 `yaml:"kelly_fraction"`    // fractional kelly multiplier
	TargetVolatility float64 `yaml:"target_volatility"` // risk-parity vol budget

	// RegimeMethods maps a regime tag to a method name for adaptive
	// sizing, e.g. trending -> kelly, ranging -> risk_parity.
	RegimeMethods map[string]string `yaml:"regime_methods"`
	DefaultMethod string            `yaml:"default_method"`
}

// Defaults returns p with conventional values for anything left zero.
func (p Params) Defaults() Params {
	if p.Fraction == 0 {
		p.Fraction = 0.05
	}
	if p.RiskPerTrade == 0 {
		p.RiskPerTrade = 0.01
	}
	if p.KellyFraction == 0 {
		p.KellyFraction = 0.5
	}
	if p.TargetVolatility == 0 {
		p.TargetVolatility = 0.10
	}
	if p.DefaultMethod == "" {
		p.DefaultMethod = "fixed_fraction"
	}
	if p.RegimeMethods == nil {
		p.RegimeMethods = map[string]string{
			"trending": "kelly",
			"ranging":  "risk_parity",
		}
	}
	return p
}

// Sizer computes an order quantity. Quantity is always >= 0; direction
// lives on the signal, not here.
type Sizer interface {
	Name() string
	CalculateSize(acct Account, req Request) (float64, error)
}

type factory func(Params) Sizer

var methods = map[string]factory{
	"fixed_fraction": func(p Params) Sizer { return &FixedFraction{p: p} },
	"risk_based":     func(p Params) Sizer { return &RiskBased{p: p} },
	"kelly":          func(p Params) Sizer { return &Kelly{p: p} },
	"risk_parity":    func(p Params) Sizer { return &RiskParity{p: p} },
}

// NewAdaptive resolves its fallback through New, so the adaptive entry
// is registered here instead of in the map literal above.
func init() {
	methods["adaptive"] = func(p Params) Sizer { return NewAdaptive(p) }
}

// New creates a sizing method by name.
func New(name string, p Params) (Sizer, error) {
	f, ok := methods[name]
	if !ok {
		return nil, fmt.Errorf("sizing: unknown method %q", name)
	}
	return f(p.Defaults()), nil
}

// Names lists the registered methods, sorted.
func Names() []string {
	out := make([]string, 0, len(methods))
	for name := range methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FixedFraction sizes a constant fraction of NAV, scaled by signal strength.
type FixedFraction struct {
	p Params
}

func (s *FixedFraction) Name() string { return "fixed_fraction" }

func (s *FixedFraction) CalculateSize(acct Account, req Request) (float64, error) {
	if req.Price <= 0 {
		return 0, fmt.Errorf("%w: price %.4f", ErrSizing, req.Price)
	}
	qty := acct.NAV * s.p.Fraction * math.Abs(req.SignalStrength) / req.Price
	return clip(qty), nil
}

// RiskBased sizes so the stop-loss distance risks a fixed NAV fraction.
type RiskBased struct {
	p Params
}

func (s *RiskBased) Name() string { return "risk_based" }

func (s *RiskBased) CalculateSize(acct Account, req Request) (float64, error) {
	riskPerUnit := math.Abs(req.Price - req.StopLossPrice)
	if riskPerUnit <= 0 {
		return 0, fmt.Errorf("%w: stop %.4f equals price %.4f", ErrSizing, req.StopLossPrice, req.Price)
	}
	qty := acct.NAV * s.p.RiskPerTrade / riskPerUnit
	return clip(qty), nil
}

// Kelly scales NAV/price by fractional kelly edge-over-variance. Clipped
// at full NAV so a vanishing volatility cannot produce unbounded size.
type Kelly struct {
	p Params
}

func (s *Kelly) Name() string { return "kelly" }

func (s *Kelly) CalculateSize(acct Account, req Request) (float64, error) {
	if req.Price <= 0 {
		return 0, fmt.Errorf("%w: price %.4f", ErrSizing, req.Price)
	}
	if req.Volatility <= 0 {
		return 0, fmt.Errorf("%w: volatility %.4f", ErrSizing, req.Volatility)
	}
	edge := s.p.KellyFraction * req.ExpectedReturn / (req.Volatility * req.Volatility)
	if edge < 0 {
		edge = 0
	}
	if edge > 1 {
		edge = 1
	}
	qty := edge * acct.NAV / req.Price * math.Abs(req.SignalStrength)
	return clip(qty), nil
}

// RiskParity sizes so position vol contribution matches the target:
// quantity * price * volatility ~= NAV * target.
type RiskParity struct {
	p Params
}

func (s *RiskParity) Name() string { return "risk_parity" }

func (s *RiskParity) CalculateSize(acct Account, req Request) (float64, error) {
	denom := req.Price * req.Volatility
	if denom <= 0 {
		return 0, fmt.Errorf("%w: price*vol %.6f", ErrSizing, denom)
	}
	qty := acct.NAV * s.p.TargetVolatility / denom
	return clip(qty), nil
}

// Adaptive delegates to another method keyed by the market-regime tag.
type Adaptive struct {
	p        Params
	fallback Sizer
}

func NewAdaptive(p Params) *Adaptive {
	var fallback Sizer = &FixedFraction{p: p}
	if p.DefaultMethod != "adaptive" {
		if s, err := New(p.DefaultMethod, p); err == nil {
			fallback = s
		}
	}
	return &Adaptive{p: p, fallback: fallback}
}

func (s *Adaptive) Name() string { return "adaptive" }

func (s *Adaptive) CalculateSize(acct Account, req Request) (float64, error) {
	name, ok := s.p.RegimeMethods[req.Regime]
	if !ok || name == "adaptive" {
		return s.fallback.CalculateSize(acct, req)
	}
	delegate, err := New(name, s.p)
	if err != nil {
		return s.fallback.CalculateSize(acct, req)
	}
	return delegate.CalculateSize(acct, req)
}

func clip(qty float64) float64 {
	if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return qty
}
