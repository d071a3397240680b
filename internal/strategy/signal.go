// Package strategy holds the interchangeable signal generators.
package strategy

import (
	"fmt"
	"sort"

	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/pricing"
)

// Direction is the trade side a signal points at.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Flat  Direction = "flat"
)

// Signal is the normalized output of one strategy for one symbol.
// Produced fresh every evaluation cycle and never persisted on its own.
type Signal struct {
	Strategy  string             `json:"strategy"`
	Symbol    string             `json:"symbol"`
	Direction Direction          `json:"direction"`
	Strength  float64            `json:"strength"` // [-1, 1], sign matches direction
	Metadata  map[string]float64 `json:"metadata,omitempty"`

	// Option is set when the strategy trades an option contract rather
	// than the underlying; Greeks are valued at signal time.
	Option *market.OptionQuote `json:"option,omitempty"`
	Greeks *pricing.Greeks     `json:"greeks,omitempty"`
}

// Input is everything a strategy may read for one evaluation. Strategies
// are stateless across calls; all lookback data arrives here, which keeps
// concurrent evaluation across symbols safe.
type Input struct {
	Symbol      string
	Bars        []market.Observation // oldest first, latest == Observation
	PairBars    []market.Observation // second leg for pair strategies
	Observation market.Observation
}

// Strategy generates one signal from supplied history.
type Strategy interface {
	Name() string
	GenerateSignal(in Input) (Signal, error)
}

// Params carries every tunable the catalog understands. Each strategy
// reads its own subset; Defaults patches zero values before use.
type Params struct {
	ShortWindow int     `yaml:"short_window"`
	LongWindow  int     `yaml:"long_window"`
	Lookback    int     `yaml:"lookback"`
	ZThreshold  float64 `yaml:"z_threshold"`
	BreakoutPct float64 `yaml:"breakout_pct"`

	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`

	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`

	MinIntradayReturn float64 `yaml:"min_intraday_return"`
	MinVolumeRatio    float64 `yaml:"min_volume_ratio"`
	DeltaMin          float64 `yaml:"delta_min"`
	DeltaMax          float64 `yaml:"delta_max"`
	MaxDTE            int     `yaml:"max_dte"`
	MaxSpreadPct      float64 `yaml:"max_spread_pct"`

	VolPremiumThreshold float64 `yaml:"vol_premium_threshold"`
	PairSymbol          string  `yaml:"pair_symbol"`

	RiskFreeRate float64 `yaml:"risk_free_rate"`
	MinStrength  float64 `yaml:"min_strength"`
}

// Defaults returns p with conventional values for anything left zero.
func (p Params) Defaults() Params {
	if p.ShortWindow == 0 {
		p.ShortWindow = 10
	}
	if p.LongWindow == 0 {
		p.LongWindow = 30
	}
	if p.Lookback == 0 {
		p.Lookback = 20
	}
	if p.ZThreshold == 0 {
		p.ZThreshold = 2.0
	}
	if p.BreakoutPct == 0 {
		p.BreakoutPct = 0.02
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 30
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = 70
	}
	if p.MACDFast == 0 {
		p.MACDFast = 12
	}
	if p.MACDSlow == 0 {
		p.MACDSlow = 26
	}
	if p.MACDSignal == 0 {
		p.MACDSignal = 9
	}
	if p.MinIntradayReturn == 0 {
		p.MinIntradayReturn = 0.006
	}
	if p.MinVolumeRatio == 0 {
		p.MinVolumeRatio = 1.5
	}
	if p.DeltaMin == 0 {
		p.DeltaMin = 0.30
	}
	if p.DeltaMax == 0 {
		p.DeltaMax = 0.70
	}
	if p.MaxDTE == 0 {
		p.MaxDTE = 45
	}
	if p.MaxSpreadPct == 0 {
		p.MaxSpreadPct = 0.10
	}
	if p.VolPremiumThreshold == 0 {
		p.VolPremiumThreshold = 0.05
	}
	if p.MinStrength == 0 {
		p.MinStrength = 0.2
	}
	return p
}

type factory func(Params) Strategy

var catalog = map[string]factory{
	"momentum":          func(p Params) Strategy { return &Momentum{p: p} },
	"mean_reversion":    func(p Params) Strategy { return &MeanReversion{p: p} },
	"breakout":          func(p Params) Strategy { return &Breakout{p: p} },
	"rsi":               func(p Params) Strategy { return &RSI{p: p} },
	"macd":              func(p Params) Strategy { return &MACD{p: p} },
	"vol_arb":           func(p Params) Strategy { return &VolArb{p: p} },
	"pairs":             func(p Params) Strategy { return &Pairs{p: p} },
	"intraday_options":  func(p Params) Strategy { return &IntradayOptions{p: p} },
}

// New creates a strategy by name, preserving create-by-name ergonomics.
func New(name string, p Params) (Strategy, error) {
	f, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
	return f(p.Defaults()), nil
}

// Names lists the registered strategies, sorted.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func flat(name, symbol string, meta map[string]float64) Signal {
	return Signal{Strategy: name, Symbol: symbol, Direction: Flat, Metadata: meta}
}

func directional(name, symbol string, strength float64, meta map[string]float64) Signal {
	strength = clamp(strength, -1, 1)
	dir := Flat
	if strength > 0 {
		dir = Long
	} else if strength < 0 {
		dir = Short
	}
	return Signal{Strategy: name, Symbol: symbol, Direction: dir, Strength: strength, Metadata: meta}
}

func closesOf(bars []market.Observation) []float64 {
	return market.Closes(bars)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
