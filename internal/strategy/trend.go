package strategy

import "math"

// Momentum trades short/long moving-average crossovers.
type Momentum struct {
	p Params
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	if len(closes) < s.p.LongWindow {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	short := sma(closes, s.p.ShortWindow)
	long := sma(closes, s.p.LongWindow)
	if math.IsNaN(short) || math.IsNaN(long) || long == 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}

	// spread of the averages, squashed so a 5% gap saturates
	spread := (short - long) / long
	strength := math.Tanh(spread * 20)
	meta := map[string]float64{"sma_short": short, "sma_long": long, "spread": spread}
	return directional(s.Name(), in.Symbol, strength, meta), nil
}

// Breakout trades a move beyond the prior lookback range.
type Breakout struct {
	p Params
}

func (s *Breakout) Name() string { return "breakout" }

func (s *Breakout) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	if len(closes) < s.p.Lookback+1 {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	last := closes[len(closes)-1]
	window := closes[len(closes)-1-s.p.Lookback : len(closes)-1]

	high, low := window[0], window[0]
	for _, v := range window {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}

	meta := map[string]float64{"range_high": high, "range_low": low, "last": last}
	switch {
	case high > 0 && last > high*(1+s.p.BreakoutPct):
		excess := (last - high) / high
		return directional(s.Name(), in.Symbol, math.Tanh(excess/s.p.BreakoutPct), meta), nil
	case low > 0 && last < low*(1-s.p.BreakoutPct):
		excess := (low - last) / low
		return directional(s.Name(), in.Symbol, -math.Tanh(excess/s.p.BreakoutPct), meta), nil
	default:
		return flat(s.Name(), in.Symbol, meta), nil
	}
}
