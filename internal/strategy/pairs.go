package strategy

import "math"

// Pairs trades the spread of log prices between the symbol and its pair
// leg, entering when the spread's z-score stretches past the threshold.
// A cointegration fit is approximated by demeaning the spread over the
// lookback, which is enough for spread-reversion entries.
type Pairs struct {
	p Params
}

func (s *Pairs) Name() string { return "pairs" }

func (s *Pairs) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	pair := closesOf(in.PairBars)
	n := len(closes)
	if len(pair) < n {
		n = len(pair)
	}
	if n < s.p.Lookback {
		return flat(s.Name(), in.Symbol, nil), nil
	}

	spread := make([]float64, 0, s.p.Lookback)
	for i := n - s.p.Lookback; i < n; i++ {
		a := closes[len(closes)-n+i]
		b := pair[len(pair)-n+i]
		if a <= 0 || b <= 0 {
			return flat(s.Name(), in.Symbol, nil), nil
		}
		spread = append(spread, math.Log(a)-math.Log(b))
	}

	mean, std := meanStd(spread)
	if std == 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	z := (spread[len(spread)-1] - mean) / std
	meta := map[string]float64{"spread_zscore": z, "spread_mean": mean, "spread_std": std}

	if math.Abs(z) < s.p.ZThreshold {
		return flat(s.Name(), in.Symbol, meta), nil
	}
	// symbol rich vs pair -> short the symbol leg, cheap -> long it
	strength := -math.Tanh(z / (2 * s.p.ZThreshold))
	return directional(s.Name(), in.Symbol, strength, meta), nil
}
