package strategy

import "math"

// MeanReversion fades moves beyond a z-score threshold vs the lookback mean.
type MeanReversion struct {
	p Params
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	if len(closes) < s.p.Lookback {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	window := closes[len(closes)-s.p.Lookback:]
	mean, std := meanStd(window)
	if std == 0 {
		return flat(s.Name(), in.Symbol, map[string]float64{"mean": mean}), nil
	}
	last := closes[len(closes)-1]
	z := (last - mean) / std
	meta := map[string]float64{"zscore": z, "mean": mean, "std": std}

	if math.Abs(z) < s.p.ZThreshold {
		return flat(s.Name(), in.Symbol, meta), nil
	}
	// stretched above the mean -> fade short, below -> fade long
	strength := -math.Tanh(z / (2 * s.p.ZThreshold))
	return directional(s.Name(), in.Symbol, strength, meta), nil
}

// RSI trades the 14-period relative strength index at its bands.
type RSI struct {
	p Params
}

func (s *RSI) Name() string { return "rsi" }

func (s *RSI) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	series := rsiSeries(closes, s.p.RSIPeriod)
	if len(series) == 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	rsi := series[len(series)-1]
	if math.IsNaN(rsi) {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	meta := map[string]float64{"rsi": rsi}

	switch {
	case rsi <= s.p.RSIOversold:
		strength := (s.p.RSIOversold - rsi) / s.p.RSIOversold
		return directional(s.Name(), in.Symbol, strength, meta), nil
	case rsi >= s.p.RSIOverbought:
		strength := (rsi - s.p.RSIOverbought) / (100 - s.p.RSIOverbought)
		return directional(s.Name(), in.Symbol, -strength, meta), nil
	default:
		return flat(s.Name(), in.Symbol, meta), nil
	}
}

// MACD trades the 12/26/9 EMA crossover.
type MACD struct {
	p Params
}

func (s *MACD) Name() string { return "macd" }

func (s *MACD) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	if len(closes) < s.p.MACDSlow+s.p.MACDSignal {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	macdLine, signalLine := macdSeries(closes, s.p.MACDFast, s.p.MACDSlow, s.p.MACDSignal)
	n := len(macdLine)
	hist := macdLine[n-1] - signalLine[n-1]
	prevHist := macdLine[n-2] - signalLine[n-2]
	meta := map[string]float64{"macd": macdLine[n-1], "signal": signalLine[n-1], "histogram": hist}

	// only act on a fresh cross
	crossedUp := prevHist <= 0 && hist > 0
	crossedDown := prevHist >= 0 && hist < 0
	if !crossedUp && !crossedDown {
		return flat(s.Name(), in.Symbol, meta), nil
	}

	last := closes[n-1]
	if last == 0 {
		return flat(s.Name(), in.Symbol, meta), nil
	}
	strength := math.Tanh(hist / last * 200)
	return directional(s.Name(), in.Symbol, strength, meta), nil
}
