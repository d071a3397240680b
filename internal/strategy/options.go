package strategy

import (
	"math"

	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/pricing"
)

// VolArb compares the chain's implied vol against realized vol and sells
// (or buys) volatility when the premium is rich (or cheap).
type VolArb struct {
	p Params
}

func (s *VolArb) Name() string { return "vol_arb" }

func (s *VolArb) GenerateSignal(in Input) (Signal, error) {
	closes := closesOf(in.Bars)
	if len(closes) < s.p.Lookback || len(in.Observation.Options) == 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	rv := realizedVol(closes[len(closes)-s.p.Lookback:])
	if rv == 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}

	quote := nearestATM(in.Observation)
	if quote == nil || quote.ImpliedVol <= 0 {
		return flat(s.Name(), in.Symbol, nil), nil
	}
	premium := quote.ImpliedVol - rv
	meta := map[string]float64{"implied_vol": quote.ImpliedVol, "realized_vol": rv, "premium": premium}

	if math.Abs(premium) < s.p.VolPremiumThreshold {
		return flat(s.Name(), in.Symbol, meta), nil
	}

	// rich premium -> sell the option, cheap -> buy it
	strength := -math.Tanh(premium / (2 * s.p.VolPremiumThreshold))
	sig := directional(s.Name(), in.Symbol, strength, meta)
	sig.Option = quote
	if g, err := optionGreeks(*quote, in.Observation, s.p.RiskFreeRate); err == nil {
		sig.Greeks = g
	}
	return sig, nil
}

// IntradayOptions buys short-dated calls on strong intraday momentum with
// confirming volume, restricted to a delta band, a DTE cap, and a spread
// cap. All gates must pass or the signal is flat.
type IntradayOptions struct {
	p Params
}

func (s *IntradayOptions) Name() string { return "intraday_options" }

func (s *IntradayOptions) GenerateSignal(in Input) (Signal, error) {
	obs := in.Observation
	ret := obs.IntradayReturn()
	volRatio := obs.VolumeRatio()
	meta := map[string]float64{"intraday_return": ret, "volume_ratio": volRatio}

	if ret < s.p.MinIntradayReturn {
		return flat(s.Name(), in.Symbol, meta), nil
	}
	if volRatio < s.p.MinVolumeRatio {
		return flat(s.Name(), in.Symbol, meta), nil
	}

	quote, greeks := s.pickContract(obs)
	if quote == nil {
		return flat(s.Name(), in.Symbol, meta), nil
	}
	meta["delta"] = greeks.Delta
	meta["dte"] = float64(quote.DaysToExpiry(obs.Timestamp))
	meta["spread_pct"] = quote.SpreadPct()

	strength := clamp(ret/(2*s.p.MinIntradayReturn), 0, 1)
	sig := directional(s.Name(), in.Symbol, strength, meta)
	sig.Option = quote
	sig.Greeks = greeks
	return sig, nil
}

// pickContract scans the chain for the first call satisfying every gate.
func (s *IntradayOptions) pickContract(obs market.Observation) (*market.OptionQuote, *pricing.Greeks) {
	for i := range obs.Options {
		q := obs.Options[i]
		if q.Type != string(pricing.Call) {
			continue
		}
		if q.DaysToExpiry(obs.Timestamp) > s.p.MaxDTE {
			continue
		}
		if q.SpreadPct() > s.p.MaxSpreadPct {
			continue
		}
		greeks, err := optionGreeks(q, obs, s.p.RiskFreeRate)
		if err != nil {
			continue
		}
		if greeks.Delta < s.p.DeltaMin || greeks.Delta > s.p.DeltaMax {
			continue
		}
		return &q, greeks
	}
	return nil, nil
}

func optionGreeks(q market.OptionQuote, obs market.Observation, rate float64) (*pricing.Greeks, error) {
	tte := q.Expiry.Sub(obs.Timestamp).Hours() / 24 / 365
	res, err := pricing.Price(pricing.OptionType(q.Type), obs.Last, q.Strike, tte, q.ImpliedVol, rate)
	if err != nil {
		return nil, err
	}
	g := res.Greeks
	return &g, nil
}

// nearestATM returns the chain quote whose strike is closest to spot.
func nearestATM(obs market.Observation) *market.OptionQuote {
	var best *market.OptionQuote
	bestDist := math.MaxFloat64
	for i := range obs.Options {
		d := math.Abs(obs.Options[i].Strike - obs.Last)
		if d < bestDist {
			bestDist = d
			best = &obs.Options[i]
		}
	}
	return best
}
