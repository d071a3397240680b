// Package pricing implements closed-form lognormal option valuation.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for parameters outside the model's domain.
var ErrInvalidInput = errors.New("pricing: invalid input")

// OptionType selects the payoff.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Greeks are the option's sensitivities. Vega is per 1 vol point (1%),
// theta is per calendar day.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Result bundles the theoretical price with its Greeks.
type Result struct {
	Price  float64 `json:"price"`
	Greeks Greeks  `json:"greeks"`
}

// Price values a European option and its Greeks. Pure function, safe for
// concurrent calls. tte is time to expiry in years.
func Price(optType OptionType, spot, strike, tte, vol, rate float64) (Result, error) {
	if spot <= 0 || strike <= 0 {
		return Result{}, fmt.Errorf("%w: spot=%.4f strike=%.4f", ErrInvalidInput, spot, strike)
	}
	if tte <= 0 {
		return Result{}, fmt.Errorf("%w: time to expiry %.6f must be > 0", ErrInvalidInput, tte)
	}
	if vol <= 0 {
		return Result{}, fmt.Errorf("%w: volatility %.6f must be > 0", ErrInvalidInput, vol)
	}
	if optType != Call && optType != Put {
		return Result{}, fmt.Errorf("%w: option type %q", ErrInvalidInput, optType)
	}

	sqrtT := math.Sqrt(tte)
	d1 := (math.Log(spot/strike) + (rate+0.5*vol*vol)*tte) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	discount := math.Exp(-rate * tte)

	var price, delta, theta float64
	switch optType {
	case Call:
		price = spot*normCDF(d1) - strike*discount*normCDF(d2)
		delta = normCDF(d1)
		theta = -spot*normPDF(d1)*vol/(2*sqrtT) - rate*strike*discount*normCDF(d2)
	case Put:
		price = strike*discount*normCDF(-d2) - spot*normCDF(-d1)
		delta = normCDF(d1) - 1
		theta = -spot*normPDF(d1)*vol/(2*sqrtT) + rate*strike*discount*normCDF(-d2)
	}

	return Result{
		Price: price,
		Greeks: Greeks{
			Delta: delta,
			Gamma: normPDF(d1) / (spot * vol * sqrtT),
			Vega:  spot * normPDF(d1) * sqrtT / 100,
			Theta: theta / 365,
		},
	}, nil
}

// Delta is a shortcut when only the first-order sensitivity is needed,
// e.g. for the option strategy's delta band gate.
func Delta(optType OptionType, spot, strike, tte, vol, rate float64) (float64, error) {
	res, err := Price(optType, spot, strike, tte, vol, rate)
	if err != nil {
		return 0, err
	}
	return res.Greeks.Delta, nil
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
