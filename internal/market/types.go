package market

import "time"

// Source tags where an observation came from.
type Source string

const (
	SourceSimulation Source = "simulation"
	SourceReal       Source = "real"
)

// OptionQuote is a single leg of an option chain snapshot.
type OptionQuote struct {
	Contract   string    `json:"contract"`
	Type       string    `json:"type"` // "call" | "put"
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	ImpliedVol float64   `json:"implied_vol"`
}

// Mid returns the bid/ask midpoint, falling back to whichever side exists.
func (q OptionQuote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	if q.Ask > 0 {
		return q.Ask
	}
	return q.Bid
}

// SpreadPct returns the bid/ask spread as a fraction of the midpoint.
func (q OptionQuote) SpreadPct() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid
}

// DaysToExpiry returns the whole days remaining until the contract expires.
func (q OptionQuote) DaysToExpiry(now time.Time) int {
	return int(q.Expiry.Sub(now).Hours() / 24)
}

// Observation is one immutable market data point for a symbol.
type Observation struct {
	Symbol      string        `json:"symbol"`
	Timestamp   time.Time     `json:"timestamp"`
	Last        float64       `json:"last"`
	Volume      float64       `json:"volume"`
	AvgVolume   float64       `json:"avg_volume"`   // trailing average daily volume
	SessionOpen float64       `json:"session_open"` // today's opening price, 0 if unknown
	Options     []OptionQuote `json:"options,omitempty"`
}

// IntradayReturn is the return since the session open, 0 when open is unknown.
func (o Observation) IntradayReturn() float64 {
	if o.SessionOpen <= 0 {
		return 0
	}
	return (o.Last - o.SessionOpen) / o.SessionOpen
}

// VolumeRatio compares current volume against the trailing average.
func (o Observation) VolumeRatio() float64 {
	if o.AvgVolume <= 0 {
		return 0
	}
	return o.Volume / o.AvgVolume
}
