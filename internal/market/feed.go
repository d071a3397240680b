package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Feed supplies fresh observations for a set of symbols. Implementations
// must be safe for use from a single polling goroutine; the monitoring
// loop never polls concurrently.
type Feed interface {
	Poll(ctx context.Context, symbols []string) ([]Observation, error)
	Source() Source
}

// SimFeed generates a seeded random walk per symbol, with a small synthetic
// option chain around the money. A fixed seed yields a reproducible series.
type SimFeed struct {
	random *rand.Rand
	quotes map[string]*simQuote
	now    func() time.Time
}

type simQuote struct {
	symbol      string
	price       float64
	sessionOpen float64
	volatility  float64 // daily volatility as decimal
	avgVolume   float64
}

// NewSimFeed builds a simulated feed from base prices and daily vols.
func NewSimFeed(seed int64, base map[string]SimSymbol) *SimFeed {
	quotes := map[string]*simQuote{}
	for sym, b := range base {
		quotes[sym] = &simQuote{
			symbol:      sym,
			price:       b.BasePrice,
			sessionOpen: b.BasePrice,
			volatility:  b.Volatility,
			avgVolume:   b.AvgVolume,
		}
	}
	return &SimFeed{
		random: rand.New(rand.NewSource(seed)),
		quotes: quotes,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SimSymbol seeds one simulated instrument.
type SimSymbol struct {
	BasePrice  float64 `yaml:"base_price"`
	Volatility float64 `yaml:"volatility"`
	AvgVolume  float64 `yaml:"avg_volume"`
}

func (f *SimFeed) Source() Source { return SourceSimulation }

func (f *SimFeed) Poll(ctx context.Context, symbols []string) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.now()
	out := make([]Observation, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := f.quotes[sym]
		if !ok {
			return nil, fmt.Errorf("sim feed: unknown symbol %q", sym)
		}
		// one-step random walk scaled to a per-poll fraction of daily vol
		step := f.random.NormFloat64() * q.volatility / 16
		q.price *= 1 + step
		volume := q.avgVolume * (0.5 + f.random.Float64())

		out = append(out, Observation{
			Symbol:      sym,
			Timestamp:   now,
			Last:        q.price,
			Volume:      volume,
			AvgVolume:   q.avgVolume,
			SessionOpen: q.sessionOpen,
			Options:     f.chain(q, now),
		})
	}
	return out, nil
}

// chain builds three strikes around the money expiring in two weeks.
func (f *SimFeed) chain(q *simQuote, now time.Time) []OptionQuote {
	expiry := now.AddDate(0, 0, 14)
	iv := q.volatility * math.Sqrt(252)
	strikes := []float64{q.price * 0.95, q.price, q.price * 1.05}
	chain := make([]OptionQuote, 0, len(strikes))
	for i, k := range strikes {
		mid := math.Max(q.price-k, 0) + q.price*0.015
		half := mid * 0.02
		chain = append(chain, OptionQuote{
			Contract:   fmt.Sprintf("%s%c%d", q.symbol, 'A'+i, int(k)),
			Type:       "call",
			Strike:     k,
			Expiry:     expiry,
			Bid:        mid - half,
			Ask:        mid + half,
			ImpliedVol: iv,
		})
	}
	return chain
}

// RateLimitedFeed wraps a live feed so polls never exceed the upstream
// provider budget. Poll blocks until a token is available or ctx ends.
type RateLimitedFeed struct {
	inner   Feed
	limiter *rate.Limiter
}

func NewRateLimitedFeed(inner Feed, requestsPerMinute int) *RateLimitedFeed {
	return &RateLimitedFeed{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1),
	}
}

func (f *RateLimitedFeed) Source() Source { return f.inner.Source() }

func (f *RateLimitedFeed) Poll(ctx context.Context, symbols []string) ([]Observation, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed rate limit: %w", err)
	}
	return f.inner.Poll(ctx, symbols)
}
