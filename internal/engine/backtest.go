package engine

import (
	"fmt"
	"math"

	"github.com/quantdesk/pipeline/internal/market"
)

// Report summarizes a completed backtest run.
type Report struct {
	Ticks       int     `json:"ticks"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	FinalNAV    float64 `json:"final_nav"`
}

// Backtest replays a fixed, ordered sequence of historical ticks through
// the pipeline. Fully sequential; deterministic given identical data and
// configuration.
type Backtest struct {
	pipeline *Pipeline
}

func NewBacktest(pl *Pipeline) *Backtest {
	return &Backtest{pipeline: pl}
}

// Run drives every tick in order and aggregates the report. A state
// corruption halts the run and surfaces the error with partial results.
func (b *Backtest) Run(ticks [][]market.Observation) ([]TickResult, Report, error) {
	var results []TickResult
	var wins, losses int

	for i, tick := range ticks {
		res, err := b.pipeline.SubmitTick(tick)
		if err != nil {
			return results, b.report(results, wins, losses), fmt.Errorf("backtest tick %d: %w", i, err)
		}
		for _, realized := range res.RealizedPnL {
			if realized > 0 {
				wins++
			} else if realized < 0 {
				losses++
			}
		}
		results = append(results, res)
	}
	return results, b.report(results, wins, losses), nil
}

func (b *Backtest) report(results []TickResult, wins, losses int) Report {
	rep := Report{Ticks: len(results)}
	if len(results) == 0 {
		return rep
	}

	var trades int
	returns := make([]float64, 0, len(results))
	prevNAV := 0.0
	for i, res := range results {
		trades += len(res.Executions)
		if res.Snapshot.Drawdown > rep.MaxDrawdown {
			rep.MaxDrawdown = res.Snapshot.Drawdown
		}
		if i > 0 && prevNAV > 0 {
			returns = append(returns, (res.Snapshot.NAV-prevNAV)/prevNAV)
		}
		prevNAV = res.Snapshot.NAV
	}

	last := results[len(results)-1].Snapshot
	rep.TotalReturn = last.CumulativeReturn
	rep.FinalNAV = last.NAV
	rep.TotalTrades = trades
	if wins+losses > 0 {
		rep.WinRate = float64(wins) / float64(wins+losses)
	}
	rep.SharpeRatio = sharpe(returns)
	return rep
}

// sharpe annualizes mean-over-std of per-tick returns assuming daily bars.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}
