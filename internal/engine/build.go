package engine

import (
	"fmt"
	"sort"

	"github.com/quantdesk/pipeline/internal/config"
	"github.com/quantdesk/pipeline/internal/execution"
	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/portfolio"
	"github.com/quantdesk/pipeline/internal/risk"
	"github.com/quantdesk/pipeline/internal/sizing"
	"github.com/quantdesk/pipeline/internal/strategy"
	"github.com/quantdesk/pipeline/internal/trader"
)

// Stack is a fully wired pipeline plus the handles the binaries need.
type Stack struct {
	Pipeline   *Pipeline
	Portfolio  *portfolio.Manager
	KillSwitch *risk.KillSwitch
	Journal    *journal.Journal
}

// FromConfig wires every stage from one loaded configuration document.
func FromConfig(cfg config.Root) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jrnl, err := journal.New(cfg.Monitor.JournalPath)
	if err != nil {
		return nil, err
	}

	// stable spec order keeps proposal order reproducible across runs
	names := make([]string, 0, len(cfg.Strategies))
	for name, entry := range cfg.Strategies {
		if entry.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var specs []trader.StrategySpec
	pairOf := map[string]string{}
	for _, name := range names {
		entry := cfg.Strategies[name]
		strat, err := strategy.New(name, entry.Params)
		if err != nil {
			return nil, fmt.Errorf("wire strategy: %w", err)
		}
		specs = append(specs, trader.StrategySpec{
			Strategy:      strat,
			MinStrength:   entry.MinStrength,
			TakeProfitPct: entry.TakeProfitPct,
			StopLossPct:   entry.StopLossPct,
		})
		if entry.Params.PairSymbol != "" {
			for _, sym := range cfg.Symbols {
				if sym != entry.Params.PairSymbol {
					pairOf[sym] = entry.Params.PairSymbol
				}
			}
		}
	}

	sizer, err := sizing.New(cfg.SizingMethod, cfg.Sizing)
	if err != nil {
		return nil, fmt.Errorf("wire sizing: %w", err)
	}

	source := market.Source(cfg.Source)
	pm := portfolio.NewManager(cfg.NAV)
	ks := risk.NewKillSwitch(jrnl)
	tr := trader.NewAgent(specs, sizer, jrnl, source)
	ra := risk.NewAgent(cfg.Risk, ks, jrnl)
	venue := execution.NewSimulator(cfg.Execution, jrnl)

	pl := NewPipeline(Config{
		Symbols:     cfg.Symbols,
		PairOf:      pairOf,
		HistoryBars: cfg.Monitor.HistoryBars,
		Source:      source,
	}, tr, ra, venue, pm)

	return &Stack{Pipeline: pl, Portfolio: pm, KillSwitch: ks, Journal: jrnl}, nil
}
