package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantdesk/pipeline/internal/execution"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/risk"
	"github.com/quantdesk/pipeline/internal/sizing"
	"github.com/quantdesk/pipeline/internal/strategy"
)

// StrategyEntry enables one strategy with its thresholds and the proposal
// take-profit/stop-loss attached to trades it originates.
type StrategyEntry struct {
	Enabled       bool            `yaml:"enabled"`
	Params        strategy.Params `yaml:"params"`
	MinStrength   float64         `yaml:"min_strength"`
	TakeProfitPct float64         `yaml:"take_profit_pct"`
	StopLossPct   float64         `yaml:"stop_loss_pct"`
}

// Monitor configures the live polling loop.
type Monitor struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	JournalPath     string `yaml:"journal_path"`
	CapturePath     string `yaml:"capture_path"`
	FeedRatePerMin  int    `yaml:"feed_rate_per_minute"`
	HistoryBars     int    `yaml:"history_bars"`
}

// Sim seeds the simulated feed.
type Sim struct {
	Seed    int64                       `yaml:"seed"`
	Symbols map[string]market.SimSymbol `yaml:"symbols"`
}

// Root is the full pipeline configuration document.
type Root struct {
	NAV          float64                  `yaml:"nav"`
	Symbols      []string                 `yaml:"symbols"`
	Source       string                   `yaml:"source"` // simulation | real
	RiskFreeRate float64                  `yaml:"risk_free_rate"`
	Strategies   map[string]StrategyEntry `yaml:"strategies"`
	SizingMethod string                   `yaml:"sizing_method"`
	Sizing       sizing.Params            `yaml:"sizing"`
	Risk         risk.Limits              `yaml:"risk"`
	Execution    execution.SimConfig      `yaml:"execution"`
	Monitor      Monitor                  `yaml:"monitor"`
	Sim          Sim                      `yaml:"sim"`
}

// Load reads a yaml config and patches defaults, the same way every time
// so a config file and a run are reproducible together.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return withDefaults(c), nil
}

func withDefaults(c Root) Root {
	if c.NAV == 0 {
		c.NAV = 100000
	}
	if c.Source == "" {
		c.Source = string(market.SourceSimulation)
	}
	if c.RiskFreeRate == 0 {
		c.RiskFreeRate = 0.1075
	}
	if c.SizingMethod == "" {
		c.SizingMethod = "adaptive"
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 300
	}
	if c.Monitor.JournalPath == "" {
		c.Monitor.JournalPath = "data/journal.jsonl"
	}
	if c.Monitor.CapturePath == "" {
		c.Monitor.CapturePath = "data/captures.jsonl"
	}
	if c.Monitor.FeedRatePerMin == 0 {
		c.Monitor.FeedRatePerMin = 60
	}
	if c.Monitor.HistoryBars == 0 {
		c.Monitor.HistoryBars = 250
	}
	if c.Sim.Seed == 0 {
		c.Sim.Seed = 42
	}

	if c.Strategies == nil {
		c.Strategies = map[string]StrategyEntry{}
	}
	for name, entry := range c.Strategies {
		if entry.TakeProfitPct == 0 {
			entry.TakeProfitPct = 0.05
		}
		if entry.StopLossPct == 0 {
			entry.StopLossPct = 0.02
		}
		if entry.MinStrength == 0 {
			entry.MinStrength = entry.Params.MinStrength
			if entry.MinStrength == 0 {
				entry.MinStrength = 0.2
			}
		}
		entry.Params.RiskFreeRate = c.RiskFreeRate
		c.Strategies[name] = entry
	}

	c.Sizing = c.Sizing.Defaults()
	c.Risk = c.Risk.Defaults()
	if c.Risk.RiskFreeRate == 0 {
		c.Risk.RiskFreeRate = c.RiskFreeRate
	}
	c.Execution = c.Execution.Defaults()
	return c
}

// Validate rejects configs the pipeline cannot run with.
func (c Root) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	enabled := 0
	for name, entry := range c.Strategies {
		if !entry.Enabled {
			continue
		}
		enabled++
		if _, err := strategy.New(name, entry.Params); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("config: no strategies enabled")
	}
	if _, err := sizing.New(c.SizingMethod, c.Sizing); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
