package market

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func obs(symbol string, last float64, ts time.Time) Observation {
	return Observation{Symbol: symbol, Timestamp: ts, Last: last}
}

func TestHistoryEviction(t *testing.T) {
	h := NewHistory(3)
	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Append(obs("PETR4", float64(100+i), t0.Add(time.Duration(i)*time.Minute)))
	}

	window := h.Window("PETR4", 0)
	if len(window) != 3 {
		t.Fatalf("want 3 bars kept, got %d", len(window))
	}
	if window[0].Last != 102 || window[2].Last != 104 {
		t.Fatalf("oldest bars must be evicted: %v", Closes(window))
	}

	last2 := h.Window("PETR4", 2)
	if len(last2) != 2 || last2[1].Last != 104 {
		t.Fatalf("partial window wrong: %v", Closes(last2))
	}
}

func TestWindowIsACopy(t *testing.T) {
	h := NewHistory(10)
	h.Append(obs("PETR4", 100, time.Now()))

	w := h.Window("PETR4", 0)
	w[0].Last = -1

	if h.Window("PETR4", 0)[0].Last != 100 {
		t.Fatal("mutating a window must not touch stored history")
	}
}

func TestOptionQuoteHelpers(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	q := OptionQuote{Strike: 150, Expiry: now.AddDate(0, 0, 14), Bid: 2.9, Ask: 3.1}

	if q.Mid() != 3.0 {
		t.Fatalf("want mid 3.0, got %f", q.Mid())
	}
	if got := q.SpreadPct(); got < 0.066 || got > 0.068 {
		t.Fatalf("want spread ~6.7%%, got %f", got)
	}
	if q.DaysToExpiry(now) != 14 {
		t.Fatalf("want 14 DTE, got %d", q.DaysToExpiry(now))
	}

	oneSided := OptionQuote{Ask: 2.0}
	if oneSided.Mid() != 2.0 {
		t.Fatalf("ask-only quote should mid at the ask, got %f", oneSided.Mid())
	}
}

func TestObservationRatios(t *testing.T) {
	o := Observation{Last: 151.5, SessionOpen: 150, Volume: 3000, AvgVolume: 1000}
	if got := o.IntradayReturn(); got < 0.0099 || got > 0.0101 {
		t.Fatalf("want ~1%% intraday return, got %f", got)
	}
	if o.VolumeRatio() != 3 {
		t.Fatalf("want volume ratio 3, got %f", o.VolumeRatio())
	}

	unknownOpen := Observation{Last: 151.5}
	if unknownOpen.IntradayReturn() != 0 {
		t.Fatal("unknown session open must read as zero return")
	}
}

func TestSimFeedDeterminism(t *testing.T) {
	base := map[string]SimSymbol{
		"PETR4": {BasePrice: 38.50, Volatility: 0.02, AvgVolume: 1_000_000},
		"VALE3": {BasePrice: 61.20, Volatility: 0.015, AvgVolume: 800_000},
	}
	a := NewSimFeed(42, base)
	b := NewSimFeed(42, base)
	symbols := []string{"PETR4", "VALE3"}

	for i := 0; i < 5; i++ {
		obsA, err := a.Poll(context.Background(), symbols)
		if err != nil {
			t.Fatal(err)
		}
		obsB, err := b.Poll(context.Background(), symbols)
		if err != nil {
			t.Fatal(err)
		}
		for j := range obsA {
			if obsA[j].Last != obsB[j].Last || obsA[j].Volume != obsB[j].Volume {
				t.Fatalf("poll %d: same seed must walk identically", i)
			}
			if obsA[j].Last <= 0 {
				t.Fatalf("prices must stay positive, got %f", obsA[j].Last)
			}
			if len(obsA[j].Options) != 3 {
				t.Fatalf("want a 3-strike chain, got %d", len(obsA[j].Options))
			}
		}
	}
}

func TestSimFeedUnknownSymbol(t *testing.T) {
	f := NewSimFeed(1, map[string]SimSymbol{"PETR4": {BasePrice: 38.50, Volatility: 0.02, AvgVolume: 1000}})
	if _, err := f.Poll(context.Background(), []string{"GGBR4"}); err == nil {
		t.Fatal("unknown symbol must error")
	}
}

func TestSimFeedCanceledContext(t *testing.T) {
	f := NewSimFeed(1, map[string]SimSymbol{"PETR4": {BasePrice: 38.50, Volatility: 0.02, AvgVolume: 1000}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Poll(ctx, []string{"PETR4"}); err == nil {
		t.Fatal("canceled context must abort the poll")
	}
}

func TestRateLimitedFeedPassesThrough(t *testing.T) {
	inner := NewSimFeed(1, map[string]SimSymbol{"PETR4": {BasePrice: 38.50, Volatility: 0.02, AvgVolume: 1000}})
	f := NewRateLimitedFeed(inner, 600)

	if f.Source() != SourceSimulation {
		t.Fatalf("want simulation source, got %s", f.Source())
	}
	observations, err := f.Poll(context.Background(), []string{"PETR4"})
	if err != nil {
		t.Fatal(err)
	}
	if len(observations) != 1 {
		t.Fatalf("want 1 observation, got %d", len(observations))
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	store, err := NewCaptureStore(filepath.Join(t.TempDir(), "captures.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
	if err := store.Write(SourceSimulation, obs("PETR4", 38.5, ts)); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(SourceReal, obs("VALE3", 61.2, ts)); err != nil {
		t.Fatal(err)
	}

	captures, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(captures) != 2 {
		t.Fatalf("want 2 captures, got %d", len(captures))
	}
	if captures[0].Source != SourceSimulation || captures[0].Data.Symbol != "PETR4" {
		t.Fatalf("first capture wrong: %+v", captures[0])
	}
	if captures[1].Source != SourceReal || captures[1].Data.Last != 61.2 {
		t.Fatalf("second capture wrong: %+v", captures[1])
	}
}
