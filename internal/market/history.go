package market

import "sync"

// History keeps a bounded per-symbol window of recent observations.
// Strategies read closed snapshots; only the pipeline driver appends.
type History struct {
	mu      sync.RWMutex
	maxBars int
	bars    map[string][]Observation
}

func NewHistory(maxBars int) *History {
	if maxBars <= 0 {
		maxBars = 250
	}
	return &History{
		maxBars: maxBars,
		bars:    map[string][]Observation{},
	}
}

// Append records an observation, evicting the oldest bar past the window.
func (h *History) Append(obs Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bars := append(h.bars[obs.Symbol], obs)
	if len(bars) > h.maxBars {
		bars = bars[len(bars)-h.maxBars:]
	}
	h.bars[obs.Symbol] = bars
}

// Window returns a copy of the most recent n bars for a symbol (all bars
// when n <= 0). The copy keeps strategy evaluation free of shared state.
func (h *History) Window(symbol string, n int) []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bars := h.bars[symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]Observation, len(bars))
	copy(out, bars)
	return out
}

// Closes extracts the close prices from a window, oldest first.
func Closes(bars []Observation) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Last
	}
	return out
}
