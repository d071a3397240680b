package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// CounterTotal sums a counter across all label sets.
func CounterTotal(name string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, count := range reg.counters[name] {
		total += count
	}
	return total
}

// GaugeValue returns the first value recorded under a gauge name.
func GaugeValue(name string) (float64, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, v := range reg.gauges[name] {
		return v, true
	}
	return 0, false
}

// Basic text/JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus summarizes pipeline health for the operational endpoint.
type HealthStatus struct {
	Status    string        `json:"status"`    // "healthy", "degraded", "halted"
	Timestamp string        `json:"timestamp"` // ISO 8601
	Uptime    string        `json:"uptime"`    // Duration since start
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics holds the key pipeline metrics exposed on /healthz.
type HealthMetrics struct {
	KillSwitchActive bool    `json:"kill_switch_active"`
	TickLatencyP95Ms int64   `json:"tick_latency_p95_ms"`
	TicksTotal       int64   `json:"ticks_total"`
	TickErrors       int64   `json:"tick_errors"`
	ProposalsTotal   int64   `json:"proposals_total"`
	ExecutionsTotal  int64   `json:"executions_total"`
	JournalErrors    int64   `json:"journal_errors"`
	RejectRate       float64 `json:"reject_rate"`
}

var startTime = time.Now()

// HealthHandler reports pipeline health from the telemetry registry.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := healthMetrics()

		status := "healthy"
		statusCode := http.StatusOK
		if metrics.KillSwitchActive {
			status = "halted"
			statusCode = http.StatusServiceUnavailable
		} else if metrics.JournalErrors > 0 || metrics.TickErrors > 0 {
			status = "degraded"
			statusCode = http.StatusPartialContent
		}

		health := HealthStatus{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Metrics:   metrics,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

func healthMetrics() HealthMetrics {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	m := HealthMetrics{}

	for _, v := range reg.gauges["kill_switch_active"] {
		m.KillSwitchActive = v == 1
		break
	}

	if samples, exists := reg.hist["tick_latency_ms"]; exists {
		for _, s := range samples {
			if len(s) == 0 {
				continue
			}
			sorted := make([]float64, len(s))
			copy(sorted, s)
			sort.Float64s(sorted)
			idx := int(float64(len(sorted)) * 0.95)
			if idx >= len(sorted) {
				idx = len(sorted) - 1
			}
			m.TickLatencyP95Ms = int64(sorted[idx])
			break
		}
	}

	sum := func(name string) int64 {
		var total int64
		for _, count := range reg.counters[name] {
			total += count
		}
		return total
	}
	m.TicksTotal = sum("ticks_total")
	m.TickErrors = sum("tick_errors_total")
	m.ProposalsTotal = sum("proposals_total")
	m.ExecutionsTotal = sum("executions_total")
	m.JournalErrors = sum("journal_write_errors_total")

	evals := sum("risk_evaluations_total")
	rejects := sum("risk_rejects_total")
	if evals > 0 {
		m.RejectRate = float64(rejects) / float64(evals)
	}

	return m
}
