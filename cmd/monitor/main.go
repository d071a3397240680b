package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantdesk/pipeline/internal/config"
	"github.com/quantdesk/pipeline/internal/engine"
	"github.com/quantdesk/pipeline/internal/market"
	"github.com/quantdesk/pipeline/internal/observ"
)

func main() {
	log.SetFlags(0)
	configPath := flag.String("config", "config.yaml", "pipeline configuration")
	addr := flag.String("addr", ":8090", "operational HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	stack, err := engine.FromConfig(cfg)
	if err != nil {
		log.Fatalf("wire pipeline: %v", err)
	}

	feed := market.NewRateLimitedFeed(
		market.NewSimFeed(cfg.Sim.Seed, cfg.Sim.Symbols),
		cfg.Monitor.FeedRatePerMin,
	)
	capture, err := market.NewCaptureStore(cfg.Monitor.CapturePath)
	if err != nil {
		log.Fatalf("capture store: %v", err)
	}

	monitor := engine.NewMonitor(stack.Pipeline, feed, capture, cfg.Symbols)
	monitor.Start(time.Duration(cfg.Monitor.IntervalSeconds) * time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	mux.Handle("/healthz", observ.HealthHandler())

	mux.HandleFunc("/portfolio", func(w http.ResponseWriter, r *http.Request) {
		positions, nav, exposure := stack.Pipeline.GetPortfolioState()
		writeJSON(w, map[string]any{
			"positions": positions,
			"nav":       nav,
			"aggregate_greeks": map[string]float64{
				"delta": exposure.AggDelta,
				"gamma": exposure.AggGamma,
				"vega":  exposure.AggVega,
			},
		})
	})
	mux.HandleFunc("/performance", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, stack.Pipeline.GetPerformanceHistory())
	})
	mux.HandleFunc("/counters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, monitor.GetCounters())
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		res, err := monitor.ManualScan(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})
	mux.HandleFunc("/killswitch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			active, by, reason, at := stack.KillSwitch.Info()
			writeJSON(w, map[string]any{"active": active, "by": by, "reason": reason, "at": at})
			return
		}
		operator := r.URL.Query().Get("by")
		if operator == "" {
			operator = "operator"
		}
		switch r.URL.Query().Get("action") {
		case "trip":
			stack.KillSwitch.Trip(operator, r.URL.Query().Get("reason"))
		case "clear":
			stack.KillSwitch.Clear(operator)
		default:
			http.Error(w, "action must be trip or clear", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		observ.Log("http_listening", map[string]any{"addr": *addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	observ.Log("shutting_down", nil)
	monitor.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
