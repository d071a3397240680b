package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/quantdesk/pipeline/internal/config"
	"github.com/quantdesk/pipeline/internal/engine"
	"github.com/quantdesk/pipeline/internal/market"
)

type barsFile struct {
	Ticks [][]market.Observation `json:"ticks"`
}

func mustRead(path string, v any) {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Fatalf("json %s: %v", path, err)
	}
}

func main() {
	log.SetFlags(0)
	configPath := flag.String("config", "config.yaml", "pipeline configuration")
	barsPath := flag.String("bars", "fixtures/bars.json", "historical ticks fixture")
	verbose := flag.Bool("v", false, "print every tick result")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var bf barsFile
	mustRead(*barsPath, &bf)
	if len(bf.Ticks) == 0 {
		log.Fatalf("no ticks in %s", *barsPath)
	}

	stack, err := engine.FromConfig(cfg)
	if err != nil {
		log.Fatalf("wire pipeline: %v", err)
	}

	bt := engine.NewBacktest(stack.Pipeline)
	results, report, err := bt.Run(bf.Ticks)
	if err != nil {
		log.Printf("backtest halted: %v", err)
	}

	if *verbose {
		for _, res := range results {
			b, _ := json.Marshal(res)
			fmt.Println(string(b))
		}
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
