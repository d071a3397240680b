// Package journal is the append-only record of every pipeline event.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantdesk/pipeline/internal/observ"
)

// Event types written to the journal.
const (
	TypeTraderProposal = "trader_proposal"
	TypeRiskEvaluation = "risk_evaluation"
	TypeExecution      = "execution"
	TypeKillSwitch     = "kill_switch"
)

// Entry is one journal line. CorrelationID carries the proposal or order
// id so external observers can stitch the lifecycle back together.
type Entry struct {
	Type          string      `json:"type"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id"`
	Data          interface{} `json:"data"`
}

// Journal appends entries to a JSONL file. One writer at a time; entries
// are never mutated after write.
type Journal struct {
	mu   sync.Mutex
	path string
}

func New(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{path: path}, nil
}

// Append writes one entry. Write failures are surfaced to the caller and
// counted; the pipeline logs and continues.
func (j *Journal) Append(eventType, correlationID string, data interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          data,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		observ.IncCounter("journal_write_errors_total", map[string]string{"type": eventType})
		return fmt.Errorf("journal marshal: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		observ.IncCounter("journal_write_errors_total", map[string]string{"type": eventType})
		return fmt.Errorf("journal open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(string(b) + "\n"); err != nil {
		observ.IncCounter("journal_write_errors_total", map[string]string{"type": eventType})
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

// Load reads every entry back in write order so observers can replay the
// proposal/evaluation/execution lifecycle. Malformed lines are skipped.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal open: %w", err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// LoadByCorrelation filters the journal to one proposal/order lifecycle.
func (j *Journal) LoadByCorrelation(correlationID string) ([]Entry, error) {
	entries, err := j.Load()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}
