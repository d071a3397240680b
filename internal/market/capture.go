package market

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Capture is a persisted copy of an observation, tagged with its source,
// used for monitoring dashboards and replay.
type Capture struct {
	Source     Source      `json:"source"`
	CapturedAt time.Time   `json:"captured_at"`
	Data       Observation `json:"data"`
}

// CaptureStore appends captures to a JSONL file, one writer at a time.
type CaptureStore struct {
	mu   sync.Mutex
	path string
}

func NewCaptureStore(path string) (*CaptureStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("capture store: %w", err)
	}
	return &CaptureStore{path: path}, nil
}

func (s *CaptureStore) Write(source Source, obs Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Capture{Source: source, CapturedAt: time.Now().UTC(), Data: obs}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal capture: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open capture store: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(string(data) + "\n"); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}

// Load reads every capture back, oldest first. Malformed lines are skipped.
func (s *CaptureStore) Load() ([]Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open capture store: %w", err)
	}
	defer f.Close()

	var out []Capture
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var c Capture
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, scanner.Err()
}
