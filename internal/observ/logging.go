package observ

import (
	"encoding/json"
	"os"
	"time"
)

// Log emits one structured JSON line per pipeline event to stdout.
// Every stage logs through here so events share one shape.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = make(map[string]any, 2)
	}
	kv["event"] = event
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	_ = json.NewEncoder(os.Stdout).Encode(kv)
}
