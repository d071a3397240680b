package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantdesk/pipeline/internal/journal"
	"github.com/quantdesk/pipeline/internal/observ"
)

// KillSwitch is the process-wide safety flag. Once tripped, every new
// evaluation rejects until an operator clears it. It is passed by handle
// into evaluation paths rather than looked up globally.
type KillSwitch struct {
	tripped atomic.Bool

	mu        sync.Mutex
	reason    string
	trippedBy string
	trippedAt time.Time
	journal   *journal.Journal
}

func NewKillSwitch(jrnl *journal.Journal) *KillSwitch {
	return &KillSwitch{journal: jrnl}
}

// Active reports whether the switch is tripped. Lock-free so every
// evaluation can re-check it cheaply.
func (k *KillSwitch) Active() bool {
	return k.tripped.Load()
}

// Trip halts all new approvals. Idempotent; the first trip wins.
func (k *KillSwitch) Trip(by, reason string) {
	if k.tripped.Swap(true) {
		return
	}
	k.mu.Lock()
	k.reason = reason
	k.trippedBy = by
	k.trippedAt = time.Now().UTC()
	k.mu.Unlock()

	observ.SetGauge("kill_switch_active", 1, nil)
	observ.Log("kill_switch_tripped", map[string]any{"by": by, "reason": reason})
	if k.journal != nil {
		_ = k.journal.Append(journal.TypeKillSwitch, "", map[string]string{
			"action": "trip", "by": by, "reason": reason,
		})
	}
}

// Clear re-enables approvals. Manual operator action only.
func (k *KillSwitch) Clear(by string) {
	if !k.tripped.Swap(false) {
		return
	}
	k.mu.Lock()
	k.reason = ""
	k.trippedBy = ""
	k.mu.Unlock()

	observ.SetGauge("kill_switch_active", 0, nil)
	observ.Log("kill_switch_cleared", map[string]any{"by": by})
	if k.journal != nil {
		_ = k.journal.Append(journal.TypeKillSwitch, "", map[string]string{
			"action": "clear", "by": by,
		})
	}
}

// Info returns the trip metadata for dashboards.
func (k *KillSwitch) Info() (active bool, by, reason string, at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tripped.Load(), k.trippedBy, k.reason, k.trippedAt
}
