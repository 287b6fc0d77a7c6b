package agent

import "sync"

// Exchange is one recorded model round trip for /debug inspection.
type Exchange struct {
	UserInput   string `json:"user_input"`
	TaskSent    string `json:"task_sent"`
	RawResponse string `json:"raw_response"`
}

// DebugRing keeps the most recent exchanges, oldest first.
type DebugRing struct {
	mu      sync.Mutex
	entries []Exchange
	max     int
}

func NewDebugRing(max int) *DebugRing {
	if max <= 0 {
		max = 50
	}
	return &DebugRing{max: max}
}

func (d *DebugRing) Record(e Exchange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, e)
	if len(d.entries) > d.max {
		d.entries = d.entries[len(d.entries)-d.max:]
	}
}

// Last returns up to n most recent exchanges, oldest first.
func (d *DebugRing) Last(n int) []Exchange {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 || n > len(d.entries) {
		n = len(d.entries)
	}
	out := make([]Exchange, n)
	copy(out, d.entries[len(d.entries)-n:])
	return out
}
