package monitoring

import (
	"sync"
	"time"
)

// historyLimit bounds the retained tick results.
const historyLimit = 100

// Result aggregates what one monitoring tick did.
type Result struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	LeadsScanned   int       `json:"leadsScanned"`
	Redistributed  int       `json:"redistributed"`
	Escalated      int       `json:"escalated"`
	Failed         int       `json:"failed"`
	TasksCreated   int       `json:"tasksCreated"`
	TasksClosed    int       `json:"tasksClosed"`
	RuleExecutions int       `json:"ruleExecutions"`
	Errors         []string  `json:"errors"`
}

// history retains the most recent tick results, oldest dropped first.
type history struct {
	mu      sync.Mutex
	entries []Result
}

func (h *history) append(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, r)
	if len(h.entries) > historyLimit {
		h.entries = h.entries[len(h.entries)-historyLimit:]
	}
}

// snapshot returns the retained results, newest first.
func (h *history) snapshot() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Result, len(h.entries))
	for i, r := range h.entries {
		out[len(h.entries)-1-i] = r
	}
	return out
}

// escalatedSince sums escalations across results that started at or after
// the cutoff. Feeds the daily escalation-pattern threshold.
func (h *history) escalatedSince(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, r := range h.entries {
		if !r.StartedAt.Before(cutoff) {
			total += r.Escalated
		}
	}
	return total
}
