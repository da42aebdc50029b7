package sequencer

import (
	"sync"

	"github.com/mwessel/netrollout/internal/core/domain"
)

// =============================================================================
// Run History
// =============================================================================

// History is the in-memory, append-only record of completed runs. It lives
// for the process lifetime and is the source of truth for the current
// status snapshot; persistence is a separate concern layered on top.
type History struct {
	mu      sync.Mutex
	runs    []*domain.DeploymentResult
	current *domain.DeploymentResult
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records a completed run and makes it the current one.
func (h *History) Append(result *domain.DeploymentResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, result)
	h.current = result
}

// Current returns the most recent run, or nil if none has completed.
func (h *History) Current() *domain.DeploymentResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Runs returns a defensive copy of the run list, oldest first.
func (h *History) Runs() []*domain.DeploymentResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*domain.DeploymentResult, len(h.runs))
	copy(out, h.runs)
	return out
}

// Len returns the number of recorded runs.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

// Status returns a snapshot of the most recent run. The second return is
// false when no run has completed yet.
func (h *History) Status() (domain.StatusSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		return domain.StatusSnapshot{}, false
	}
	r := h.current
	return domain.StatusSnapshot{
		RunID:         r.ID,
		TotalDevices:  r.TotalDevices,
		Successful:    r.Successful,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		ExecutionTime: r.ExecutionTime,
		Summary:       r.Summary,
		Timestamp:     r.StartedAt,
	}, true
}
