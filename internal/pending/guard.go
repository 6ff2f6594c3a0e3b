package pending

import "sync"

// StaleJobGuard remembers job ids the horde has declared permanently
// unknown (404). Without it the client would poll a dead id forever,
// wasting requests and risking rate-limiting of the whole client.
//
// Entries are only ever added within a run. The guard is in-memory on
// purpose: a restarted client simply rediscovers staleness on its next
// poll and re-marks the id.
type StaleJobGuard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewStaleJobGuard returns an empty guard.
func NewStaleJobGuard() *StaleJobGuard {
	return &StaleJobGuard{ids: make(map[string]struct{})}
}

// Mark records a job id as permanently unknown to the backend.
func (g *StaleJobGuard) Mark(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids[jobID] = struct{}{}
}

// Known reports whether a job id has been marked stale.
func (g *StaleJobGuard) Known(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[jobID]
	return ok
}

// Len returns the number of guarded ids.
func (g *StaleJobGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}
