package capture

import "sync"

// Guard suppresses change capture while a remote-origin change is being
// applied to the local store. Without it the apply would be re-captured as a
// new outbound change and bounce between the two stores forever.
type Guard struct {
	mu         sync.Mutex
	suppressed bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// Acquire enables suppression and returns the release func. Callers must
// release via defer so that a failed or cancelled apply can never leave
// capture disabled.
func (g *Guard) Acquire() func() {
	g.mu.Lock()
	g.suppressed = true
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.suppressed = false
		g.mu.Unlock()
	}
}

// Set toggles suppression directly. Used by orchestrator-driven bulk
// remote-apply batches that do not go through the per-change apply path.
func (g *Guard) Set(enabled bool) {
	g.mu.Lock()
	g.suppressed = enabled
	g.mu.Unlock()
}

// Suppressed reports whether capture is currently disabled.
func (g *Guard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}
