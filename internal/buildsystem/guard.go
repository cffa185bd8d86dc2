package buildsystem

import "sync"

// ScanGuard admits one scan at a time. A request made while a scan holds
// the guard is remembered as a rerun instead of being dropped.
type ScanGuard struct {
	mu          sync.Mutex
	scanning    bool
	rerun       bool
	lastSuccess bool
}

// Acquire takes the guard. It returns false and records a rerun when a
// scan is already in flight.
func (g *ScanGuard) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scanning {
		g.rerun = true
		return false
	}
	g.scanning = true
	return true
}

// Release gives the guard back and reports whether a rerun was requested
// meanwhile. The pending rerun is consumed.
func (g *ScanGuard) Release(success bool) (rerun bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scanning = false
	g.lastSuccess = success
	rerun = g.rerun
	g.rerun = false
	return rerun
}

// Scanning reports whether the guard is held.
func (g *ScanGuard) Scanning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scanning
}

// LastSuccess reports whether the most recent scan released with success.
func (g *ScanGuard) LastSuccess() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSuccess
}
