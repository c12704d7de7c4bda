// Package lifecycle holds the process-wide drain flag. Handlers consult it so
// readiness flips to 503 while in-flight requests finish during shutdown.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining marks the process as shutting down. Nil receivers are accepted
// so handlers built without a lifecycle behave as always-ready.
func (l *Lifecycle) SetDraining(v bool) {
	if l == nil {
		return
	}
	l.draining.Store(v)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
