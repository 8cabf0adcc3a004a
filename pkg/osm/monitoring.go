package osm

import (
	"sync"
	"time"
)

// MonitoringHooks defines hooks for observing document parsing
type MonitoringHooks struct {
	// OnElement is called for every element stored in the map
	OnElement func(t ElementType)

	// OnSkipped is called when an element is discarded. Dropped tags are
	// reported here too, even though their parent element is kept.
	OnSkipped func(t ElementType, reason error)

	// OnComplete is called once per successful parse
	OnComplete func(stats Stats, duration time.Duration)

	// OnError is called when the parse aborts: the token stream failed, or a
	// strict parse hit a malformed element. Strict failures are not also
	// reported to OnSkipped.
	OnError func(err error)
}

var (
	// Global monitoring hooks
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets the hooks used by parses that do not pass WithHooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

// getMonitoringHooks returns the current monitoring hooks
func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

func (h *MonitoringHooks) element(t ElementType) {
	if h != nil && h.OnElement != nil {
		h.OnElement(t)
	}
}

func (h *MonitoringHooks) skipped(t ElementType, reason error) {
	if h != nil && h.OnSkipped != nil {
		h.OnSkipped(t, reason)
	}
}

func (h *MonitoringHooks) complete(stats Stats, d time.Duration) {
	if h != nil && h.OnComplete != nil {
		h.OnComplete(stats, d)
	}
}

func (h *MonitoringHooks) failed(err error) {
	if h != nil && h.OnError != nil {
		h.OnError(err)
	}
}
