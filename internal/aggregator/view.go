package aggregator

import "sync"

// ViewHolder hands a completed AggregateView from the poller to readers.
// Publication swaps a single pointer; readers holding the previous view keep
// a complete, consistent value and never observe a partially built cycle.
type ViewHolder struct {
	mu   sync.RWMutex
	view *AggregateView
}

// NewViewHolder creates an empty holder. Current returns nil until the first
// cycle publishes.
func NewViewHolder() *ViewHolder {
	return &ViewHolder{}
}

// Publish replaces the current view
func (h *ViewHolder) Publish(v *AggregateView) {
	h.mu.Lock()
	h.view = v
	h.mu.Unlock()
}

// Current returns the last published view, or nil before the first cycle
func (h *ViewHolder) Current() *AggregateView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.view
}
