package connectivity

import (
	"iter"
	"maps"
	"slices"
)

// ActionInfo describes how an action is currently routed.
type ActionInfo struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Endpoint string `json:"endpoint,omitempty"`
	HasLocal bool   `json:"has_local"`

	// TimeoutMs is the route's call timeout, 0 when unbounded.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// ListActions iterates over every known action in name order: those with
// a routes-table row and those with only a local handler.
func (r *Router) ListActions() iter.Seq[ActionInfo] {
	return func(yield func(ActionInfo) bool) {
		r.mu.RLock()
		names := make(map[string]struct{}, len(r.routeSnap)+len(r.local))
		for n := range r.routeSnap {
			names[n] = struct{}{}
		}
		for n := range r.local {
			names[n] = struct{}{}
		}
		infos := make([]ActionInfo, 0, len(names))
		for _, n := range slices.Sorted(maps.Keys(names)) {
			infos = append(infos, r.inspectLocked(n))
		}
		r.mu.RUnlock()

		for _, info := range infos {
			if !yield(info) {
				return
			}
		}
	}
}

// Inspect describes one action. ok is false if it is unknown.
func (r *Router) Inspect(action string) (info ActionInfo, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, hasRoute := r.routeSnap[action]
	_, hasLocal := r.local[action]
	if !hasRoute && !hasLocal {
		return ActionInfo{}, false
	}
	return r.inspectLocked(action), true
}

func (r *Router) inspectLocked(action string) ActionInfo {
	_, hasLocal := r.local[action]
	info := ActionInfo{Name: action, Strategy: StrategyLocal, HasLocal: hasLocal}
	if rt, ok := r.routeSnap[action]; ok {
		info.Strategy = rt.Strategy
		info.Endpoint = rt.Endpoint
		info.TimeoutMs = rt.Timeout.Milliseconds()
	}
	return info
}
