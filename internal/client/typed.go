package client

import "forum-realtime/internal/realtime"

// NewFiltered builds a Manager whose typed callback fires only for the given
// event types; everything else delegates to the same state machine. Any
// OnEvent already set in cfg is replaced.
func NewFiltered(cfg Config, types []realtime.EventType, fn func(realtime.Event)) (*Manager, error) {
	wanted := make(map[realtime.EventType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	cfg.OnEvent = func(evt realtime.Event) {
		if _, ok := wanted[evt.Type]; ok {
			fn(evt)
		}
	}
	return New(cfg)
}
