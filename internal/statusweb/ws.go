package statusweb

import (
	"net/http"
)

// handleWS upgrades to a websocket and streams slot-state transition
// events to the client, throttled per connection. This is the domain
// enrichment SPEC_FULL.md adds over the polled HTML snapshot: clients
// that want live updates subscribe here instead of re-fetching "/jobs".
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.pool.Events().Subscribe()
	defer unsubscribe()

	limiter := s.rateLimiter()
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
