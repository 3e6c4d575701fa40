package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/observability"
)

const defaultKeepAlive = 25 * time.Second

// streamRestaurants serves a live listing as Server-Sent Events: one
// "restaurants" event carrying the full result set per change.
func (h *Handlers) streamRestaurants(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}

	sub, err := h.Q.Subscribe(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Cancel()
	observability.ActiveSubscriptions.Inc()
	defer observability.ActiveSubscriptions.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	every := h.KeepAlive
	if every <= 0 {
		every = defaultKeepAlive
	}
	keepAlive := time.NewTicker(every)
	defer keepAlive.Stop()

	for seq := 1; ; {
		select {
		case <-r.Context().Done():
			return
		case set, ok := <-sub.Updates():
			if !ok {
				return
			}
			b, err := json.Marshal(set)
			if err != nil {
				log.Error().Err(err).Msg("encode live listing failed")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: restaurants\ndata: %s\n\n", seq, b); err != nil {
				return
			}
			fl.Flush()
			seq++
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}
