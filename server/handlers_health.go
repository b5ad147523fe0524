package server

import (
	"net/http"

	"github.com/Altoar/twitch-livelist/eventsub"
	"github.com/Altoar/twitch-livelist/watch"
)

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports readiness: the store must be reachable. A missing
// session is not a failure; the bridge is ready while waiting for a hand-off.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": "database",
				"error":        err.Error(),
			})
			return
		}
	}
	if _, err := h.store.Session(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "not_ready",
			"failed_check": "store",
			"error":        err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports the operational snapshot the companion UI polls:
// session presence, fetch statuses, badge, and the push channel's state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loggedIn, err := h.store.LoggedIn(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load session")
		return
	}

	esState := eventsub.StateDisconnected
	if h.events != nil {
		esState = h.events.State()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn": loggedIn,
		"badge":    h.watcher.Badge(),
		"live":     len(h.watcher.LiveStreams()),
		"statuses": h.watcher.Board.Snapshot(),
		"eventsub": esState,
		"jobs": map[string]bool{
			watch.JobLivePoll:   h.sched.Running(watch.JobLivePoll),
			watch.JobRevalidate: h.sched.Running(watch.JobRevalidate),
		},
	})
}
