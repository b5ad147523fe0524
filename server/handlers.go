// Package server exposes the HTTP bridge: the message endpoint the companion
// web app hands tokens to, read surfaces for the UI, health probes, and
// metrics. It includes permissive CORS for development and injects correlation
// IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Altoar/twitch-livelist/auth"
	"github.com/Altoar/twitch-livelist/config"
	"github.com/Altoar/twitch-livelist/eventsub"
	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/twitchapi"
	"github.com/Altoar/twitch-livelist/watch"
)

// Maximum number of OAuth states to keep in memory.
const maxOAuthStates = 10000

// Pinger is the database liveness check; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg       *config.Config
	db        Pinger
	store     *state.Store
	validator *auth.Validator
	client    *twitchapi.Client
	watcher   *watch.Watcher
	sched     *watch.Scheduler
	events    *eventsub.Client

	// appCtx outlives requests; background jobs started from a request
	// handler must not die with the request.
	appCtx context.Context

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// Deps wires the handlers to the rest of the service. EventSub may be nil
// when the push channel is disabled.
type Deps struct {
	Cfg       *config.Config
	DB        Pinger
	Store     *state.Store
	Validator *auth.Validator
	Client    *twitchapi.Client
	Watcher   *watch.Watcher
	Scheduler *watch.Scheduler
	EventSub  *eventsub.Client
}

// NewHandlers creates a Handlers instance bound to the application context.
func NewHandlers(ctx context.Context, d Deps) *Handlers {
	return &Handlers{
		cfg:        d.Cfg,
		db:         d.DB,
		store:      d.Store,
		validator:  d.Validator,
		client:     d.Client,
		watcher:    d.Watcher,
		sched:      d.Scheduler,
		events:     d.EventSub,
		appCtx:     ctx,
		stateStore: make(map[string]time.Time),
	}
}

// StartJobs launches the recurring pipeline: the live poll, the slow token
// revalidation, and the EventSub socket. Safe to call repeatedly; the
// scheduler dedupes by job name.
func (h *Handlers) StartJobs() {
	h.sched.Start(h.appCtx, watch.JobLivePoll, h.cfg.LivePollInterval, func(ctx context.Context) {
		if err := h.watcher.PollOnce(ctx); err != nil {
			slog.Warn("live poll failed", slog.Any("err", err))
		}
	})
	auth.ScheduleRevalidation(h.appCtx, h.sched, h.validator, h.cfg.TokenRevalidateInterval)
	if h.events != nil {
		h.events.Start(h.appCtx)
	}
}

// StopJobs is the teardown path shared by logout and token invalidation.
func (h *Handlers) StopJobs() {
	h.sched.StopAll()
	if h.events != nil {
		h.events.Stop()
	}
	h.watcher.ClearBadge()
}

// handleUnauthorized tears the session down after a 401 observed by a request
// handler.
func (h *Handlers) handleUnauthorized(ctx context.Context) {
	h.StopJobs()
	if err := h.store.ResetSession(ctx); err != nil {
		slog.Error("session reset failed", slog.Any("err", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// cleanExpiredStates removes expired OAuth states. Callers hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for st, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, st)
		}
	}
}

// addOAuthState records a pending OAuth state, bounding the store so a flood
// of /auth/twitch/start requests cannot exhaust memory.
func (h *Handlers) addOAuthState(st string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[st] = expiry
}
