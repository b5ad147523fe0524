// Package watch runs the live-channel pipeline: fetch the followed live set,
// diff it against the previous observation, persist the new set, update the
// badge count, and fan out notifications for channels that newly went live.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Altoar/twitch-livelist/notify"
	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/telemetry"
	"github.com/Altoar/twitch-livelist/twitchapi"
)

// Watcher drives one poll cycle end to end. The stream detail map lives only
// inside the cycle that fetched it and is passed explicitly into notification
// building; only the ID sequence is persisted.
type Watcher struct {
	Client *twitchapi.Client
	Store  *state.Store
	Notify notify.Notifier
	Board  *StatusBoard

	// Defaults applied when the user never touched the persisted preference.
	DefaultDesktop bool
	DefaultSilent  bool
	BadgeScope     string

	// OnInvalid runs after a 401 destroyed the session (stop timers, clear badge).
	OnInvalid func()

	mu         sync.Mutex
	badge      int
	liveCached []twitchapi.Stream
}

// PollOnce executes one fetch→diff→persist→notify cycle. A cycle that lands
// while the previous one is still in flight is dropped, not queued. Transient
// fetch failures flip the status to error and are retried on the next tick.
func (w *Watcher) PollOnce(ctx context.Context) error {
	loggedIn, err := w.Store.LoggedIn(ctx)
	if err != nil {
		return err
	}
	if !loggedIn {
		slog.Debug("poll skipped: not logged in")
		return nil
	}
	if !w.Board.TryBegin(KindFollowedLive) {
		slog.Debug("poll skipped: previous fetch still in flight")
		return nil
	}
	if telemetry.PollCycles != nil {
		telemetry.PollCycles.Inc()
	}

	sess, err := w.Store.Session(ctx)
	if err != nil {
		w.Board.Finish(KindFollowedLive, false)
		return err
	}

	streams, err := w.Client.FetchAllFollowedStreams(ctx, sess.User.ID)
	if err != nil {
		w.Board.Finish(KindFollowedLive, false)
		if telemetry.FetchErrors != nil {
			telemetry.FetchErrors.WithLabelValues(KindFollowedLive).Inc()
		}
		if errors.Is(err, twitchapi.ErrUnauthorized) {
			slog.Warn("poll unauthorized, resetting session")
			if telemetry.SessionResets != nil {
				telemetry.SessionResets.Inc()
			}
			if rerr := w.Store.ResetSession(ctx); rerr != nil {
				return fmt.Errorf("reset after 401: %w", rerr)
			}
			if w.OnInvalid != nil {
				w.OnInvalid()
			}
			return nil
		}
		return fmt.Errorf("fetch followed streams: %w", err)
	}

	newIDs := make([]string, 0, len(streams))
	detail := make(map[string]twitchapi.Stream, len(streams))
	for _, s := range streams {
		newIDs = append(newIDs, s.UserID)
		detail[s.UserID] = s
	}

	prevIDs, observed, err := w.Store.LiveChannelIDs(ctx)
	if err != nil {
		w.Board.Finish(KindFollowedLive, false)
		return err
	}

	prefs, err := w.Store.Preferences(ctx, w.DefaultDesktop, w.DefaultSilent)
	if err != nil {
		w.Board.Finish(KindFollowedLive, false)
		return err
	}

	// Persist before notifying: a crash mid-fanout must not replay the same
	// "went live" events on restart.
	if err := w.Store.SetLiveChannelIDs(ctx, newIDs); err != nil {
		w.Board.Finish(KindFollowedLive, false)
		return fmt.Errorf("persist live set: %w", err)
	}
	w.Board.Finish(KindFollowedLive, true)

	w.updateBadge(ctx, newIDs, streams)

	// The very first observation (absent or empty previous set) would flood the
	// desktop with one notification per already-live channel.
	initial := !observed || len(prevIDs) == 0
	if initial {
		slog.Info("initial live-set observation", slog.Int("live", len(newIDs)))
		return nil
	}

	wentLive := Diff(prevIDs, newIDs, prefs.DisabledChannelIDs)
	if !prefs.DesktopEnabled || len(wentLive) == 0 {
		return nil
	}
	for _, id := range wentLive {
		s, ok := detail[id]
		if !ok {
			continue
		}
		n := notify.LiveNotification(s.UserName, s.Title, s.ThumbnailURL, prefs.Silent)
		if err := w.Notify.Notify(ctx, n); err != nil {
			slog.Warn("notification delivery failed", slog.Any("err", err), slog.String("channel", s.UserName))
			continue
		}
		if telemetry.NotificationsEmitted != nil {
			telemetry.NotificationsEmitted.Inc()
		}
	}
	slog.Info("poll cycle complete", slog.Int("live", len(newIDs)), slog.Int("went_live", len(wentLive)))
	return nil
}

// OnStreamOnline handles a push-based "stream went live" event from EventSub.
// It applies the same notification policy as the poller, then kicks an
// out-of-cycle poll so the persisted set and badge catch up. The event carries
// no stream detail beyond the broadcaster, so the body stays empty.
func (w *Watcher) OnStreamOnline(ctx context.Context, broadcasterID, displayName string) {
	defer func() {
		go func() {
			if err := w.PollOnce(ctx); err != nil {
				slog.Warn("reconcile poll after eventsub event failed", slog.Any("err", err))
			}
		}()
	}()

	// EventSub delivers at-least-once. A broadcaster already in the observed
	// live set was notified by the poller (or an earlier delivery); only a
	// genuinely new appearance gets a notification.
	liveIDs, _, err := w.Store.LiveChannelIDs(ctx)
	if err != nil {
		slog.Warn("eventsub live-set load failed", slog.Any("err", err))
		return
	}
	for _, id := range liveIDs {
		if id == broadcasterID {
			slog.Debug("eventsub event for already-live channel", slog.String("channel", displayName))
			return
		}
	}

	prefs, err := w.Store.Preferences(ctx, w.DefaultDesktop, w.DefaultSilent)
	if err != nil {
		slog.Warn("eventsub preferences load failed", slog.Any("err", err))
		return
	}
	if !prefs.DesktopEnabled {
		return
	}
	for _, disabled := range prefs.DisabledChannelIDs {
		if disabled == broadcasterID {
			return
		}
	}
	n := notify.LiveNotification(displayName, "", "", prefs.Silent)
	if err := w.Notify.Notify(ctx, n); err != nil {
		slog.Warn("notification delivery failed", slog.Any("err", err), slog.String("channel", displayName))
		return
	}
	if telemetry.NotificationsEmitted != nil {
		telemetry.NotificationsEmitted.Inc()
	}
}

// Badge returns the current badge count for the configured scope.
func (w *Watcher) Badge() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.badge
}

// LiveStreams returns the live set from the most recent successful poll.
// It is transient by design: empty after a restart until the next cycle.
func (w *Watcher) LiveStreams() []twitchapi.Stream {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]twitchapi.Stream, len(w.liveCached))
	copy(out, w.liveCached)
	return out
}

// ClearBadge zeroes the badge, part of session teardown.
func (w *Watcher) ClearBadge() {
	w.mu.Lock()
	w.badge = 0
	w.liveCached = nil
	w.mu.Unlock()
	if telemetry.BadgeCountGauge != nil {
		telemetry.BadgeCountGauge.Set(0)
	}
	if telemetry.LiveChannelsGauge != nil {
		telemetry.LiveChannelsGauge.Set(0)
	}
}

func (w *Watcher) updateBadge(ctx context.Context, liveIDs []string, streams []twitchapi.Stream) {
	favorites, err := w.Store.FavoriteChannelIDs(ctx)
	if err != nil {
		slog.Warn("favorite load failed for badge", slog.Any("err", err))
	}
	// The persisted UI setting wins over the configured default.
	scope := w.BadgeScope
	if v, err := w.Store.Setting(ctx, state.KeyBadgeNumberType); err == nil && v != "" {
		scope = v
	}
	badge := BadgeCount(liveIDs, favorites, scope)
	w.mu.Lock()
	w.badge = badge
	w.liveCached = streams
	w.mu.Unlock()
	if telemetry.LiveChannelsGauge != nil {
		telemetry.LiveChannelsGauge.Set(float64(len(liveIDs)))
	}
	if telemetry.BadgeCountGauge != nil {
		telemetry.BadgeCountGauge.Set(float64(badge))
	}
}
