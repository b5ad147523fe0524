package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/twitchapi"
	"github.com/Altoar/twitch-livelist/watch"
)

// HandleLive returns the live set from the most recent successful poll.
func (h *Handlers) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  h.watcher.LiveStreams(),
		"badge": h.watcher.Badge(),
	})
}

// followedEntry is a followed channel enriched with the viewer's per-channel
// preferences.
type followedEntry struct {
	twitchapi.FollowedChannel
	NotificationsDisabled bool `json:"notificationsDisabled"`
	Favorite              bool `json:"favorite"`
}

// HandleFollowed fetches the full followed-channel list. The fetch shares the
// status board's check-and-skip discipline: a request that lands while
// another one is paginating gets a 409 instead of a duplicate fetch.
func (h *Handlers) HandleFollowed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.store.Session(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load session")
		return
	}
	if sess == nil || sess.User == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if !h.watcher.Board.TryBegin(watch.KindFollowedList) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "loading"})
		return
	}

	channels, err := h.client.FetchAllFollowedChannels(ctx, sess.User.ID)
	if err != nil {
		h.watcher.Board.Finish(watch.KindFollowedList, false)
		if errors.Is(err, twitchapi.ErrUnauthorized) {
			h.handleUnauthorized(ctx)
			writeError(w, http.StatusUnauthorized, "token invalid")
			return
		}
		writeError(w, http.StatusBadGateway, "followed channels fetch failed")
		return
	}
	h.watcher.Board.Finish(watch.KindFollowedList, true)

	prefs, err := h.store.Preferences(ctx, h.cfg.DesktopNotifications, h.cfg.SilentNotifications)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load preferences")
		return
	}
	favorites, err := h.store.FavoriteChannelIDs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load favorites")
		return
	}
	disabled := make(map[string]struct{}, len(prefs.DisabledChannelIDs))
	for _, id := range prefs.DisabledChannelIDs {
		disabled[id] = struct{}{}
	}
	favs := make(map[string]struct{}, len(favorites))
	for _, id := range favorites {
		favs[id] = struct{}{}
	}

	entries := make([]followedEntry, 0, len(channels))
	for _, ch := range channels {
		_, dis := disabled[ch.ID]
		_, fav := favs[ch.ID]
		entries = append(entries, followedEntry{
			FollowedChannel:       ch,
			NotificationsDisabled: dis,
			Favorite:              fav,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// HandleTopStreams proxies the top-streams browse surface with cursor
// pagination passed through to the caller.
func (h *Handlers) HandleTopStreams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	first, _ := strconv.Atoi(q.Get("first"))
	if !h.watcher.Board.TryBegin(watch.KindTopStreams) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "loading"})
		return
	}
	streams, cursor, err := h.client.GetTopStreams(r.Context(), first, q.Get("after"), q.Get("game_id"), q.Get("language"))
	if err != nil {
		h.watcher.Board.Finish(watch.KindTopStreams, false)
		if errors.Is(err, twitchapi.ErrUnauthorized) {
			h.handleUnauthorized(r.Context())
			writeError(w, http.StatusUnauthorized, "token invalid")
			return
		}
		writeError(w, http.StatusBadGateway, "top streams fetch failed")
		return
	}
	h.watcher.Board.Finish(watch.KindTopStreams, true)
	writeJSON(w, http.StatusOK, map[string]any{"data": streams, "cursor": cursor})
}

// HandleTopCategories returns the top 100 categories.
func (h *Handlers) HandleTopCategories(w http.ResponseWriter, r *http.Request) {
	if !h.watcher.Board.TryBegin(watch.KindTopCategories) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "loading"})
		return
	}
	cats, err := h.client.GetTopCategories(r.Context())
	if err != nil {
		h.watcher.Board.Finish(watch.KindTopCategories, false)
		if errors.Is(err, twitchapi.ErrUnauthorized) {
			h.handleUnauthorized(r.Context())
			writeError(w, http.StatusUnauthorized, "token invalid")
			return
		}
		writeError(w, http.StatusBadGateway, "top categories fetch failed")
		return
	}
	h.watcher.Board.Finish(watch.KindTopCategories, true)
	writeJSON(w, http.StatusOK, map[string]any{"data": cats})
}

// HandleFavorites serves GET /api/favorites.
func (h *Handlers) HandleFavorites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	ids, err := h.store.FavoriteChannelIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load favorites")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ids, "limit": state.MaxFavorites})
}

// HandleFavoriteByID serves PUT/DELETE /api/favorites/{id}.
func (h *Handlers) HandleFavoriteByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/favorites/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing channel id")
		return
	}
	switch r.Method {
	case http.MethodPut:
		if err := h.store.AddFavorite(r.Context(), id); err != nil {
			if errors.Is(err, state.ErrFavoriteLimit) {
				writeError(w, http.StatusConflict, "favorite limit reached")
				return
			}
			writeError(w, http.StatusInternalServerError, "add favorite")
			return
		}
	case http.MethodDelete:
		if err := h.store.RemoveFavorite(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "remove favorite")
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "PUT or DELETE only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// notificationUpdate uses pointers so an absent field leaves the stored
// preference alone.
type notificationUpdate struct {
	Desktop            *bool     `json:"desktop"`
	Silent             *bool     `json:"silent"`
	DisabledChannelIDs *[]string `json:"disabledChannelIds"`
}

// HandleNotifications serves GET and PUT /api/notifications.
func (h *Handlers) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var upd notificationUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body")
			return
		}
		if upd.Desktop != nil {
			if err := h.store.SetDesktopNotifications(ctx, *upd.Desktop); err != nil {
				writeError(w, http.StatusInternalServerError, "persist preference")
				return
			}
		}
		if upd.Silent != nil {
			if err := h.store.SetSilentNotifications(ctx, *upd.Silent); err != nil {
				writeError(w, http.StatusInternalServerError, "persist preference")
				return
			}
		}
		if upd.DisabledChannelIDs != nil {
			if err := h.store.SetDisabledChannelIDs(ctx, *upd.DisabledChannelIDs); err != nil {
				writeError(w, http.StatusInternalServerError, "persist preference")
				return
			}
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or PUT only")
		return
	}

	prefs, err := h.store.Preferences(ctx, h.cfg.DesktopNotifications, h.cfg.SilentNotifications)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load preferences")
		return
	}
	if prefs.DisabledChannelIDs == nil {
		prefs.DisabledChannelIDs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"desktop":            prefs.DesktopEnabled,
		"silent":             prefs.Silent,
		"disabledChannelIds": prefs.DisabledChannelIDs,
	})
}
