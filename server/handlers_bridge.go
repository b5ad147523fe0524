package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Message types accepted on the bridge endpoint. The constants mirror the
// companion web app's message protocol.
const (
	MsgSetAccessToken = "SET_TWITCH_ACCESSTOKEN"
	MsgGetSession     = "GET_TWITCH_DATA"
)

type bridgeMessage struct {
	Type string `json:"type"`
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// HandleMessage is the token hand-off endpoint. The web context posts the
// access token it obtained from the implicit grant; the bridge validates it,
// persists it, resolves the viewer, and starts the background pipeline.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var msg bridgeMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed message")
		return
	}

	switch msg.Type {
	case MsgSetAccessToken:
		h.handleSetToken(w, r, msg.Data.Token)
	case MsgGetSession:
		h.handleGetSession(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown message type")
	}
}

func (h *Handlers) handleSetToken(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	ctx := r.Context()

	// The token goes in before validation writes any session fields, so a
	// failed write can never leave a session record without a usable token.
	// A 401 below cleans the stored token back up via the session reset.
	if err := h.store.SetAccessToken(ctx, token); err != nil {
		writeError(w, http.StatusInternalServerError, "persist token")
		return
	}

	ok, err := h.validator.Validate(ctx, token)
	if err != nil {
		writeError(w, http.StatusBadGateway, "token validation unavailable")
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "invalid_token"})
		return
	}

	viewer, err := h.validator.ResolveUser(ctx)
	if err != nil {
		slog.Warn("viewer resolution failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "user resolution failed")
		return
	}

	h.StartJobs()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "user": viewer})
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Session(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load session")
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": sess.User != nil, "session": sess})
}

// HandleLogout clears the session and stops every background job.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	h.StopJobs()
	if err := h.store.ResetSession(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reset session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTwitchOAuthStart redirects to the Twitch authorize page using the
// implicit grant: the token comes back in the redirect fragment, is picked up
// by the web context, and arrives here via HandleMessage.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwitchClientID == "" || h.cfg.TwitchRedirectURI == "" {
		writeError(w, http.StatusBadRequest, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)")
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		writeError(w, http.StatusInternalServerError, "state gen error")
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))

	conf := &oauth2.Config{
		ClientID:    h.cfg.TwitchClientID,
		RedirectURL: h.cfg.TwitchRedirectURI,
		Scopes:      strings.Fields(h.cfg.TwitchScopes),
		Endpoint: oauth2.Endpoint{
			AuthURL: "https://id.twitch.tv/oauth2/authorize",
		},
	}
	authURL := conf.AuthCodeURL(st, oauth2.SetAuthURLParam("response_type", "token"))
	http.Redirect(w, r, authURL, http.StatusFound)
}
