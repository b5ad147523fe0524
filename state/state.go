// Package state persists the viewer session and all user-facing preferences in
// a generic key-value store. Every mutation replaces a key's value wholesale,
// so the live-channel diff always compares a consistent (old, new) pair.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Altoar/twitch-livelist/crypto"
)

// Persisted keys, shared with the companion web app.
const (
	KeyAccessToken         = "twitchAccessToken"
	KeySession             = "twitchData"
	KeyLiveChannels        = "followedLiveChannels"
	KeyDesktopNotify       = "desktopNotifications"
	KeySilentNotify        = "silentNotifications"
	KeyDisabledChannels    = "disabledNotificationChannelIds"
	KeyFavoriteChannels    = "favoriteChannelIds"
	KeyDefaultPage         = "defaultPage"
	KeyBadgeNumberType     = "badgeLiveChannelsNumberType"
	KeyNotifyChannelsType  = "notificationChannelsType"
)

// MaxFavorites bounds the user-curated favorite set.
const MaxFavorites = 100

// ErrFavoriteLimit is returned when adding a favorite beyond MaxFavorites.
var ErrFavoriteLimit = errors.New("favorite channel limit reached")

// KV is the abstract async get/set substrate. db.KV implements it over
// Postgres; tests use an in-memory map.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Viewer is the authenticated user's profile as returned by /helix/users.
type Viewer struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcasterType"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profileImageUrl"`
	OfflineImageURL string `json:"offlineImageUrl"`
	Email           string `json:"email,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

// Session mirrors the token-introspection response plus the resolved viewer.
// A non-nil Session means the token passed validation when it was written.
type Session struct {
	ClientID  string   `json:"clientId"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expiresIn"`
	User      *Viewer  `json:"user,omitempty"`
}

// HasScope reports whether the session carries the given OAuth scope.
func (s *Session) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == scope {
			return true
		}
	}
	return false
}

// NotificationPreferences drives the notifier's suppression policy.
type NotificationPreferences struct {
	DesktopEnabled     bool
	Silent             bool
	DisabledChannelIDs []string
}

var (
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// getEncryptor lazily builds the token encryptor from ENCRYPTION_KEY. When the
// key is unset the access token is stored in plaintext.
func getEncryptor() (crypto.Encryptor, error) {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, access token will be stored in plaintext", slog.String("component", "state"))
			return
		}
		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("err", encryptorErr), slog.String("component", "state"))
			return
		}
		encryptor = enc
		slog.Info("access token encryption enabled (AES-256-GCM)", slog.String("component", "state"))
	})
	return encryptor, encryptorErr
}

// Store is the typed facade over KV.
type Store struct {
	KV KV
}

func NewStore(kv KV) *Store { return &Store{KV: kv} }

// AccessToken returns the stored user token, decrypting it when encryption is
// configured. Missing token yields ("", nil).
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	v, ok, err := s.KV.Get(ctx, KeyAccessToken)
	if err != nil || !ok {
		return "", err
	}
	enc, err := getEncryptor()
	if err != nil {
		return "", err
	}
	if enc == nil {
		return v, nil
	}
	tok, err := crypto.DecryptString(enc, v)
	if err != nil {
		return "", fmt.Errorf("decrypt access token: %w", err)
	}
	return tok, nil
}

// SetAccessToken persists the user token, encrypted when configured.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	enc, err := getEncryptor()
	if err != nil {
		return err
	}
	stored := token
	if enc != nil {
		stored, err = crypto.EncryptString(enc, token)
		if err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
	}
	return s.KV.Set(ctx, KeyAccessToken, stored)
}

// Session returns the persisted session, or nil when logged out.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	v, ok, err := s.KV.Get(ctx, KeySession)
	if err != nil || !ok || v == "" || v == "null" {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(v), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// SetSession replaces the persisted session.
func (s *Store) SetSession(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.KV.Set(ctx, KeySession, string(b))
}

// MergeValidation folds fresh token-introspection fields into the session
// while preserving a previously resolved viewer.
func (s *Store) MergeValidation(ctx context.Context, clientID string, scopes []string, expiresIn int) error {
	sess, err := s.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &Session{}
	}
	sess.ClientID = clientID
	sess.Scopes = scopes
	sess.ExpiresIn = expiresIn
	return s.SetSession(ctx, sess)
}

// SetViewer attaches the resolved viewer to the current session.
func (s *Store) SetViewer(ctx context.Context, v *Viewer) error {
	sess, err := s.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &Session{}
	}
	sess.User = v
	return s.SetSession(ctx, sess)
}

// LoggedIn reports whether a session with a resolved viewer exists.
func (s *Store) LoggedIn(ctx context.Context) (bool, error) {
	sess, err := s.Session(ctx)
	if err != nil {
		return false, err
	}
	return sess != nil && sess.User != nil && sess.User.ID != "", nil
}

// ResetSession clears the token, session and live-channel observation. The
// favorite set is user-curated and survives logout.
func (s *Store) ResetSession(ctx context.Context) error {
	for _, key := range []string{KeyAccessToken, KeySession, KeyLiveChannels} {
		if err := s.KV.Delete(ctx, key); err != nil {
			return fmt.Errorf("reset session: delete %s: %w", key, err)
		}
	}
	return nil
}

// LiveChannelIDs returns the previously observed live-channel-ID sequence.
// (nil, false) means no prior observation.
func (s *Store) LiveChannelIDs(ctx context.Context) ([]string, bool, error) {
	return s.stringSlice(ctx, KeyLiveChannels)
}

// SetLiveChannelIDs replaces the observed live set in one atomic write.
func (s *Store) SetLiveChannelIDs(ctx context.Context, ids []string) error {
	return s.setStringSlice(ctx, KeyLiveChannels, ids)
}

// Preferences assembles the notification policy, applying the given defaults
// for keys the user never touched.
func (s *Store) Preferences(ctx context.Context, defaultDesktop, defaultSilent bool) (NotificationPreferences, error) {
	prefs := NotificationPreferences{DesktopEnabled: defaultDesktop, Silent: defaultSilent}
	if v, ok, err := s.KV.Get(ctx, KeyDesktopNotify); err != nil {
		return prefs, err
	} else if ok {
		prefs.DesktopEnabled = v == "true"
	}
	if v, ok, err := s.KV.Get(ctx, KeySilentNotify); err != nil {
		return prefs, err
	} else if ok {
		prefs.Silent = v == "true"
	}
	disabled, _, err := s.stringSlice(ctx, KeyDisabledChannels)
	if err != nil {
		return prefs, err
	}
	prefs.DisabledChannelIDs = disabled
	return prefs, nil
}

// SetDesktopNotifications toggles the global notification switch.
func (s *Store) SetDesktopNotifications(ctx context.Context, enabled bool) error {
	return s.KV.Set(ctx, KeyDesktopNotify, boolString(enabled))
}

// SetSilentNotifications toggles silent delivery.
func (s *Store) SetSilentNotifications(ctx context.Context, silent bool) error {
	return s.KV.Set(ctx, KeySilentNotify, boolString(silent))
}

// SetDisabledChannelIDs replaces the per-channel mute list.
func (s *Store) SetDisabledChannelIDs(ctx context.Context, ids []string) error {
	return s.setStringSlice(ctx, KeyDisabledChannels, ids)
}

// FavoriteChannelIDs returns the favorite set (possibly empty).
func (s *Store) FavoriteChannelIDs(ctx context.Context) ([]string, error) {
	ids, _, err := s.stringSlice(ctx, KeyFavoriteChannels)
	return ids, err
}

// AddFavorite appends a channel to the favorite set. Adding an existing id is
// a no-op; exceeding MaxFavorites returns ErrFavoriteLimit.
func (s *Store) AddFavorite(ctx context.Context, id string) error {
	ids, err := s.FavoriteChannelIDs(ctx)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	if len(ids) >= MaxFavorites {
		return ErrFavoriteLimit
	}
	return s.setStringSlice(ctx, KeyFavoriteChannels, append(ids, id))
}

// RemoveFavorite drops a channel from the favorite set.
func (s *Store) RemoveFavorite(ctx context.Context, id string) error {
	ids, err := s.FavoriteChannelIDs(ctx)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return s.setStringSlice(ctx, KeyFavoriteChannels, out)
}

// Setting returns a free-form UI setting (defaultPage, badge scope selector,
// notification channel selector). Absent keys yield "".
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	v, _, err := s.KV.Get(ctx, key)
	return v, err
}

// SetSetting stores a free-form UI setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.KV.Set(ctx, key, value)
}

func (s *Store) stringSlice(ctx context.Context, key string) ([]string, bool, error) {
	v, ok, err := s.KV.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(v), &ids); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return ids, true, nil
}

func (s *Store) setStringSlice(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.KV.Set(ctx, key, string(b))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
