// Package auth owns the token lifecycle: introspection against id.twitch.tv,
// required-scope enforcement, viewer resolution, and the slow-cadence
// revalidation job. A 401 or a missing required scope destroys the session;
// transient failures leave it untouched so an outage never logs the user out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/telemetry"
	"github.com/Altoar/twitch-livelist/twitchapi"
	"github.com/Altoar/twitch-livelist/watch"
)

// RequiredScope is the OAuth scope without which the pipeline cannot work.
const RequiredScope = "user:read:follows"

// ErrNoUser is returned when the users endpoint yields zero records. It is a
// soft failure: no state is mutated.
var ErrNoUser = errors.New("auth: no user record returned")

// Validator checks stored or handed-off tokens and maintains the session.
type Validator struct {
	Client *twitchapi.Client
	Store  *state.Store

	// OnInvalid runs after a destructive reset (stop timers, clear badge).
	OnInvalid func()
}

// Validate introspects token (the stored one when empty). It returns true when
// the token is valid and carries RequiredScope; in that case the refreshed
// session fields are persisted before returning. A 401 or missing scope resets
// all session state and returns (false, nil); transient failures return an
// error with the session left intact.
func (v *Validator) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		stored, err := v.Store.AccessToken(ctx)
		if err != nil {
			return false, fmt.Errorf("load stored token: %w", err)
		}
		token = stored
	}
	if token == "" {
		return false, nil
	}

	if telemetry.TokenValidations != nil {
		telemetry.TokenValidations.Inc()
	}
	res, err := v.Client.Validate(ctx, token)
	if errors.Is(err, twitchapi.ErrUnauthorized) {
		slog.Warn("token invalid, resetting session")
		return false, v.reset(ctx)
	}
	if err != nil {
		return false, err
	}

	if !hasScope(res.Scopes, RequiredScope) {
		slog.Warn("token lacks required scope, resetting session", slog.String("scope", RequiredScope))
		return false, v.reset(ctx)
	}

	if err := v.Store.MergeValidation(ctx, res.ClientID, res.Scopes, res.ExpiresIn); err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}
	return true, nil
}

// ResolveUser fetches the authenticated viewer and attaches it to the session.
// Zero user records is a soft failure (ErrNoUser) with no state mutation.
func (v *Validator) ResolveUser(ctx context.Context) (*state.Viewer, error) {
	users, err := v.Client.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNoUser
	}
	u := users[0]
	viewer := &state.Viewer{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		Type:            u.Type,
		BroadcasterType: u.BroadcasterType,
		Description:     u.Description,
		ProfileImageURL: u.ProfileImageURL,
		OfflineImageURL: u.OfflineImageURL,
		Email:           u.Email,
		CreatedAt:       u.CreatedAt,
	}
	if err := v.Store.SetViewer(ctx, viewer); err != nil {
		return nil, fmt.Errorf("persist viewer: %w", err)
	}
	return viewer, nil
}

func (v *Validator) reset(ctx context.Context) error {
	if telemetry.SessionResets != nil {
		telemetry.SessionResets.Inc()
	}
	if err := v.Store.ResetSession(ctx); err != nil {
		return err
	}
	if v.OnInvalid != nil {
		v.OnInvalid()
	}
	return nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// ScheduleRevalidation registers the slow-cadence revalidation timer on the
// shared scheduler. Transient failures are logged and retried next wake-up.
func ScheduleRevalidation(ctx context.Context, sched *watch.Scheduler, v *Validator, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Minute
	}
	sched.Start(ctx, watch.JobRevalidate, interval, func(jctx context.Context) {
		vctx, cancel := context.WithTimeout(jctx, 30*time.Second)
		defer cancel()
		ok, err := v.Validate(vctx, "")
		switch {
		case err != nil:
			slog.Warn("token revalidation failed", slog.Any("err", err))
		case !ok:
			slog.Info("token revalidation: no valid session")
		default:
			slog.Debug("token revalidated")
		}
	})
}
