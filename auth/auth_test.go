package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/testutil"
	"github.com/Altoar/twitch-livelist/twitchapi"
	"github.com/Altoar/twitch-livelist/watch"
)

func newValidator(t *testing.T, mock *testutil.MockTwitchServer) (*Validator, *state.Store) {
	t.Helper()
	store := state.NewStore(testutil.NewMemKV())
	client := &twitchapi.Client{
		ClientID:    "client-abc",
		TokenSource: store.AccessToken,
		HelixURL:    mock.URL + "/helix",
		OAuthURL:    mock.URL,
	}
	return &Validator{Client: client, Store: store}, store
}

func TestValidateSuccessPersistsSession(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockValidateResponse("client-abc", "viewer", "u1", []string{"user:read:email", "user:read:follows"}, 4800)
	v, store := newValidator(t, mock)

	ok, err := v.Validate(ctx, "fresh-token")
	if err != nil || !ok {
		t.Fatalf("Validate() = (%v, %v), want (true, nil)", ok, err)
	}
	sess, err := store.Session(ctx)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: (%v, %v)", sess, err)
	}
	if sess.ClientID != "client-abc" || sess.ExpiresIn != 4800 {
		t.Errorf("session = %+v", sess)
	}
}

func TestValidateUnauthorizedResetsEverything(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockValidateUnauthorized()
	v, store := newValidator(t, mock)

	if err := store.SetAccessToken(ctx, "revoked"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSession(ctx, &state.Session{ClientID: "client-abc", User: &state.Viewer{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLiveChannelIDs(ctx, []string{"1"}); err != nil {
		t.Fatal(err)
	}

	torn := false
	v.OnInvalid = func() { torn = true }

	ok, err := v.Validate(ctx, "")
	if err != nil || ok {
		t.Fatalf("Validate() = (%v, %v), want (false, nil)", ok, err)
	}
	if !torn {
		t.Error("OnInvalid not called")
	}
	if sess, _ := store.Session(ctx); sess != nil {
		t.Errorf("session survived 401: %+v", sess)
	}
	if _, present, _ := store.LiveChannelIDs(ctx); present {
		t.Error("live set survived 401")
	}
}

func TestValidateMissingScopeTreatedAsInvalid(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockValidateResponse("client-abc", "viewer", "u1", []string{"user:read:email"}, 4800)
	v, store := newValidator(t, mock)

	if err := store.SetSession(ctx, &state.Session{ClientID: "client-abc"}); err != nil {
		t.Fatal(err)
	}

	ok, err := v.Validate(ctx, "scopeless-token")
	if err != nil || ok {
		t.Fatalf("Validate() = (%v, %v), want (false, nil)", ok, err)
	}
	if sess, _ := store.Session(ctx); sess != nil {
		t.Errorf("session survived missing scope: %+v", sess)
	}
}

func TestValidateTransientFailureLeavesSession(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	// No /oauth2/validate handler registered: the mock answers 404, a non-401 failure.
	v, store := newValidator(t, mock)

	if err := store.SetSession(ctx, &state.Session{ClientID: "client-abc", User: &state.Viewer{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}

	ok, err := v.Validate(ctx, "token")
	if err == nil || ok {
		t.Fatalf("Validate() = (%v, %v), want transient error", ok, err)
	}
	sess, _ := store.Session(ctx)
	if sess == nil || sess.User == nil || sess.User.ID != "u1" {
		t.Errorf("session damaged by transient failure: %+v", sess)
	}
}

func TestValidateNoTokenIsNotAnError(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	v, _ := newValidator(t, mock)

	ok, err := v.Validate(context.Background(), "")
	if err != nil || ok {
		t.Fatalf("Validate() with no token = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsersResponse([]map[string]string{{
		"id":           "u1",
		"login":        "viewer",
		"display_name": "Viewer",
		"created_at":   "2020-05-01T00:00:00Z",
	}})
	v, store := newValidator(t, mock)
	if err := store.SetAccessToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}

	viewer, err := v.ResolveUser(ctx)
	if err != nil {
		t.Fatalf("ResolveUser() error = %v", err)
	}
	if viewer.ID != "u1" || viewer.DisplayName != "Viewer" {
		t.Fatalf("viewer = %+v", viewer)
	}
	loggedIn, _ := store.LoggedIn(ctx)
	if !loggedIn {
		t.Error("viewer not attached to session")
	}
}

func TestScheduleRevalidationRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockValidateResponse("client-abc", "viewer", "u1", []string{"user:read:follows"}, 4800)
	v, store := newValidator(t, mock)
	if err := store.SetAccessToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}

	sched := watch.NewScheduler()
	defer sched.StopAll()
	ScheduleRevalidation(ctx, sched, v, time.Hour)

	if !sched.Running(watch.JobRevalidate) {
		t.Fatal("revalidation job not registered")
	}
	// The scheduler runs the job once up front: the refreshed session appears
	// without waiting for a tick.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess, _ := store.Session(ctx); sess != nil && sess.ClientID == "client-abc" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session not refreshed by the immediate revalidation run")
}

func TestResolveUserEmptyResultIsSoftFailure(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsersResponse(nil)
	v, store := newValidator(t, mock)
	if err := store.SetAccessToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSession(ctx, &state.Session{ClientID: "c"}); err != nil {
		t.Fatal(err)
	}

	_, err := v.ResolveUser(ctx)
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("ResolveUser() error = %v, want ErrNoUser", err)
	}
	sess, _ := store.Session(ctx)
	if sess == nil || sess.User != nil {
		t.Errorf("state mutated on empty result: %+v", sess)
	}
}
