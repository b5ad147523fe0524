package watch

import "testing"

func TestStatusBoardLifecycle(t *testing.T) {
	b := NewStatusBoard()

	if got := b.Get(KindFollowedLive); got != StatusIdle {
		t.Fatalf("initial status = %s, want idle", got)
	}

	if !b.TryBegin(KindFollowedLive) {
		t.Fatal("TryBegin on idle kind = false")
	}
	if got := b.Get(KindFollowedLive); got != StatusLoading {
		t.Fatalf("status after begin = %s, want loading", got)
	}

	// A second begin while loading must be refused, not queued.
	if b.TryBegin(KindFollowedLive) {
		t.Fatal("TryBegin while loading = true")
	}

	// Other kinds are independent.
	if !b.TryBegin(KindTopStreams) {
		t.Fatal("TryBegin on unrelated kind = false")
	}

	b.Finish(KindFollowedLive, true)
	if got := b.Get(KindFollowedLive); got != StatusSuccess {
		t.Fatalf("status after success = %s", got)
	}
	if !b.TryBegin(KindFollowedLive) {
		t.Fatal("TryBegin after finish = false")
	}
	b.Finish(KindFollowedLive, false)
	if got := b.Get(KindFollowedLive); got != StatusError {
		t.Fatalf("status after failure = %s", got)
	}
}

func TestStatusBoardSnapshot(t *testing.T) {
	b := NewStatusBoard()
	b.TryBegin(KindFollowedList)
	b.Finish(KindFollowedList, true)
	b.TryBegin(KindTopCategories)

	snap := b.Snapshot()
	if snap[KindFollowedList] != StatusSuccess {
		t.Errorf("snapshot[%s] = %s", KindFollowedList, snap[KindFollowedList])
	}
	if snap[KindTopCategories] != StatusLoading {
		t.Errorf("snapshot[%s] = %s", KindTopCategories, snap[KindTopCategories])
	}

	// The snapshot is a copy, not a view.
	snap[KindFollowedList] = StatusError
	if b.Get(KindFollowedList) != StatusSuccess {
		t.Error("mutating snapshot leaked into the board")
	}
}
