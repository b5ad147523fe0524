package watch

import "sync"

// FetchStatus tracks one paginated operation's lifecycle.
type FetchStatus string

const (
	StatusIdle    FetchStatus = "idle"
	StatusLoading FetchStatus = "loading"
	StatusError   FetchStatus = "error"
	StatusSuccess FetchStatus = "success"
)

// Fetch kinds guarded by the status board.
const (
	KindFollowedLive  = "followed-live"
	KindFollowedList  = "followed-list"
	KindTopStreams    = "top-streams"
	KindTopCategories = "top-categories"
)

// StatusBoard is the advisory lock over fetch kinds: a fetch must not start
// while the same kind is loading. Callers check-and-skip rather than queue, so
// a tick that lands mid-flight is silently dropped.
type StatusBoard struct {
	mu       sync.Mutex
	statuses map[string]FetchStatus
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]FetchStatus)}
}

// TryBegin transitions kind to loading unless it already is; returns whether
// the caller may proceed.
func (b *StatusBoard) TryBegin(kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statuses[kind] == StatusLoading {
		return false
	}
	b.statuses[kind] = StatusLoading
	return true
}

// Finish records the outcome of a fetch started with TryBegin.
func (b *StatusBoard) Finish(kind string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.statuses[kind] = StatusSuccess
	} else {
		b.statuses[kind] = StatusError
	}
}

// Get returns the current status of kind (idle when never started).
func (b *StatusBoard) Get(kind string) FetchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.statuses[kind]; ok {
		return s
	}
	return StatusIdle
}

// Snapshot returns a copy of all statuses for the /status endpoint.
func (b *StatusBoard) Snapshot() map[string]FetchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]FetchStatus, len(b.statuses))
	for k, v := range b.statuses {
		out[k] = v
	}
	return out
}
