package watch

// Diff returns the channel IDs present in next but not in prev, excluding any
// muted IDs. Detection is exact-set-based, so pagination reordering between
// polls never produces a false "went live". Output preserves next's order;
// callers must not rely on it.
func Diff(prev, next, disabled []string) []string {
	prevSet := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	disabledSet := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		disabledSet[id] = struct{}{}
	}
	var wentLive []string
	seen := make(map[string]struct{}, len(next))
	for _, id := range next {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := prevSet[id]; ok {
			continue
		}
		if _, muted := disabledSet[id]; muted {
			continue
		}
		wentLive = append(wentLive, id)
	}
	return wentLive
}

// Badge scopes select which channels count toward the toolbar badge.
const (
	BadgeScopeFollowed  = "followed"
	BadgeScopeFavorited = "favorited"
	BadgeScopeBoth      = "both"
)

// BadgeCount returns the badge number for the given scope: all live followed
// channels, or only the live favorites. "both" counts the same as followed
// because favorites are always a subset of follows.
func BadgeCount(liveIDs, favoriteIDs []string, scope string) int {
	switch scope {
	case BadgeScopeFavorited:
		favs := make(map[string]struct{}, len(favoriteIDs))
		for _, id := range favoriteIDs {
			favs[id] = struct{}{}
		}
		n := 0
		for _, id := range liveIDs {
			if _, ok := favs[id]; ok {
				n++
			}
		}
		return n
	default: // followed, both
		return len(liveIDs)
	}
}
