package twitchapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// maxPageIterations caps the cursor-following loop. Twitch signals end-of-list
// by omitting the cursor; the cap only guards against an upstream that never does.
const maxPageIterations = 1000

// Stream is one live channel from /streams or /streams/followed.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Tags         []string  `json:"tags"`
	IsMature     bool      `json:"is_mature"`
}

// Category is one game/category from /games/top.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
	IGDBID    string `json:"igdb_id,omitempty"`
}

// FollowedChannel is a follow relationship enriched with profile data.
type FollowedChannel struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
	BroadcasterType string `json:"broadcasterType"`
	FollowedAt      string `json:"followedAt"`
}

type streamsPage struct {
	Data       []Stream `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// FetchAllFollowedStreams walks /streams/followed for userID, following the
// pagination cursor with first=100 until it is absent. Any failure discards
// the partially accumulated pages; the caller never sees a partial result.
func (c *Client) FetchAllFollowedStreams(ctx context.Context, userID string) ([]Stream, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID empty")
	}
	var all []Stream
	after := ""
	for i := 0; ; i++ {
		if i >= maxPageIterations {
			return nil, fmt.Errorf("followed streams pagination did not terminate after %d pages", maxPageIterations)
		}
		q := url.Values{}
		q.Set("user_id", userID)
		q.Set("first", "100")
		if after != "" {
			q.Set("after", after)
		}
		var page streamsPage
		if err := c.getHelix(ctx, "/streams/followed", q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.Pagination.Cursor == "" {
			return all, nil
		}
		after = page.Pagination.Cursor
	}
}

// FetchAllFollowedChannels walks /channels/followed and enriches each follow
// with the broadcaster's profile image and type from /users.
func (c *Client) FetchAllFollowedChannels(ctx context.Context, userID string) ([]FollowedChannel, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID empty")
	}
	var all []FollowedChannel
	after := ""
	for i := 0; ; i++ {
		if i >= maxPageIterations {
			return nil, fmt.Errorf("followed channels pagination did not terminate after %d pages", maxPageIterations)
		}
		q := url.Values{}
		q.Set("user_id", userID)
		q.Set("first", "100")
		if after != "" {
			q.Set("after", after)
		}
		var page struct {
			Data []struct {
				BroadcasterID    string `json:"broadcaster_id"`
				BroadcasterLogin string `json:"broadcaster_login"`
				BroadcasterName  string `json:"broadcaster_name"`
				FollowedAt       string `json:"followed_at"`
			} `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := c.getHelix(ctx, "/channels/followed", q, &page); err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(page.Data))
		for _, ch := range page.Data {
			ids = append(ids, ch.BroadcasterID)
		}
		profiles := map[string]User{}
		if len(ids) > 0 {
			users, err := c.GetUsers(ctx, ids...)
			if err != nil {
				return nil, err
			}
			for _, u := range users {
				profiles[u.ID] = u
			}
		}
		for _, ch := range page.Data {
			all = append(all, FollowedChannel{
				ID:              ch.BroadcasterID,
				Login:           ch.BroadcasterLogin,
				DisplayName:     ch.BroadcasterName,
				ProfileImageURL: profiles[ch.BroadcasterID].ProfileImageURL,
				BroadcasterType: profiles[ch.BroadcasterID].BroadcasterType,
				FollowedAt:      ch.FollowedAt,
			})
		}
		if page.Pagination.Cursor == "" {
			return all, nil
		}
		after = page.Pagination.Cursor
	}
}

// GetTopStreams returns one page of /streams ordered by viewer count, plus the
// next cursor. gameID and language filter when non-empty.
func (c *Client) GetTopStreams(ctx context.Context, first int, after, gameID, language string) ([]Stream, string, error) {
	if first <= 0 {
		first = 30
	}
	q := url.Values{}
	q.Set("first", strconv.Itoa(first))
	if after != "" {
		q.Set("after", after)
	}
	if gameID != "" {
		q.Set("game_id", gameID)
	}
	if language != "" {
		q.Set("language", language)
	}
	var page streamsPage
	if err := c.getHelix(ctx, "/streams", q, &page); err != nil {
		return nil, "", err
	}
	return page.Data, page.Pagination.Cursor, nil
}

// GetTopCategories returns the top 100 games/categories.
func (c *Client) GetTopCategories(ctx context.Context) ([]Category, error) {
	q := url.Values{}
	q.Set("first", "100")
	var body struct {
		Data []Category `json:"data"`
	}
	if err := c.getHelix(ctx, "/games/top", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
