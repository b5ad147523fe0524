// Package testutil provides mock servers and in-memory stores shared by tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer mocks the Twitch Helix and OAuth endpoints used by the service.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a mock server routing by URL path.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockValidateResponse serves /oauth2/validate with a successful introspection.
func (m *MockTwitchServer) MockValidateResponse(clientID, login, userID string, scopes []string, expiresIn int) {
	m.Handlers["/oauth2/validate"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"client_id":  clientID,
			"login":      login,
			"user_id":    userID,
			"scopes":     scopes,
			"expires_in": expiresIn,
		})
	}
}

// MockValidateUnauthorized serves /oauth2/validate with a 401.
func (m *MockTwitchServer) MockValidateUnauthorized() {
	m.Handlers["/oauth2/validate"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]interface{}{"status": 401, "message": "invalid access token"})
	}
}

// MockUsersResponse serves /helix/users.
func (m *MockTwitchServer) MockUsersResponse(users []map[string]string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": users})
	}
}

// MockFollowedStreamsPages serves /helix/streams/followed, walking the given
// pages in order as the caller follows cursors.
func (m *MockTwitchServer) MockFollowedStreamsPages(pages []FollowedStreamsPage) {
	byCursor := make(map[string]FollowedStreamsPage, len(pages))
	for i, p := range pages {
		key := ""
		if i > 0 {
			key = pages[i-1].Cursor
		}
		byCursor[key] = p
	}
	m.Handlers["/helix/streams/followed"] = func(w http.ResponseWriter, r *http.Request) {
		page, ok := byCursor[r.URL.Query().Get("after")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if page.Status != 0 && page.Status != http.StatusOK {
			w.WriteHeader(page.Status)
			return
		}
		writeJSON(w, map[string]interface{}{
			"data":       page.Data,
			"pagination": map[string]string{"cursor": page.Cursor},
		})
	}
}

// FollowedStreamsPage is one page of a paginated followed-streams response.
type FollowedStreamsPage struct {
	Data   []map[string]interface{}
	Cursor string
	Status int // 0 means 200
}

// Stream builds a minimal stream object for mock pages.
func Stream(id, userID, userName, title string) map[string]interface{} {
	return map[string]interface{}{
		"id":            "s-" + id,
		"user_id":       userID,
		"user_login":    userName,
		"user_name":     userName,
		"title":         title,
		"game_name":     "Just Chatting",
		"type":          "live",
		"viewer_count":  42,
		"started_at":    "2024-01-01T10:00:00Z",
		"thumbnail_url": "https://static-cdn.example/preview-{width}x{height}.jpg",
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
