package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func staticToken(tok string) TokenSource {
	return func(ctx context.Context) (string, error) { return tok, nil }
}

func TestClientValidate(t *testing.T) {
	tests := []struct {
		response     interface{}
		name         string
		token        string
		errContains  string
		statusCode   int
		wantErr      bool
		wantUnauthed bool
		wantClientID string
	}{
		{
			name:  "valid token",
			token: "good-token",
			response: map[string]interface{}{
				"client_id":  "client-abc",
				"login":      "viewer",
				"user_id":    "u1",
				"scopes":     []string{"user:read:follows"},
				"expires_in": 5000,
			},
			statusCode:   http.StatusOK,
			wantClientID: "client-abc",
		},
		{
			name:         "revoked token",
			token:        "revoked",
			statusCode:   http.StatusUnauthorized,
			wantErr:      true,
			wantUnauthed: true,
		},
		{
			name:        "upstream outage",
			token:       "good-token",
			statusCode:  http.StatusInternalServerError,
			wantErr:     true,
			errContains: "validate token failed",
		},
		{
			name:        "empty token",
			token:       "",
			wantErr:     true,
			errContains: "token empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "OAuth "+tt.token {
					t.Errorf("Authorization header = %q, want %q", got, "OAuth "+tt.token)
				}
				w.WriteHeader(tt.statusCode)
				if tt.response != nil {
					_ = json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			client := &Client{ClientID: "client-abc", TokenSource: staticToken(tt.token), OAuthURL: server.URL}
			res, err := client.Validate(context.Background(), tt.token)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() error = nil, want error")
				}
				if tt.wantUnauthed && !errors.Is(err, ErrUnauthorized) {
					t.Errorf("Validate() error = %v, want ErrUnauthorized", err)
				}
				if !tt.wantUnauthed && errors.Is(err, ErrUnauthorized) {
					t.Errorf("Validate() error = %v, must not be ErrUnauthorized", err)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Validate() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
			if res.ClientID != tt.wantClientID {
				t.Errorf("ClientID = %q, want %q", res.ClientID, tt.wantClientID)
			}
		})
	}
}

func TestClientGetUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("path = %s, want /users", r.URL.Path)
		}
		if got := r.Header.Get("Client-Id"); got != "client-abc" {
			t.Errorf("Client-Id header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"id": "u1", "login": "viewer", "display_name": "Viewer"},
			},
		})
	}))
	defer server.Close()

	client := &Client{ClientID: "client-abc", TokenSource: staticToken("tok"), HelixURL: server.URL}
	users, err := client.GetUsers(context.Background())
	if err != nil {
		t.Fatalf("GetUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" || users[0].DisplayName != "Viewer" {
		t.Fatalf("GetUsers() = %+v", users)
	}
}

func TestClientGetUsersMissingToken(t *testing.T) {
	client := &Client{ClientID: "client-abc", TokenSource: staticToken("")}
	_, err := client.GetUsers(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("GetUsers() with empty token error = %v, want ErrUnauthorized", err)
	}
}
