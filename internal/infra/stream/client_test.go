package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestDeriveChannelIDIsOrderIndependent(t *testing.T) {
	if got := DeriveChannelID(42, 7); got != "match-7-42" {
		t.Fatalf("unexpected channel id: %s", got)
	}
	if DeriveChannelID(7, 42) != DeriveChannelID(42, 7) {
		t.Fatal("channel id must not depend on argument order")
	}
}

func TestServerTokenIsValidHS256(t *testing.T) {
	client, err := New(Config{
		BaseURL:   "http://localhost:1",
		APIKey:    "key",
		APISecret: "secret",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	raw, err := client.ServerToken()
	if err != nil {
		t.Fatalf("server token: %v", err)
	}

	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(func() time.Time {
		return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	}))
	if err != nil || !parsed.Valid {
		t.Fatalf("token must parse with the shared secret: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || claims["server"] != true {
		t.Fatalf("unexpected claims: %+v", parsed.Claims)
	}
}

func TestCreateChannelPostsDerivedID(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("Stream-Auth-Type") != "jwt" {
			t.Errorf("missing auth type header")
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing authorization header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	channelID, err := client.CreateChannel(context.Background(), 42, 7)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if channelID != "match-7-42" {
		t.Fatalf("unexpected channel id: %s", channelID)
	}
	if gotPath != "/channels/messaging/match-7-42/query" {
		t.Fatalf("unexpected path: %s", gotPath)
	}

	data, ok := gotBody["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data payload: %+v", gotBody)
	}
	members, ok := data["members"].([]any)
	if !ok || len(members) != 2 {
		t.Fatalf("unexpected members payload: %+v", data["members"])
	}
}

func TestFreezeChannelSurfacesAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.FreezeChannel(context.Background(), "match-1-2"); err == nil {
		t.Fatal("expected error on provider failure")
	}
}
