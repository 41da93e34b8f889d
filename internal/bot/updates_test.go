package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewTelegramUpdates_NoToken(t *testing.T) {
	if _, err := NewTelegramUpdates("", "", 30*time.Second); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestTelegramUpdates_GetUpdates(t *testing.T) {
	var gotPath, gotOffset, gotTimeout string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOffset = r.URL.Query().Get("offset")
		gotTimeout = r.URL.Query().Get("timeout")
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":41,"message":{"chat":{"id":-1001234567890},"from":{"username":"trader"},"text":"/signals"}},
			{"update_id":42,"message":{"chat":{"id":777},"sticker":{}}}
		]}`))
	}))
	defer srv.Close()

	src, err := NewTelegramUpdates(srv.URL, "TOKEN", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	updates, err := src.GetUpdates(context.Background(), 41, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/botTOKEN/getUpdates" || gotOffset != "41" || gotTimeout != "30" {
		t.Errorf("request = %s offset=%s timeout=%s", gotPath, gotOffset, gotTimeout)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if u := updates[0]; u.ID != 41 || u.ChatID != "-1001234567890" || u.Text != "/signals" || u.From != "trader" {
		t.Errorf("unexpected first update: %+v", u)
	}
	if u := updates[1]; u.ID != 42 || u.Text != "" {
		t.Errorf("unexpected second update: %+v", u)
	}
}

func TestTelegramUpdates_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	src, _ := NewTelegramUpdates(srv.URL, "BAD", time.Second)
	if _, err := src.GetUpdates(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestParseUpdates_NotOK(t *testing.T) {
	if _, err := parseUpdates([]byte(`{"ok":false,"description":"Conflict"}`)); err == nil {
		t.Fatal("expected error when ok=false")
	}
	if _, err := parseUpdates([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
