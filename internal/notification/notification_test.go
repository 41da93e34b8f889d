package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []map[string]interface{}
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, body)
		path = r.URL.Path
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "TOKEN")
	if !n.Send(context.Background(), "42", "<b>hi</b>") {
		t.Fatal("Send returned false")
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if len(got) != 1 || got[0]["chat_id"] != "42" || got[0]["parse_mode"] != "HTML" || got[0]["text"] != "<b>hi</b>" {
		t.Errorf("body = %v", got)
	}
}

func TestTelegramNotifier_SplitsLongMessages(t *testing.T) {
	var parts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if utf8.RuneCountInString(body["text"]) > MaxMessageLen {
			t.Errorf("part too long: %d", utf8.RuneCountInString(body["text"]))
		}
		parts++
	}))
	defer srv.Close()

	line := strings.Repeat("x", 99) + "\n"
	text := strings.Repeat(line, 100) // 10000 chars
	if !NewTelegramNotifier(srv.URL, "T").Send(context.Background(), "1", text) {
		t.Fatal("Send returned false")
	}
	if parts != 3 {
		t.Errorf("parts = %d, want 3", parts)
	}
}

func TestTelegramNotifier_Non2xxIsNotDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	if NewTelegramNotifier(srv.URL, "T").Send(context.Background(), "1", "x") {
		t.Fatal("expected false on 400")
	}
}

func TestTelegramNotifier_UnreachableIsNotDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if NewTelegramNotifier(url, "T").Send(context.Background(), "1", "x") {
		t.Fatal("expected false when server is down")
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"short", "abc", 10, []string{"abc"}},
		{"lines", "aaa\nbbb\nccc", 8, []string{"aaa\nbbb\n", "ccc"}},
		{"long line", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"runes", "₹₹₹₹₹", 2, []string{"₹₹", "₹₹", "₹"}},
		{"tag kept whole", "abc<b>x</b>", 5, []string{"abc", "<b>x", "</b>"}},
		{"entity kept whole", "ab&amp;cd", 5, []string{"ab", "&amp;", "cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebhookNotifier(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if !NewWebhookNotifier(srv.URL).Send(context.Background(), "7", "hello") {
		t.Fatal("Send returned false")
	}
	if body["chat_id"] != "7" || body["text"] != "hello" || body["ts"] == "" {
		t.Errorf("body = %v", body)
	}
}

type recordNotifier struct {
	ok    bool
	calls int
}

func (r *recordNotifier) Send(ctx context.Context, chatID, text string) bool {
	r.calls++
	return r.ok
}

func TestMulti(t *testing.T) {
	a, b := &recordNotifier{ok: false}, &recordNotifier{ok: true}
	if !(Multi{a, b}).Send(context.Background(), "1", "x") {
		t.Error("expected delivered when any sink delivers")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d,%d", a.calls, b.calls)
	}
	if (Multi{a}).Send(context.Background(), "1", "x") {
		t.Error("expected not delivered")
	}
	if NewLogNotifier().Send(context.Background(), "1", "x") {
		t.Error("log notifier must report not delivered")
	}
}
