package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultTelegramAPI = "https://api.telegram.org"

	// MaxMessageLen is Telegram's sendMessage text limit.
	MaxMessageLen = 4096
)

// TelegramNotifier sends HTML messages via the Telegram Bot API.
type TelegramNotifier struct {
	apiURL   string
	botToken string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// apiURL defaults to DefaultTelegramAPI when empty.
func NewTelegramNotifier(apiURL, botToken string) *TelegramNotifier {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &TelegramNotifier{
		apiURL:   strings.TrimRight(apiURL, "/"),
		botToken: botToken,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers text, split into parts of at most MaxMessageLen characters.
// It returns false as soon as one part fails.
func (t *TelegramNotifier) Send(ctx context.Context, chatID, text string) bool {
	for _, part := range SplitMessage(text, MaxMessageLen) {
		if err := t.sendPart(ctx, chatID, part); err != nil {
			slog.Warn("telegram send failed",
				slog.String("component", "notify"),
				slog.String("chat_id", chatID),
				slog.String("error", err.Error()),
			)
			return false
		}
	}
	return true
}

func (t *TelegramNotifier) sendPart(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// SplitMessage splits text into parts of at most limit runes, breaking on
// line boundaries where possible. A line longer than limit is cut before
// any tag or entity that would straddle the cut. Tags that open on one
// side of a cut and close on the other are not rebalanced.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			n = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln <= limit {
			cur.WriteString(line)
			n += ln
			continue
		}
		flush()
		for ln > limit {
			r := []rune(line)
			cut := markupSafeCut(r, limit)
			parts = append(parts, string(r[:cut]))
			line = string(r[cut:])
			ln -= cut
		}
		cur.WriteString(line)
		n = ln
	}
	flush()
	return parts
}

// markupSafeCut returns a cut index in (0, limit] that does not fall inside
// an HTML tag or entity started in r[:limit].
func markupSafeCut(r []rune, limit int) int {
	for i := limit - 1; i > 0; i-- {
		switch r[i] {
		case '>', ';':
			return limit
		case '<', '&':
			return i
		}
	}
	return limit
}
