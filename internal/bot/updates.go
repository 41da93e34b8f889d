// Package bot is the chat command dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"nifty-signals/internal/notification"
)

// ErrNoToken is returned when no bot token is configured.
var ErrNoToken = errors.New("telegram bot token not configured")

// Update is one inbound chat message.
type Update struct {
	ID     int64
	ChatID string
	From   string
	Text   string
}

// UpdateSource long-polls for updates with id >= offset, blocking up to timeout.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// TelegramUpdates reads updates with the Bot API getUpdates method.
type TelegramUpdates struct {
	apiURL string
	token  string
	client *http.Client
}

// NewTelegramUpdates creates an update source. The HTTP timeout is the
// long-poll timeout plus 5s so the server always answers first.
func NewTelegramUpdates(apiURL, token string, pollTimeout time.Duration) (*TelegramUpdates, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if apiURL == "" {
		apiURL = notification.DefaultTelegramAPI
	}
	return &TelegramUpdates{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		client: &http.Client{Timeout: pollTimeout + 5*time.Second},
	}, nil
}

// GetUpdates implements UpdateSource.
func (t *TelegramUpdates) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	q.Set("allowed_updates", `["message"]`)
	u := fmt.Sprintf("%s/bot%s/getUpdates?%s", t.apiURL, t.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getUpdates read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates: http %d: %s", resp.StatusCode, gjson.GetBytes(body, "description").String())
	}
	return parseUpdates(body)
}

func parseUpdates(body []byte) ([]Update, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("getUpdates: invalid json")
	}
	res := gjson.ParseBytes(body)
	if !res.Get("ok").Bool() {
		return nil, fmt.Errorf("getUpdates: %s", res.Get("description").String())
	}

	var updates []Update
	res.Get("result").ForEach(func(_, item gjson.Result) bool {
		msg := item.Get("message")
		updates = append(updates, Update{
			ID:     item.Get("update_id").Int(),
			ChatID: msg.Get("chat.id").String(),
			From:   msg.Get("from.username").String(),
			Text:   msg.Get("text").String(),
		})
		return true
	})
	return updates, nil
}
