package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"nifty-signals/internal/model"
)

const (
	SignalsChannel = "pub:signals"
	SignalsStream  = "signals"
	LatestKey      = "signals:latest"

	streamMaxLen = 5000
	latestTTL    = 24 * time.Hour
)

// batchMessage is the payload published for each persisted batch.
type batchMessage struct {
	CycleID string         `json:"cycle_id,omitempty"`
	Count   int            `json:"count"`
	Signals []model.Signal `json:"signals"`
}

// Publisher publishes signal batches: one PUBLISH for live subscribers, one
// XADD per signal for consumers that replay, and a SET of the latest batch.
type Publisher struct {
	c *Client
}

// NewPublisher creates a publisher on the given client.
func NewPublisher(c *Client) *Publisher {
	return &Publisher{c: c}
}

// Publish sends a batch in a single pipeline.
func (p *Publisher) Publish(ctx context.Context, cycleID string, signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	batch, err := encodeBatch(cycleID, signals)
	if err != nil {
		return err
	}

	pipe := p.c.rdb.Pipeline()
	for _, sig := range signals {
		data, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("encode signal %s: %w", sig.Symbol, err)
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SignalsStream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"symbol": sig.Symbol,
				"type":   string(sig.Type),
				"data":   string(data),
			},
		})
	}
	pipe.Set(ctx, LatestKey, batch, latestTTL)
	pipe.Publish(ctx, SignalsChannel, batch)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %d signals: %w", len(signals), err)
	}
	return nil
}

func encodeBatch(cycleID string, signals []model.Signal) (string, error) {
	data, err := json.Marshal(batchMessage{CycleID: cycleID, Count: len(signals), Signals: signals})
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return string(data), nil
}
