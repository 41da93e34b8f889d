package pricesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"nifty-signals/internal/model"
)

const (
	DefaultYahooURL = "https://query1.finance.yahoo.com"
	yahooUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) nifty-signals/1.0"
)

// Yahoo reads the public v8 chart endpoint.
type Yahoo struct {
	baseURL string
	client  *http.Client
}

// NewYahoo creates a Yahoo source. An empty baseURL uses DefaultYahooURL.
func NewYahoo(baseURL string, timeout time.Duration) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Yahoo{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Fetch implements Source.
func (y *Yahoo) Fetch(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%dd&interval=1d", y.baseURL, url.PathEscape(symbol), days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s read: %w", symbol, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart %s: http %d", symbol, resp.StatusCode)
	}
	return parseChart(symbol, body)
}

func parseChart(symbol string, body []byte) ([]model.PriceBar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("yahoo chart %s: invalid json", symbol)
	}
	chart := gjson.GetBytes(body, "chart")
	if e := chart.Get("error"); e.Exists() && e.Type != gjson.Null {
		slog.Debug("yahoo chart error",
			slog.String("component", "pricesource"),
			slog.String("symbol", symbol),
			slog.String("code", e.Get("code").String()),
			slog.String("description", e.Get("description").String()),
		)
		return nil, nil
	}

	result := chart.Get("result.0")
	timestamps := result.Get("timestamp").Array()
	if len(timestamps) == 0 {
		return nil, nil
	}
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	bars := make([]model.PriceBar, 0, len(timestamps))
	for i, ts := range timestamps {
		c := at(closes, i)
		if c.Type != gjson.Number {
			continue
		}
		cl := c.Float()
		bars = append(bars, model.PriceBar{
			Date:   time.Unix(ts.Int(), 0).UTC(),
			Open:   floatOr(at(opens, i), cl),
			High:   floatOr(at(highs, i), cl),
			Low:    floatOr(at(lows, i), cl),
			Close:  cl,
			Volume: at(volumes, i).Int(),
		})
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return bars, nil
}

func at(values []gjson.Result, i int) gjson.Result {
	if i < len(values) {
		return values[i]
	}
	return gjson.Result{}
}

func floatOr(r gjson.Result, def float64) float64 {
	if r.Type != gjson.Number {
		return def
	}
	return r.Float()
}
