package pricesource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/tidwall/gjson"

	"nifty-signals/internal/model"
	"nifty-signals/pkg/smartconnect"
)

// AngelConfig configures the Angel One source.
type AngelConfig struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
	Exchange   string            // default NSE
	RootURL    string            // optional SmartAPI root override
	Tokens     map[string]string // symbol -> Angel symbol token
}

// Angel reads daily candles from SmartAPI. The session is created on the
// first fetch and renewed once when the API rejects the token.
type Angel struct {
	cfg AngelConfig
	sc  *smartconnect.SmartConnect
	now func() time.Time

	mu       sync.Mutex
	loggedIn bool
}

// NewAngel creates an Angel source. No login happens until the first Fetch.
func NewAngel(cfg AngelConfig) *Angel {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	return &Angel{
		cfg: cfg,
		sc:  smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.APIKey, RootURL: cfg.RootURL}),
		now: time.Now,
	}
}

// Fetch implements Source.
func (a *Angel) Fetch(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	token, ok := a.cfg.Tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("angel %s: %w", symbol, ErrUnknownSymbol)
	}

	if err := a.ensureSession(ctx, false); err != nil {
		return nil, err
	}

	now := a.now()
	params := smartconnect.CandleParams{
		Exchange:    a.cfg.Exchange,
		SymbolToken: token,
		Interval:    smartconnect.IntervalOneDay,
		From:        now.Add(-time.Duration(days) * 24 * time.Hour),
		To:          now,
	}

	raw, err := a.sc.GetCandleData(ctx, params)
	if smartconnect.IsAuthError(err) {
		slog.Info("angel session rejected, logging in again",
			slog.String("component", "pricesource"),
			slog.String("symbol", symbol),
		)
		if err := a.ensureSession(ctx, true); err != nil {
			return nil, err
		}
		raw, err = a.sc.GetCandleData(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("angel candles %s: %w", symbol, err)
	}
	return parseCandles(symbol, raw)
}

func (a *Angel) ensureSession(ctx context.Context, force bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loggedIn && !force {
		return nil
	}
	a.loggedIn = false

	code, err := totp.GenerateCode(a.cfg.TOTPSecret, a.now())
	if err != nil {
		return fmt.Errorf("angel totp: %w", err)
	}
	if _, err := a.sc.GenerateSession(ctx, a.cfg.ClientCode, a.cfg.Password, code); err != nil {
		return fmt.Errorf("angel session: %w", err)
	}
	a.loggedIn = true
	slog.Info("angel session ready", slog.String("component", "pricesource"))
	return nil
}

func parseCandles(symbol string, raw []byte) ([]model.PriceBar, error) {
	rows := gjson.GetBytes(raw, "data").Array()
	if len(rows) == 0 {
		return nil, nil
	}
	bars := make([]model.PriceBar, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Get("0").String())
		if err != nil {
			return nil, fmt.Errorf("angel candles %s: bad timestamp %q", symbol, row.Get("0").String())
		}
		bars = append(bars, model.PriceBar{
			Date:   ts.UTC(),
			Open:   row.Get("1").Float(),
			High:   row.Get("2").Float(),
			Low:    row.Get("3").Float(),
			Close:  row.Get("4").Float(),
			Volume: row.Get("5").Int(),
		})
	}
	return bars, nil
}
