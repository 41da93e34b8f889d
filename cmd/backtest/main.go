// Command backtest replays the signal rules over historical daily bars
// from the configured price source and prints what would have fired.
//
// Usage:
//
//	go run ./cmd/backtest --symbols=TCS,INFY --days=365 --window=21
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nifty-signals/config"
	"nifty-signals/internal/backtest"
	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
	"nifty-signals/internal/model"
	"nifty-signals/internal/pricesource"
	"nifty-signals/internal/strategy"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: configured universe)")
	days := flag.Int("days", 365, "calendar days of history to fetch")
	window := flag.Int("window", 21, "bars per evaluation window")
	verbose := flag.Bool("v", false, "print every signal")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	symbols := cfg.Symbols()
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if !strings.Contains(s, ".") {
				s += ".NS"
			}
			symbols = append(symbols, s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var src pricesource.Source
	if cfg.PriceSource == "angel" {
		src = pricesource.NewAngel(pricesource.AngelConfig{
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
			Tokens:     cfg.AngelTokens(),
		})
	} else {
		src = pricesource.NewYahoo(cfg.YahooURL, 30*time.Second)
	}

	rules := strategy.CoreRules()
	if cfg.VolumeRule {
		rules = append(rules, strategy.VolumeBreakout{})
	}
	btCfg := backtest.Config{Window: *window, MinBars: cfg.MinBars}

	totals := map[model.SignalType]int{}
	replayed := 0
	for i, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && cfg.RequestDelay > 0 {
			time.Sleep(cfg.RequestDelay)
		}

		bars, err := src.Fetch(ctx, sym, *days)
		if err != nil {
			slog.Warn("fetch failed", slog.String("symbol", sym), slog.String("error", err.Error()))
			continue
		}
		r := backtest.Replay(sym, bars, rules, btCfg)
		replayed++
		for t, n := range r.Counts {
			totals[t] += n
		}

		fmt.Printf("%-14s bars=%-4d windows=%-4d buy=%-3d sell=%-3d\n",
			model.DisplaySymbol(sym), r.Bars, r.Evaluated, r.Counts[model.SignalBuy], r.Counts[model.SignalSell])
		if *verbose {
			for _, s := range r.Signals {
				fmt.Printf("    %s %-4s %-6s %10s  %s\n",
					s.Timestamp.In(markethours.IST).Format("2006-01-02"), s.Type, s.Strength, s.Price.StringFixed(2), s.Description)
			}
		}
	}

	fmt.Println()
	fmt.Printf("symbols replayed: %d/%d  window: %d bars  rules: %s\n",
		replayed, len(symbols), btCfg.Window, strings.Join(strategy.NewEngine(rules...).Rules(), ","))
	fmt.Printf("signals: buy=%d sell=%d\n", totals[model.SignalBuy], totals[model.SignalSell])
}
