// Package config loads process configuration from .env, the environment
// and an optional YAML universe file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Symbol is one universe entry. AngelToken is only needed by the Angel price source.
type Symbol struct {
	Symbol     string `yaml:"symbol" validate:"required"`
	AngelToken string `yaml:"angel_token"`
}

// Config holds all application configuration.
type Config struct {
	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIURL   string
	WebhookURL       string `validate:"omitempty,url"`

	// Infrastructure
	Port          int    `validate:"min=1,max=65535"`
	SQLitePath    string `validate:"required"`
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// Universe
	SymbolsFile string
	Universe    []Symbol `validate:"required,min=1,dive"`

	// Price source
	PriceSource     string `validate:"oneof=yahoo angel"`
	YahooURL        string
	AngelAPIKey     string `validate:"required_if=PriceSource angel"`
	AngelClientCode string `validate:"required_if=PriceSource angel"`
	AngelPassword   string `validate:"required_if=PriceSource angel"`
	AngelTOTPSecret string `validate:"required_if=PriceSource angel"`

	// Analysis
	AnalysisInterval time.Duration `validate:"min=1m"`
	ErrorBackoff     time.Duration `validate:"min=1m,max=5m"`
	RequestDelay     time.Duration `validate:"min=0s"`
	LookbackDays     int           `validate:"min=1,max=3650"`
	MinBars          int           `validate:"min=1"`
	VolumeRule       bool
	MarketHoursOnly  bool
	DailySummaryAt   string `validate:"omitempty,datetime=15:04"`

	// Command polling
	PollTimeout time.Duration `validate:"min=1s,max=60s"`
	PollRetry   time.Duration `validate:"min=1s"`

	LogLevel string `validate:"oneof=debug info warn error"`
}

// Load reads envFile (missing is fine), then the environment, then the
// universe file, and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var errs []error
	cfg := &Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		Port:          getEnvInt("PORT", 5000, &errs),
		SQLitePath:    getEnv("SQLITE_PATH", "data/nifty_analysis.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0, &errs),

		SymbolsFile: getEnv("SYMBOLS_FILE", ""),

		PriceSource:     strings.ToLower(getEnv("PRICE_SOURCE", "yahoo")),
		YahooURL:        getEnv("YAHOO_URL", ""),
		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		AnalysisInterval: getEnvDuration("ANALYSIS_INTERVAL", 15*time.Minute, &errs),
		ErrorBackoff:     getEnvDuration("ERROR_BACKOFF", time.Minute, &errs),
		RequestDelay:     getEnvDuration("REQUEST_DELAY", time.Second, &errs),
		LookbackDays:     getEnvInt("LOOKBACK_DAYS", 30, &errs),
		MinBars:          getEnvInt("MIN_BARS", 2, &errs),
		VolumeRule:       getEnvBool("VOLUME_RULE", true, &errs),
		MarketHoursOnly:  getEnvBool("MARKET_HOURS_ONLY", false, &errs),
		DailySummaryAt:   getEnv("DAILY_SUMMARY_AT", "15:45"),

		PollTimeout: getEnvDuration("POLL_TIMEOUT", 30*time.Second, &errs),
		PollRetry:   getEnvDuration("POLL_RETRY", 5*time.Second, &errs),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
	if v, ok := os.LookupEnv("DAILY_SUMMARY_AT"); ok && strings.TrimSpace(v) == "" {
		cfg.DailySummaryAt = ""
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	universe := DefaultUniverse()
	if cfg.SymbolsFile != "" {
		u, err := LoadUniverse(cfg.SymbolsFile)
		if err != nil {
			return nil, err
		}
		universe = u
	}
	if list := getEnv("SYMBOLS", ""); list != "" {
		universe = overrideSymbols(universe, list)
	}
	cfg.Universe = universe

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// NotificationsEnabled reports whether broadcast digests can reach a Telegram
// chat. Command replies only need the bot token.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// RedisEnabled reports whether signal fan-out and the cycle lock are on.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// Symbols returns the universe symbols in order.
func (c *Config) Symbols() []string {
	out := make([]string, len(c.Universe))
	for i, s := range c.Universe {
		out[i] = s.Symbol
	}
	return out
}

// AngelTokens maps universe symbols to their Angel One tokens.
func (c *Config) AngelTokens() map[string]string {
	out := make(map[string]string, len(c.Universe))
	for _, s := range c.Universe {
		if s.AngelToken != "" {
			out[s.Symbol] = s.AngelToken
		}
	}
	return out
}

type universeFile struct {
	Symbols []Symbol `yaml:"symbols"`
}

// LoadUniverse reads a YAML universe file.
func LoadUniverse(path string) ([]Symbol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var f universeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", path, err)
	}
	for i := range f.Symbols {
		f.Symbols[i].Symbol = normalizeSymbol(f.Symbols[i].Symbol)
	}
	return f.Symbols, nil
}

// overrideSymbols replaces the universe with a comma list, keeping known tokens.
func overrideSymbols(universe []Symbol, list string) []Symbol {
	tokens := make(map[string]string, len(universe))
	for _, s := range universe {
		tokens[s.Symbol] = s.AngelToken
	}
	var out []Symbol
	for _, p := range strings.Split(list, ",") {
		sym := normalizeSymbol(p)
		if sym == "" {
			continue
		}
		out = append(out, Symbol{Symbol: sym, AngelToken: tokens[sym]})
	}
	return out
}

// normalizeSymbol upper-cases and adds the NSE suffix when no exchange is given.
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s != "" && !strings.Contains(s, ".") {
		s += ".NS"
	}
	return s
}

// DefaultUniverse is the built-in Nifty large-cap list with Angel One NSE tokens.
func DefaultUniverse() []Symbol {
	return []Symbol{
		{"RELIANCE.NS", "2885"},
		{"TCS.NS", "11536"},
		{"HDFCBANK.NS", "1333"},
		{"INFY.NS", "1594"},
		{"HINDUNILVR.NS", "1394"},
		{"ICICIBANK.NS", "4963"},
		{"SBIN.NS", "3045"},
		{"BHARTIARTL.NS", "10604"},
		{"ITC.NS", "1660"},
		{"KOTAKBANK.NS", "1922"},
		{"LT.NS", "11483"},
		{"AXISBANK.NS", "5900"},
		{"ASIANPAINT.NS", "236"},
		{"MARUTI.NS", "10999"},
		{"SUNPHARMA.NS", "3351"},
		{"TITAN.NS", "3506"},
		{"ULTRACEMCO.NS", "11532"},
		{"NESTLEIND.NS", "17963"},
		{"POWERGRID.NS", "14977"},
		{"NTPC.NS", "11630"},
	}
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}
