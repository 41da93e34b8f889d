package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignalType is the direction of a signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// ParseSignalType maps "buy"/"BUY" etc. to a SignalType. Anything else returns "".
func ParseSignalType(s string) SignalType {
	switch SignalType(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy
	case SignalSell:
		return SignalSell
	}
	return ""
}

// Strength is a display-only ordinal: STRONG > MEDIUM > WEAK.
type Strength string

const (
	StrengthStrong Strength = "STRONG"
	StrengthMedium Strength = "MEDIUM"
	StrengthWeak   Strength = "WEAK"
)

// Rank orders strengths for display grouping. Unknown strengths rank lowest.
func (s Strength) Rank() int {
	switch s {
	case StrengthStrong:
		return 3
	case StrengthMedium:
		return 2
	case StrengthWeak:
		return 1
	}
	return 0
}

// Signal is an emitted BUY/SELL observation. Signals are immutable once
// created and are only ever appended to the store.
type Signal struct {
	ID          int64           `json:"id,omitempty"`
	Symbol      string          `json:"symbol"`
	Type        SignalType      `json:"signal_type"`
	Strength    Strength        `json:"strength"`
	Price       decimal.Decimal `json:"price"`     // last close used to derive the signal
	Timestamp   time.Time       `json:"timestamp"` // emission time, not market time
	Description string          `json:"description"`
}

// DisplaySymbol strips the exchange suffix used by the price source (".NS").
func DisplaySymbol(symbol string) string {
	return strings.TrimSuffix(symbol, ".NS")
}
