// Package pricesource fetches daily OHLCV history for a symbol.
package pricesource

import (
	"context"
	"errors"
	"fmt"

	"nifty-signals/internal/breaker"
	"nifty-signals/internal/model"
)

// ErrUnknownSymbol is returned when a source cannot map a symbol to its own identifier.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Source returns up to days of daily bars, oldest first.
// A symbol without data yields nil, nil.
type Source interface {
	Fetch(ctx context.Context, symbol string, days int) ([]model.PriceBar, error)
}

// Guarded wraps src with a circuit breaker. Transport failures count towards
// opening it; unknown symbols and empty results do not.
func Guarded(src Source, b *breaker.Breaker) Source {
	return &guarded{src: src, b: b}
}

type guarded struct {
	src Source
	b   *breaker.Breaker
}

func (g *guarded) Fetch(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	var (
		bars    []model.PriceBar
		unknown error
	)
	err := g.b.Execute(func() error {
		var err error
		bars, err = g.src.Fetch(ctx, symbol, days)
		if errors.Is(err, ErrUnknownSymbol) {
			unknown = err
			return nil
		}
		return err
	})
	if unknown != nil {
		return nil, unknown
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	return bars, nil
}
