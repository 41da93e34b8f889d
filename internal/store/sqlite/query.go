package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nifty-signals/internal/model"
)

// Query selects signals newer than Since, optionally of one Type, newest first.
// A zero Since means no lower bound. Limit <= 0 uses DefaultLimit; it is capped at MaxLimit.
type Query struct {
	Since time.Time
	Type  model.SignalType
	Limit int
}

// TrailingDays builds a query covering the last days*24h before now.
func TrailingDays(now time.Time, days int, typ model.SignalType, limit int) Query {
	return Query{
		Since: now.Add(-time.Duration(days) * 24 * time.Hour),
		Type:  typ,
		Limit: limit,
	}
}

// Recent returns signals matching q, newest first.
// Every filter value is bound as a parameter.
func (s *Store) Recent(ctx context.Context, q Query) ([]model.Signal, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var since string
	if !q.Since.IsZero() {
		since = formatTS(q.Since)
	}

	var rows []signalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, signal_type, strength, price, timestamp, description
		FROM analysis_results
		WHERE timestamp >= ?
		  AND (? = '' OR signal_type = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, since, string(q.Type), string(q.Type), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}

	signals := make([]model.Signal, 0, len(rows))
	for _, r := range rows {
		sig, err := r.toSignal()
		if err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// CountByType returns the number of signals per type since the given instant.
func (s *Store) CountByType(ctx context.Context, since time.Time) (map[model.SignalType]int, error) {
	var rows []struct {
		SignalType string `db:"signal_type"`
		N          int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT signal_type, COUNT(*) AS n
		FROM analysis_results
		WHERE timestamp >= ?
		GROUP BY signal_type
	`, formatTS(since))
	if err != nil {
		return nil, fmt.Errorf("sqlite count signals: %w", err)
	}

	counts := make(map[model.SignalType]int, len(rows))
	for _, r := range rows {
		counts[model.SignalType(r.SignalType)] = r.N
	}
	return counts, nil
}

// LastSignalTime returns the timestamp of the newest stored signal.
// ok is false when the store is empty.
func (s *Store) LastSignalTime(ctx context.Context) (ts time.Time, ok bool, err error) {
	var last sql.NullString
	if err := s.db.GetContext(ctx, &last, `SELECT MAX(timestamp) FROM analysis_results`); err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite last signal: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	ts, err = parseTS(last.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
