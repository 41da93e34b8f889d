package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/model"
	"nifty-signals/internal/store/sqlite"
)

type handlers struct {
	store  Store
	health *metrics.HealthStatus
	now    func() time.Time
}

type latestSignalsQuery struct {
	Limit int    `query:"limit" default:"50" validate:"min=1,max=500"`
	Type  string `query:"type" validate:"omitempty,oneof=BUY SELL"`
}

func (q *latestSignalsQuery) normalize() { q.Type = strings.ToUpper(strings.TrimSpace(q.Type)) }

// SignalDTO is the dashboard representation of a stored signal.
type SignalDTO struct {
	Symbol      string          `json:"symbol"`
	SignalType  string          `json:"signal_type"`
	Strength    string          `json:"strength"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
}

func toDTO(s model.Signal) SignalDTO {
	return SignalDTO{
		Symbol:      model.DisplaySymbol(s.Symbol),
		SignalType:  string(s.Type),
		Strength:    string(s.Strength),
		Price:       s.Price,
		Timestamp:   s.Timestamp,
		Description: s.Description,
	}
}

// TodayResponse is the body of /api/today.
type TodayResponse struct {
	Date  string `json:"date"`
	Buy   int    `json:"buy"`
	Sell  int    `json:"sell"`
	Total int    `json:"total"`
}

// latestSignals returns the newest stored signals as a bare JSON array.
func (h *handlers) latestSignals(c echo.Context) error {
	var q latestSignalsQuery
	if errs := bindQuery(c, &q); errs != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid query", Errors: errs})
	}

	ctx := c.Request().Context()
	signals, err := h.store.Recent(ctx, sqlite.Query{Type: model.SignalType(q.Type), Limit: q.Limit})
	if err != nil {
		logger.Component("api").Error("latest signals query failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "could not read signals"})
	}

	out := make([]SignalDTO, 0, len(signals))
	for _, s := range signals {
		out = append(out, toDTO(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handlers) today(c echo.Context) error {
	now := h.now()
	counts, err := h.store.CountByType(c.Request().Context(), markethours.StartOfDay(now))
	if err != nil {
		logger.Component("api").Error("today counts failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "could not read signals"})
	}
	resp := TodayResponse{
		Date: now.In(markethours.IST).Format("2006-01-02"),
		Buy:  counts[model.SignalBuy],
		Sell: counts[model.SignalSell],
	}
	resp.Total = resp.Buy + resp.Sell
	return c.JSON(http.StatusOK, resp)
}

// healthCheck is a liveness probe: it answers 200 while the process is up
// and reports dependency state in the body.
func (h *handlers) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.Report())
}
