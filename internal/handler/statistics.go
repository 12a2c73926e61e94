package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-insights/internal/model"
)

// StatisticsAPI is implemented by service.StatisticsService.
type StatisticsAPI interface {
	Daily(ctx context.Context, days int) (model.DailyStats, error)
	Weekly(ctx context.Context, weeks int) (model.WeeklyStats, error)
	Monthly(ctx context.Context, months int) (model.MonthlyStats, error)
	Summary(ctx context.Context) (model.Summary, error)
	Detailed(ctx context.Context, from, to string) (model.DetailedStats, error)
}

// StatisticsHandler serves /api/statistics. Malformed counts fall back to
// the service defaults.
type StatisticsHandler struct {
	stats StatisticsAPI
}

func NewStatisticsHandler(stats StatisticsAPI) *StatisticsHandler {
	return &StatisticsHandler{stats: stats}
}

// Daily: GET /api/statistics/daily?days=
func (h *StatisticsHandler) Daily(c echo.Context) error {
	out, err := h.stats.Daily(c.Request().Context(), intParam(c, "days"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", out)
}

// Weekly: GET /api/statistics/weekly?weeks=
func (h *StatisticsHandler) Weekly(c echo.Context) error {
	out, err := h.stats.Weekly(c.Request().Context(), intParam(c, "weeks"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", out)
}

// Monthly: GET /api/statistics/monthly?months=
func (h *StatisticsHandler) Monthly(c echo.Context) error {
	out, err := h.stats.Monthly(c.Request().Context(), intParam(c, "months"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", out)
}

func (h *StatisticsHandler) Summary(c echo.Context) error {
	out, err := h.stats.Summary(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", out)
}

// Detailed reads from and to as YYYY-MM-DD.
func (h *StatisticsHandler) Detailed(c echo.Context) error {
	out, err := h.stats.Detailed(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", out)
}
