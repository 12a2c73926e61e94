package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/cache"
	"github.com/iliyamo/user-insights/internal/config"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/repository"
)

// Window parameter defaults and upper bounds.
const (
	DefaultDays   = 30
	MaxDays       = 366
	DefaultWeeks  = 12
	MaxWeeks      = 104
	DefaultMonths = 12
	MaxMonths     = 120

	MaxRangeDays = 3660
)

const dateLayout = "2006-01-02"

// StatisticsConfig selects the zone buckets are computed in and how.
type StatisticsConfig struct {
	Location   *time.Location
	BucketMode string // config.BucketModeExact or config.BucketModeStore
}

// StatisticsService computes user growth aggregates. Every result is
// memoized; a cached result is served unchanged until it expires even if
// users were created meanwhile.
type StatisticsService struct {
	store StatsStore
	memo  *cache.Memo
	loc   *time.Location
	mode  string
	options
}

func NewStatisticsService(store StatsStore, memo *cache.Memo, cfg StatisticsConfig, opts ...Option) *StatisticsService {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	mode := cfg.BucketMode
	if mode != config.BucketModeStore {
		mode = config.BucketModeExact
	}
	if memo == nil {
		memo = cache.NewMemo(nil, 0, nil)
	}
	return &StatisticsService{store: store, memo: memo, loc: loc, mode: mode, options: buildOptions(opts)}
}

func clamp(n, def, max int) int {
	switch {
	case n < 1:
		return def
	case n > max:
		return max
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns Monday 00:00 of t's week.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func (s *StatisticsService) key(op, params string, bucket string) string {
	k := "statistics." + op
	if params != "" {
		k += "." + params
	}
	k += "." + s.loc.String() + "." + s.mode
	if bucket != "" {
		k += "." + bucket
	}
	return k
}

// remember runs compute through the cache under one store timeout.
func remember[T any](ctx context.Context, s *StatisticsService, key string, compute func(context.Context) (T, error)) (T, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	v, err := cache.Remember(sctx, s.memo, key, compute)
	if err != nil {
		var zero T
		return zero, apperror.From(err)
	}
	return v, nil
}

// bucketKey renders the first date of t's bucket.
func bucketKey(unit repository.GroupUnit, t time.Time) string {
	switch unit {
	case repository.GroupWeek:
		return startOfWeek(t).Format(dateLayout)
	case repository.GroupMonth:
		return startOfMonth(t).Format(dateLayout)
	}
	return t.Format(dateLayout)
}

// counts returns active users created in [from, to) per bucket, keyed by
// the bucket's first local date. In store mode MySQL groups by the UTC
// calendar instead.
func (s *StatisticsService) counts(ctx context.Context, unit repository.GroupUnit, from, to time.Time) (map[string]int64, error) {
	if s.mode == config.BucketModeStore {
		m, err := s.store.CountGrouped(ctx, unit, from, to)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		return m, nil
	}
	times, err := s.store.CreatedAtBetween(ctx, from, to)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	out := make(map[string]int64)
	for _, t := range times {
		out[bucketKey(unit, t.In(s.loc))]++
	}
	return out, nil
}

func (s *StatisticsService) count(ctx context.Context, scope model.Scope) (int64, error) {
	n, err := s.store.Count(ctx, scope)
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return n, nil
}

func (s *StatisticsService) createdBetween(ctx context.Context, from, to time.Time) (int64, error) {
	n, err := s.store.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return n, nil
}

// Daily counts users created per calendar day over the trailing days
// days, today included.
func (s *StatisticsService) Daily(ctx context.Context, days int) (model.DailyStats, error) {
	days = clamp(days, DefaultDays, MaxDays)
	today := startOfDay(s.now().In(s.loc))
	key := s.key("daily", fmt.Sprint(days), today.Format(dateLayout))

	return remember(ctx, s, key, func(ctx context.Context) (model.DailyStats, error) {
		from := today.AddDate(0, 0, -(days - 1))
		to := today.AddDate(0, 0, 1)

		counts, err := s.counts(ctx, repository.GroupDay, from, to)
		if err != nil {
			return model.DailyStats{}, err
		}
		total, err := s.count(ctx, model.ScopeWith)
		if err != nil {
			return model.DailyStats{}, err
		}

		buckets := make([]model.DailyBucket, 0, days)
		for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
			date := d.Format(dateLayout)
			buckets = append(buckets, model.DailyBucket{Date: date, Total: counts[date]})
		}
		return model.DailyStats{
			Period:     "daily",
			Days:       days,
			Timezone:   s.loc.String(),
			Statistics: buckets,
			TotalUsers: total,
		}, nil
	})
}

// Weekly counts users per ISO week (Monday start) over the trailing weeks
// weeks, the current week included.
func (s *StatisticsService) Weekly(ctx context.Context, weeks int) (model.WeeklyStats, error) {
	weeks = clamp(weeks, DefaultWeeks, MaxWeeks)
	thisWeek := startOfWeek(s.now().In(s.loc))
	key := s.key("weekly", fmt.Sprint(weeks), thisWeek.Format(dateLayout))

	return remember(ctx, s, key, func(ctx context.Context) (model.WeeklyStats, error) {
		from := thisWeek.AddDate(0, 0, -7*(weeks-1))
		to := thisWeek.AddDate(0, 0, 7)

		counts, err := s.counts(ctx, repository.GroupWeek, from, to)
		if err != nil {
			return model.WeeklyStats{}, err
		}
		total, err := s.count(ctx, model.ScopeWith)
		if err != nil {
			return model.WeeklyStats{}, err
		}

		buckets := make([]model.WeeklyBucket, 0, weeks)
		for start := from; start.Before(to); start = start.AddDate(0, 0, 7) {
			end := start.AddDate(0, 0, 6)
			year, week := start.ISOWeek()
			buckets = append(buckets, model.WeeklyBucket{
				Year:      year,
				Week:      week,
				StartDate: start.Format(dateLayout),
				EndDate:   end.Format(dateLayout),
				Period:    start.Format("02/01/2006") + " - " + end.Format("02/01/2006"),
				Total:     counts[start.Format(dateLayout)],
			})
		}
		return model.WeeklyStats{
			Period:     "weekly",
			Weeks:      weeks,
			Timezone:   s.loc.String(),
			Statistics: buckets,
			TotalUsers: total,
		}, nil
	})
}

// Monthly counts users per calendar month over the trailing months months,
// the current month included.
func (s *StatisticsService) Monthly(ctx context.Context, months int) (model.MonthlyStats, error) {
	months = clamp(months, DefaultMonths, MaxMonths)
	thisMonth := startOfMonth(s.now().In(s.loc))
	key := s.key("monthly", fmt.Sprint(months), thisMonth.Format("2006-01"))

	return remember(ctx, s, key, func(ctx context.Context) (model.MonthlyStats, error) {
		from := thisMonth.AddDate(0, -(months - 1), 0)
		to := thisMonth.AddDate(0, 1, 0)

		counts, err := s.counts(ctx, repository.GroupMonth, from, to)
		if err != nil {
			return model.MonthlyStats{}, err
		}
		total, err := s.count(ctx, model.ScopeWith)
		if err != nil {
			return model.MonthlyStats{}, err
		}

		buckets := make([]model.MonthlyBucket, 0, months)
		for m := from; m.Before(to); m = m.AddDate(0, 1, 0) {
			buckets = append(buckets, model.MonthlyBucket{
				Year:      m.Year(),
				Month:     int(m.Month()),
				MonthName: m.Month().String(),
				Total:     counts[m.Format(dateLayout)],
			})
		}
		return model.MonthlyStats{
			Period:     "monthly",
			Months:     months,
			Timezone:   s.loc.String(),
			Statistics: buckets,
			TotalUsers: total,
		}, nil
	})
}

type countWindow struct {
	from, to time.Time
	dst      *int64
}

// Summary returns today's, this week's and this month's registrations,
// last month's, the soft-delete breakdown and month-over-month growth.
func (s *StatisticsService) Summary(ctx context.Context) (model.Summary, error) {
	now := s.now().In(s.loc)
	today := startOfDay(now)
	key := s.key("summary", "", today.Format(dateLayout))

	return remember(ctx, s, key, func(ctx context.Context) (model.Summary, error) {
		week := startOfWeek(now)
		month := startOfMonth(now)
		lastMonth := month.AddDate(0, -1, 0)

		var out model.Summary
		windows := []countWindow{
			{today, today.AddDate(0, 0, 1), &out.Today},
			{week, week.AddDate(0, 0, 7), &out.ThisWeek},
			{month, month.AddDate(0, 1, 0), &out.ThisMonth},
			{lastMonth, month, &out.LastMonth},
		}
		for _, w := range windows {
			n, err := s.createdBetween(ctx, w.from, w.to)
			if err != nil {
				return model.Summary{}, err
			}
			*w.dst = n
		}

		scopes := []struct {
			scope model.Scope
			dst   *int64
		}{
			{model.ScopeWith, &out.Total},
			{model.ScopeActive, &out.Active},
			{model.ScopeOnly, &out.Deleted},
		}
		for _, sc := range scopes {
			n, err := s.count(ctx, sc.scope)
			if err != nil {
				return model.Summary{}, err
			}
			*sc.dst = n
		}

		out.GrowthVsLastMonth = ComputeGrowth(out.ThisMonth, out.LastMonth)
		out.Timezone = s.loc.String()
		return out, nil
	})
}

// parseRange validates from and to as YYYY-MM-DD dates in the configured
// zone and returns them with the inclusive day count.
func (s *StatisticsService) parseRange(fromStr, toStr string) (time.Time, time.Time, int, error) {
	fields := apperror.Fields{}
	parse := func(name, v string) time.Time {
		if v == "" {
			fields.Add(name, fmt.Sprintf("The %s field is required.", name))
			return time.Time{}
		}
		t, err := time.ParseInLocation(dateLayout, v, s.loc)
		if err != nil {
			fields.Add(name, fmt.Sprintf("The %s is not a valid date (YYYY-MM-DD).", name))
		}
		return t
	}
	from := parse("from", fromStr)
	to := parse("to", toStr)
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, 0, apperror.Validation(fields)
	}

	if to.Before(from) {
		fields.Add("to", "The to must be a date after or equal to from.")
		return time.Time{}, time.Time{}, 0, apperror.Validation(fields)
	}
	// Count calendar days on a zone without DST.
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	days := int(time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC).Sub(time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)).Hours()/24) + 1
	if days > MaxRangeDays {
		fields.Add("to", fmt.Sprintf("The range may not exceed %d days.", MaxRangeDays))
		return time.Time{}, time.Time{}, 0, apperror.Validation(fields)
	}
	return from, to, days, nil
}

// Detailed breaks [from, to] down day by day with a running total and
// compares it with the preceding period of the same length.
func (s *StatisticsService) Detailed(ctx context.Context, fromStr, toStr string) (model.DetailedStats, error) {
	from, to, days, err := s.parseRange(fromStr, toStr)
	if err != nil {
		return model.DetailedStats{}, err
	}
	key := s.key("detailed", from.Format(dateLayout)+"_"+to.Format(dateLayout), "")

	return remember(ctx, s, key, func(ctx context.Context) (model.DetailedStats, error) {
		end := to.AddDate(0, 0, 1)
		prevFrom := from.AddDate(0, 0, -days)
		prevTo := from.AddDate(0, 0, -1)

		counts, err := s.counts(ctx, repository.GroupDay, from, end)
		if err != nil {
			return model.DetailedStats{}, err
		}

		series := make([]model.DetailedDay, 0, days)
		var cumulative int64
		for d := from; d.Before(end); d = d.AddDate(0, 0, 1) {
			date := d.Format(dateLayout)
			cumulative += counts[date]
			series = append(series, model.DetailedDay{
				Date:            date,
				CreatedCount:    counts[date],
				CumulativeTotal: cumulative,
			})
		}

		previous, err := s.createdBetween(ctx, prevFrom, from)
		if err != nil {
			return model.DetailedStats{}, err
		}

		var totals model.Totals
		for _, sc := range []struct {
			scope model.Scope
			dst   *int64
		}{
			{model.ScopeWith, &totals.TotalUsers},
			{model.ScopeActive, &totals.ActiveUsers},
			{model.ScopeOnly, &totals.InactiveUsers},
		} {
			n, err := s.count(ctx, sc.scope)
			if err != nil {
				return model.DetailedStats{}, err
			}
			*sc.dst = n
		}

		return model.DetailedStats{
			Range:                  model.DateRange{From: from.Format(dateLayout), To: to.Format(dateLayout), Days: days},
			PreviousRange:          model.DateRange{From: prevFrom.Format(dateLayout), To: prevTo.Format(dateLayout)},
			Totals:                 totals,
			Statistics:             series,
			GrowthVsPreviousPeriod: ComputeGrowth(cumulative, previous),
			Timezone:               s.loc.String(),
		}, nil
	})
}
