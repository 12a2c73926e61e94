package model

// Growth compares a current period count with the preceding one.
type Growth struct {
	Current    int64   `json:"current"`
	Previous   int64   `json:"previous"`
	Percentage float64 `json:"percentage"`
	Direction  string  `json:"direction"` // up | down | equal
}

type DailyBucket struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
}

type DailyStats struct {
	Period     string        `json:"period"`
	Days       int           `json:"days"`
	Timezone   string        `json:"timezone"`
	Statistics []DailyBucket `json:"statistics"`
	TotalUsers int64         `json:"total_users"`
}

type WeeklyBucket struct {
	Year      int    `json:"year"`
	Week      int    `json:"week"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Period    string `json:"period"`
	Total     int64  `json:"total"`
}

type WeeklyStats struct {
	Period     string         `json:"period"`
	Weeks      int            `json:"weeks"`
	Timezone   string         `json:"timezone"`
	Statistics []WeeklyBucket `json:"statistics"`
	TotalUsers int64          `json:"total_users"`
}

type MonthlyBucket struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	Total     int64  `json:"total"`
}

type MonthlyStats struct {
	Period     string          `json:"period"`
	Months     int             `json:"months"`
	Timezone   string          `json:"timezone"`
	Statistics []MonthlyBucket `json:"statistics"`
	TotalUsers int64           `json:"total_users"`
}

type Summary struct {
	Today             int64  `json:"today"`
	ThisWeek          int64  `json:"this_week"`
	ThisMonth         int64  `json:"this_month"`
	LastMonth         int64  `json:"last_month"`
	Total             int64  `json:"total"`
	Active            int64  `json:"active"`
	Deleted           int64  `json:"deleted"`
	GrowthVsLastMonth Growth `json:"growth_vs_last_month"`
	Timezone          string `json:"timezone"`
}

type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days,omitempty"`
}

type Totals struct {
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users"`
	InactiveUsers int64 `json:"inactive_users"`
}

type DetailedDay struct {
	Date            string `json:"date"`
	CreatedCount    int64  `json:"created_count"`
	CumulativeTotal int64  `json:"cumulative_total"`
}

// DetailedStats is the day-by-day breakdown of an arbitrary date range.
type DetailedStats struct {
	Range                  DateRange     `json:"range"`
	PreviousRange          DateRange     `json:"previous_range"`
	Totals                 Totals        `json:"totals"`
	Statistics             []DetailedDay `json:"statistics"`
	GrowthVsPreviousPeriod Growth        `json:"growth_vs_previous_period"`
	Timezone               string        `json:"timezone"`
}
