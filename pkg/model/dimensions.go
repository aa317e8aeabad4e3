// pkg/model/dimensions.go
package model

import (
	"fmt"
	"time"
)

// DateKeyFormat is the wire format of date keys throughout the event log
// and the date dimension.
const DateKeyFormat = "2006-01-02"

// TimeKeyFormat is the wire format of time-of-day keys in the event log.
const TimeKeyFormat = "15:04:05"

// Horizon constants for the date dimension window
const (
	// DateDimBackfillDays is how far back the dimension reaches on creation
	DateDimBackfillDays = 730
	// DateDimCreateForwardDays is how far forward the dimension reaches on creation
	DateDimCreateForwardDays = 730
	// DateDimRequiredForwardDays is the minimum forward cover; falling below
	// it triggers an incremental extension
	DateDimRequiredForwardDays = 365
)

// TimeDimRowCount is the fixed cardinality of the time dimension
const TimeDimRowCount = 24 * 60

// DateDimRow is one day of the date dimension
type DateDimRow struct {
	DateKey    string    `db:"date_key" json:"date_key"`
	DateValue  time.Time `db:"date_value" json:"date_value"`
	Year       int       `db:"year" json:"year"`
	Month      int       `db:"month" json:"month"`
	Day        int       `db:"day" json:"day"`
	Quarter    int       `db:"quarter" json:"quarter"`
	WeekOfYear int       `db:"week_of_year" json:"week_of_year"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	MonthName  string    `db:"month_name" json:"month_name"`
	DayName    string    `db:"day_name" json:"day_name"`
	IsWeekend  bool      `db:"is_weekend" json:"is_weekend"`
}

// Row returns the row's values in DateDimSchema column order
func (r DateDimRow) Row() []any {
	return []any{
		r.DateKey, r.DateValue, r.Year, r.Month, r.Day, r.Quarter,
		r.WeekOfYear, r.DayOfWeek, r.MonthName, r.DayName, r.IsWeekend,
	}
}

// NewDateDimRow derives all attributes for a single calendar date
func NewDateDimRow(d time.Time) DateDimRow {
	d = truncateToDay(d)
	_, isoWeek := d.ISOWeek()
	wd := d.Weekday()

	return DateDimRow{
		DateKey:    d.Format(DateKeyFormat),
		DateValue:  d,
		Year:       d.Year(),
		Month:      int(d.Month()),
		Day:        d.Day(),
		Quarter:    (int(d.Month())-1)/3 + 1,
		WeekOfYear: isoWeek,
		// 1 = Sunday .. 7 = Saturday
		DayOfWeek: int(wd) + 1,
		MonthName: d.Month().String(),
		DayName:   wd.String(),
		IsWeekend: wd == time.Sunday || wd == time.Saturday,
	}
}

// DateRange generates dimension rows for every day from start through end
// inclusive
func DateRange(start, end time.Time) []DateDimRow {
	start = truncateToDay(start)
	end = truncateToDay(end)

	var rows []DateDimRow
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		rows = append(rows, NewDateDimRow(d))
	}
	return rows
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeDimRow is one minute of the time dimension
type TimeDimRow struct {
	TimeKey         string `db:"time_key" json:"time_key"`
	Hour            int    `db:"hour" json:"hour"`
	Minute          int    `db:"minute" json:"minute"`
	HourGroup       string `db:"hour_group" json:"hour_group"`
	TimePeriod      string `db:"time_period" json:"time_period"`
	IsBusinessHours bool   `db:"is_business_hours" json:"is_business_hours"`
}

// Row returns the row's values in TimeDimSchema column order
func (r TimeDimRow) Row() []any {
	return []any{r.TimeKey, r.Hour, r.Minute, r.HourGroup, r.TimePeriod, r.IsBusinessHours}
}

// TimePeriod buckets an hour into Night/Morning/Afternoon/Evening
func TimePeriod(hour int) string {
	switch {
	case hour < 6:
		return "Night"
	case hour < 12:
		return "Morning"
	case hour < 18:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// IsBusinessHours reports whether the hour falls inside 09:00-17:00
func IsBusinessHours(hour int) bool {
	return hour >= 9 && hour < 17
}

// TimeRange generates the full fixed-cardinality time dimension, one row per
// minute of the day
func TimeRange() []TimeDimRow {
	rows := make([]TimeDimRow, 0, TimeDimRowCount)
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute++ {
			rows = append(rows, TimeDimRow{
				TimeKey:         fmt.Sprintf("%02d:%02d:00", hour, minute),
				Hour:            hour,
				Minute:          minute,
				HourGroup:       fmt.Sprintf("%02d:00", hour),
				TimePeriod:      TimePeriod(hour),
				IsBusinessHours: IsBusinessHours(hour),
			})
		}
	}
	return rows
}
