package ratelimit

import "time"

// window is one of the two granularities spec.md §4.9 floors windowStart to.
type window string

const (
	windowDay  window = "day"
	windowHour window = "hour"
)

func (w window) bounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch w {
	case windowDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	default:
		start = now.Truncate(time.Hour)
		end = start.Add(time.Hour)
	}
	return start, end
}
