package domain

import "time"

// QuotaWindowStart returns the most recent quota-reset boundary at or before
// now. The boundary recurs daily at resetHour (local time of now).
func QuotaWindowStart(now time.Time, resetHour int) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, now.Location())
	if now.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// QuotaWindowEnd returns the next reset boundary after the given window start.
func QuotaWindowEnd(windowStart time.Time) time.Time {
	return windowStart.AddDate(0, 0, 1)
}
