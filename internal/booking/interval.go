package booking

import "time"

// Interval is a half-open occupancy range [CheckIn, CheckOut).
// Both bounds are date-granular: UTC midnight of the stay day.
type Interval struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

func NewInterval(checkIn, checkOut time.Time) Interval {
	return Interval{
		CheckIn:  TruncateToDay(checkIn),
		CheckOut: TruncateToDay(checkOut),
	}
}

func TruncateToDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether two half-open intervals share at least one night.
// Back-to-back stays (a.CheckOut == b.CheckIn) do not overlap, so same-day
// turnover is always allowed.
func (i Interval) Overlaps(other Interval) bool {
	return i.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(i.CheckOut)
}

// Contains reports whether other lies fully inside i.
func (i Interval) Contains(other Interval) bool {
	return !other.CheckIn.Before(i.CheckIn) && !other.CheckOut.After(i.CheckOut)
}

// Nights returns the number of nights covered by the interval.
func (i Interval) Nights() int {
	return int(i.CheckOut.Sub(i.CheckIn).Hours() / 24) //nolint:gomnd
}

func (i Interval) IsValid() bool {
	return i.CheckIn.Before(i.CheckOut)
}
