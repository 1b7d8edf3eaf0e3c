package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewInterval_TruncatesToDay(t *testing.T) {
	checkIn := time.Date(2026, time.June, 10, 15, 4, 5, 0, time.UTC)
	checkOut := time.Date(2026, time.June, 12, 9, 30, 0, 0, time.UTC)

	iv := NewInterval(checkIn, checkOut)

	assert.Equal(t, date(2026, time.June, 10), iv.CheckIn)
	assert.Equal(t, date(2026, time.June, 12), iv.CheckOut)
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a    Interval
		b    Interval
		want bool
	}{
		{
			name: "identical",
			a:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 12)),
			b:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 12)),
			want: true,
		},
		{
			name: "partial overlap",
			a:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 14)),
			b:    NewInterval(date(2026, time.June, 12), date(2026, time.June, 16)),
			want: true,
		},
		{
			name: "containment",
			a:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 20)),
			b:    NewInterval(date(2026, time.June, 12), date(2026, time.June, 14)),
			want: true,
		},
		{
			name: "back to back checkout equals checkin",
			a:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 12)),
			b:    NewInterval(date(2026, time.June, 12), date(2026, time.June, 14)),
			want: false,
		},
		{
			name: "disjoint",
			a:    NewInterval(date(2026, time.June, 10), date(2026, time.June, 12)),
			b:    NewInterval(date(2026, time.June, 20), date(2026, time.June, 22)),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))

			// Overlap is symmetric.
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestInterval_Nights(t *testing.T) {
	iv := NewInterval(date(2026, time.June, 10), date(2026, time.June, 13))

	assert.Equal(t, 3, iv.Nights())
}

func TestInterval_IsValid(t *testing.T) {
	require.True(t, NewInterval(date(2026, time.June, 10), date(2026, time.June, 11)).IsValid())
	require.False(t, NewInterval(date(2026, time.June, 10), date(2026, time.June, 10)).IsValid())
	require.False(t, NewInterval(date(2026, time.June, 12), date(2026, time.June, 10)).IsValid())
}

func TestTruncateToDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	ts := time.Date(2026, time.June, 10, 2, 30, 0, 0, loc)

	got := TruncateToDay(ts)

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, date(2026, time.June, 9), got)
}
