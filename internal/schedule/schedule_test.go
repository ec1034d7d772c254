package schedule

import (
	"testing"
	"time"
)

func TestNextHourBoundary(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid hour",
			now:  time.Date(2026, 3, 1, 14, 37, 12, 0, time.UTC),
			want: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the hour rolls to the next",
			now:  time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
		},
		{
			name: "last hour of the day crosses midnight",
			now:  time.Date(2026, 3, 1, 23, 45, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last hour of the year",
			now:  time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "one nanosecond past the hour",
			now:  time.Date(2026, 3, 1, 14, 0, 0, 1, time.UTC),
			want: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "half hour utc offset lands on the local hour",
			now:  time.Date(2026, 3, 1, 14, 37, 0, 0, time.FixedZone("IST", 5*3600+1800)),
			want: time.Date(2026, 3, 1, 15, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextHourBoundary(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextHourBoundary(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestUntilNextHour(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 37, 0, 0, time.UTC)

	if got := UntilNextHour(now); got != 23*time.Minute {
		t.Errorf("UntilNextHour(%v) = %v, want 23m", now, got)
	}

	onTheHour := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	if got := UntilNextHour(onTheHour); got != time.Hour {
		t.Errorf("UntilNextHour(%v) = %v, want 1h", onTheHour, got)
	}
}
