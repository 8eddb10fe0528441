package scheduler

import (
	"testing"
	"time"
)

func TestWeekly_Next(t *testing.T) {
	w := Weekly{Day: time.Wednesday, Hour: 3, Minute: 0, Location: time.UTC}

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "earlier in week",
			after: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), // Monday
			want:  time.Date(2026, 10, 21, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "same day before slot",
			after: time.Date(2026, 10, 21, 2, 59, 0, 0, time.UTC),
			want:  time.Date(2026, 10, 21, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "exactly at slot rolls to next week",
			after: time.Date(2026, 10, 21, 3, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 10, 28, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "later in week",
			after: time.Date(2026, 10, 24, 9, 0, 0, 0, time.UTC), // Saturday
			want:  time.Date(2026, 10, 28, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.Next(tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestWeekly_NextHonorsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	w := Weekly{Day: time.Wednesday, Hour: 3, Location: ny}

	got := w.Next(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, 10, 21, 3, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestDaily_Next(t *testing.T) {
	d := Daily{Hour: 4}

	got := d.Next(time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}

	got = d.Next(time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 10, 20, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next at slot = %v, want %v", got, want)
	}
}

func TestEvery_Next(t *testing.T) {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	if got := Every(time.Minute).Next(start); !got.Equal(start.Add(time.Minute)) {
		t.Errorf("Next = %v", got)
	}
}
