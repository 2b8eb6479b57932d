package scheduler_test

import (
	"testing"
	"time"

	"botjobs/internal/scheduler"
)

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"five fields", "0 6 * * *", false},
		{"six fields with seconds", "30 0 6 * * *", false},
		{"descriptor", "@daily", false},
		{"every descriptor", "@every 1h30m", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"garbage", "not a cron", true},
		{"too many fields", "* * * * * * *", true},
		{"out of range minute", "61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := scheduler.ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %t", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	next, err := scheduler.NextRun("0 6 * * *", from)
	if err != nil {
		t.Fatalf("NextRun returned error: %v", err)
	}
	want := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}

	if _, err := scheduler.NextRun("bogus", from); err == nil {
		t.Error("invalid expression was accepted")
	}
}

func TestHasSecondsField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want bool
	}{
		{"0 6 * * *", false},
		{"30 0 6 * * *", true},
		{"@daily", false},
		{"@every 1h", false},
		{"  15 * * * * 1-5  ", true},
	}

	for _, tt := range tests {
		if got := scheduler.HasSecondsField(tt.expr); got != tt.want {
			t.Errorf("HasSecondsField(%q) = %t, want %t", tt.expr, got, tt.want)
		}
	}
}
