package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard five-field cron expressions, an optional
// leading seconds field, and descriptors like @daily.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks that expr is a parseable cron expression. Job
// definitions are validated before they are persisted so the dispatcher
// never loads an expression it cannot register.
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("invalid cron expression: empty schedule")
	}
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun reports when expr would next fire after from. Used by the admin
// listing to preview upcoming dispatches.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// HasSecondsField reports whether expr uses the six-field form with a
// leading seconds column. Descriptors count as five-field.
func HasSecondsField(expr string) bool {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return false
	}
	return len(strings.Fields(expr)) >= 6
}
