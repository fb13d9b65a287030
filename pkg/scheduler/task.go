package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ParseSchedule parses a standard 5-field cron expression or a descriptor
// such as "@hourly" or "@every 30s".
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronlib.ParseStandard(strings.TrimSpace(expr))
}

// Task runs Run once per slot. Slots come either from Interval, as
// multiples of Interval from the zero time, or from Schedule, a cron
// expression evaluated in UTC. Either way every instance computes the same
// boundaries.
type Task struct {
	Name     string
	Interval time.Duration
	Schedule string
	// LockTTL bounds how long a crashed instance keeps the slot. Zero uses the
	// runtime default.
	LockTTL time.Duration
	Run     func(ctx context.Context) error

	cron cronlib.Schedule
}

// Validate verifies required fields.
func (t Task) Validate() error {
	_, err := t.compile()
	return err
}

// compile validates t and parses its schedule.
func (t Task) compile() (Task, error) {
	if strings.TrimSpace(t.Name) == "" {
		return t, schedulerError(ErrValidation, "task name is required")
	}
	switch {
	case t.Schedule != "" && t.Interval != 0:
		return t, schedulerError(ErrValidation, "task needs an interval or a schedule, not both")
	case t.Schedule != "":
		sched, err := ParseSchedule(t.Schedule)
		if err != nil {
			return t, schedulerError(ErrValidation, "invalid task schedule: "+err.Error())
		}
		t.cron = sched
	case t.Interval <= 0:
		return t, schedulerError(ErrValidation, "task interval must be > 0")
	}
	if t.LockTTL < 0 {
		return t, schedulerError(ErrValidation, "task lock ttl cannot be negative")
	}
	if t.Run == nil {
		return t, schedulerError(ErrValidation, "task run function is required")
	}
	return t, nil
}

// nextSlot returns the first slot boundary strictly after now.
func (t Task) nextSlot(now time.Time) time.Time {
	if t.cron != nil {
		return t.cron.Next(now.UTC())
	}
	return now.Truncate(t.Interval).Add(t.Interval)
}

func (t Task) lockKey(slot time.Time) string {
	return t.Name + ":" + strconv.FormatInt(slot.UnixMilli(), 10)
}
