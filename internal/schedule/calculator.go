// Package schedule computes when a trigger is next due. Everything here is a
// function of its inputs and the supplied "now"; nothing reads the clock or
// touches storage.
package schedule

import (
	"fmt"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/validation"
	"intent-scheduler/internal/models"

	"github.com/robfig/cron/v3"
)

const (
	// SoftBackoff delays a trigger after gate_blocked or condition_not_met.
	SoftBackoff = 5 * time.Minute
	// HardBackoff delays a trigger after a failed outcome.
	HardBackoff = 15 * time.Minute
	// CorruptCronBackoff is used when a stored cron schedule cannot be evaluated.
	CorruptCronBackoff = 15 * time.Minute
)

// Calculator maps (kind, schedule, outcome, now) to the next UTC due time.
type Calculator struct {
	logger logging.Logger
}

// NewCalculator creates a calculator that logs corrupt-schedule fallbacks to logger.
func NewCalculator(logger logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Calculator{logger: logger}
}

// InitialNextCheck returns the first due time of a freshly created or
// re-enabled trigger.
func (c *Calculator) InitialNextCheck(t *models.Trigger, now time.Time) *time.Time {
	now = now.UTC()

	switch s := t.Schedule.(type) {
	case models.CronSchedule:
		next, err := NextCronOccurrence(s, now.Add(-time.Nanosecond))
		if err != nil {
			return c.failClosedCronFallback(t, s, now, err)
		}
		return &next
	case models.IntervalSchedule:
		return at(now.Add(minutes(s.Minutes)))
	case models.OnceSchedule:
		return at(s.At.UTC())
	case models.CheckSchedule:
		return at(now)
	default:
		return c.unknownScheduleFallback(t, now)
	}
}

// NextCheckAfterFire returns the due time following a reported outcome. A nil
// result means the trigger has nothing further scheduled.
func (c *Calculator) NextCheckAfterFire(t *models.Trigger, status models.ExecutionStatus, now time.Time) *time.Time {
	now = now.UTC()

	switch status {
	case models.StatusFailed:
		return at(now.Add(HardBackoff))
	case models.StatusGateBlocked, models.StatusConditionNotMet:
		return at(now.Add(SoftBackoff))
	}

	switch s := t.Schedule.(type) {
	case models.CronSchedule:
		next, err := NextCronOccurrence(s, now)
		if err != nil {
			return c.failClosedCronFallback(t, s, now, err)
		}
		return &next
	case models.IntervalSchedule:
		return at(now.Add(minutes(s.Minutes)))
	case models.OnceSchedule:
		return nil
	case models.CheckSchedule:
		interval := s.IntervalMinutes
		if interval < models.MinCheckIntervalMinutes {
			interval = models.DefaultCheckInterval(t.Kind)
		}
		return at(now.Add(minutes(interval)))
	default:
		return c.unknownScheduleFallback(t, now)
	}
}

// failClosedCronFallback is the policy for stored cron schedules that cannot
// be evaluated: back off conservatively instead of failing the caller.
func (c *Calculator) failClosedCronFallback(t *models.Trigger, s models.CronSchedule, now time.Time, err error) *time.Time {
	c.logger.Warn("Unusable cron schedule, backing off",
		logging.Field{Key: "trigger_id", Value: t.ID},
		logging.Field{Key: "cron", Value: s.Expression},
		logging.Field{Key: "timezone", Value: s.Timezone},
		logging.Field{Key: "backoff", Value: CorruptCronBackoff.String()},
		logging.Err(err),
	)
	return at(now.Add(CorruptCronBackoff))
}

func (c *Calculator) unknownScheduleFallback(t *models.Trigger, now time.Time) *time.Time {
	c.logger.Warn("Trigger has no usable schedule, backing off",
		logging.Field{Key: "trigger_id", Value: t.ID},
		logging.Field{Key: "kind", Value: string(t.Kind)},
		logging.Field{Key: "schedule_type", Value: fmt.Sprintf("%T", t.Schedule)},
	)
	return at(now.Add(CorruptCronBackoff))
}

// ParseCron parses expr with the engine's cron dialect, located in tz.
func ParseCron(expr, tz string) (cron.Schedule, error) {
	loc, err := models.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	sched, err := validation.CronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if spec, ok := sched.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}
	return sched, nil
}

// NextCronOccurrence returns the first occurrence strictly after after, in UTC.
func NextCronOccurrence(s models.CronSchedule, after time.Time) (time.Time, error) {
	sched, err := ParseCron(s.Expression, s.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", s.Expression)
	}
	return next.UTC(), nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func at(t time.Time) *time.Time {
	return &t
}
