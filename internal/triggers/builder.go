package triggers

import (
	"fmt"
	"strings"
	"time"

	"intent-scheduler/internal/models"
)

// Build turns a validated definition into a trigger with no scheduling
// state. The caller sets NextCheck.
func Build(def *models.TriggerDefinition, id string, now time.Time) (*models.Trigger, error) {
	now = now.UTC()
	t := &models.Trigger{
		ID:            id,
		UserID:        def.UserID,
		Name:          strings.TrimSpace(def.Name),
		Description:   def.Description,
		Kind:          def.Kind,
		Action:        def.Action,
		ExpiresAt:     utcPtr(def.ExpiresAt),
		MaxExecutions: def.MaxExecutions,
		Enabled:       def.IsEnabled(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sched, err := buildSchedule(def)
	if err != nil {
		return nil, err
	}
	t.Schedule = sched

	if def.Kind.IsCondition() {
		cond, err := buildCondition(def.Kind, def.Condition)
		if err != nil {
			return nil, err
		}
		t.Condition = cond
		t.CooldownHours = models.DefaultCooldownHours
		t.FireMode = models.FireModeRecurring
		if c := def.Condition; c != nil {
			if c.CooldownHours != nil {
				t.CooldownHours = *c.CooldownHours
			}
			if c.FireMode != "" {
				t.FireMode = models.FireMode(c.FireMode)
			}
		}
	}

	if !t.Enabled {
		t.Disable(models.DisabledManual)
	}
	return t, nil
}

func buildSchedule(def *models.TriggerDefinition) (models.Schedule, error) {
	s := def.Schedule
	switch def.Kind {
	case models.KindCron:
		return models.CronSchedule{Expression: strings.TrimSpace(s.Cron), Timezone: timezoneOrUTC(s.Timezone)}, nil
	case models.KindInterval:
		if s.IntervalMinutes == nil {
			return nil, fmt.Errorf("interval trigger has no interval_minutes")
		}
		return models.IntervalSchedule{Minutes: *s.IntervalMinutes}, nil
	case models.KindOnce:
		loc, err := models.LoadLocation(s.Timezone)
		if err != nil {
			return nil, err
		}
		instant, err := models.ParseInstant(s.At, loc)
		if err != nil {
			return nil, err
		}
		return models.OnceSchedule{At: instant, Timezone: timezoneOrUTC(s.Timezone)}, nil
	case models.KindPrice, models.KindSilence, models.KindPortfolio:
		minutes := models.DefaultCheckInterval(def.Kind)
		if s.CheckIntervalMinutes != nil {
			minutes = *s.CheckIntervalMinutes
		}
		return models.CheckSchedule{IntervalMinutes: minutes}, nil
	}
	return nil, fmt.Errorf("unknown trigger kind %q", def.Kind)
}

// buildCondition prefers the expression when one is present.
func buildCondition(kind models.Kind, spec *models.ConditionSpec) (models.Condition, error) {
	if spec == nil {
		return nil, fmt.Errorf("%s trigger has no condition", kind)
	}
	if spec.Expression != "" {
		return parseExpression(kind, spec.Expression)
	}

	switch kind {
	case models.KindPrice:
		if spec.Value == nil {
			return nil, fmt.Errorf("price condition has no value")
		}
		return models.PriceCondition{
			Ticker:   strings.ToUpper(strings.TrimSpace(spec.Ticker)),
			Operator: spec.Operator,
			Value:    *spec.Value,
		}, nil
	case models.KindSilence:
		if spec.ThresholdHours == nil {
			return nil, fmt.Errorf("silence condition has no threshold_hours")
		}
		return models.SilenceCondition{ThresholdHours: *spec.ThresholdHours}, nil
	}
	return nil, fmt.Errorf("%s condition requires an expression", kind)
}

func timezoneOrUTC(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return "UTC"
	}
	return tz
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
