package triggers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/validation"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/schedule"
)

const maxNameLength = 200

// Checks carries the state a definition is validated against.
type Checks struct {
	Now time.Time

	// Quota enables the enabled-trigger limit check against EnabledCount,
	// the number of the user's enabled triggers not counting the candidate.
	Quota        bool
	EnabledCount int

	// OnceFuture requires a once trigger's instant to be after Now.
	OnceFuture bool
}

// Validator checks candidate trigger definitions. It reports every problem
// it finds rather than stopping at the first.
type Validator struct {
	maxEnabled int
	logger     logging.Logger
}

// NewValidator creates a Validator enforcing maxEnabled enabled triggers per user.
func NewValidator(maxEnabled int, logger logging.Logger) *Validator {
	if maxEnabled <= 0 {
		maxEnabled = models.MaxEnabledTriggersPerUser
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Validator{maxEnabled: maxEnabled, logger: logger}
}

// Validate runs every check on def and returns the accumulated result.
func (v *Validator) Validate(def *models.TriggerDefinition, c Checks) *validation.FluentValidator {
	fv := validation.NewFluentValidator()
	now := c.Now.UTC()

	if c.Quota && def.IsEnabled() && c.EnabledCount >= v.maxEnabled {
		fv.Addf("quota", "trigger limit reached: %d of %d enabled triggers in use; disable or delete one first",
			c.EnabledCount, v.maxEnabled)
	}

	fv.RequireString(def.UserID, "user_id").
		RequireString(def.Name, "name").
		RequireMaxLength(def.Name, maxNameLength, "name")

	if !def.Kind.Valid() {
		fv.RequireOneOf(string(def.Kind), models.KindNames(), "kind")
	} else {
		switch def.Kind {
		case models.KindCron:
			v.checkCron(fv, def.Schedule, now)
		case models.KindInterval:
			checkInterval(fv, def.Schedule)
		case models.KindOnce:
			checkOnce(fv, def.Schedule, now, c.OnceFuture)
		default:
			v.checkCondition(fv, def)
		}
	}

	if def.MaxExecutions != nil {
		fv.RequireMin(*def.MaxExecutions, 1, "max_executions")
	}
	if len(def.Action) > 0 {
		fv.Validate("action", func() error { return checkAction(def.Action) })
	}

	return fv
}

func (v *Validator) checkCron(fv *validation.FluentValidator, s models.ScheduleSpec, now time.Time) {
	tzOK := checkTimezone(fv, s.Timezone)
	if strings.TrimSpace(s.Cron) == "" {
		fv.Addf("schedule.cron", "schedule.cron is required for cron triggers (e.g. \"0 9 * * *\")")
		return
	}

	tz := s.Timezone
	if !tzOK {
		tz = ""
	}
	freq, err := schedule.CronFrequency(models.CronSchedule{Expression: s.Cron, Timezone: tz}, now)
	if err != nil {
		fv.Addf("schedule.cron", "schedule.cron %q is not a valid cron expression (five fields, e.g. \"0 9 * * 1-5\")", s.Cron)
		return
	}
	if freq.TooFrequent() {
		fv.Addf("schedule.cron", "schedule.cron %q fires every %s; occurrences must be at least %s apart",
			s.Cron, freq.Spacing, schedule.MinCronSpacing)
	}
	if freq.OverDailyCap() {
		fv.Addf("schedule.cron", "schedule.cron %q fires more than %d times in 24 hours", s.Cron, schedule.MaxCronFiresPerDay)
	}
}

func checkInterval(fv *validation.FluentValidator, s models.ScheduleSpec) {
	checkTimezone(fv, s.Timezone)
	if s.IntervalMinutes == nil {
		fv.Addf("schedule.interval_minutes", "schedule.interval_minutes is required for interval triggers")
		return
	}
	fv.RequireMin(*s.IntervalMinutes, models.MinIntervalMinutes, "schedule.interval_minutes")
}

func checkOnce(fv *validation.FluentValidator, s models.ScheduleSpec, now time.Time, future bool) {
	tzOK := checkTimezone(fv, s.Timezone)
	if strings.TrimSpace(s.At) == "" {
		fv.Addf("schedule.at", "schedule.at is required for once triggers")
		return
	}
	if !tzOK {
		return
	}

	loc, _ := models.LoadLocation(s.Timezone)
	instant, err := models.ParseInstant(s.At, loc)
	if err != nil {
		fv.Addf("schedule.at", "schedule.at: %v", err)
		return
	}
	if future && !instant.After(now) {
		fv.Addf("schedule.at", "schedule.at %s is not in the future; once triggers must fire after now (%s)",
			instant.Format(time.RFC3339), now.Format(time.RFC3339))
	}
}

// checkTimezone reports whether tz is usable. Empty means UTC.
func checkTimezone(fv *validation.FluentValidator, tz string) bool {
	if tz == "" {
		return true
	}
	before := len(fv.Errors())
	fv.RequireTimezone(tz, "schedule.timezone")
	return len(fv.Errors()) == before
}

func (v *Validator) checkCondition(fv *validation.FluentValidator, def *models.TriggerDefinition) {
	checkTimezone(fv, def.Schedule.Timezone)
	if m := def.Schedule.CheckIntervalMinutes; m != nil {
		fv.RequireMin(*m, models.MinCheckIntervalMinutes, "schedule.check_interval_minutes")
	}

	cond := def.Condition
	if cond == nil {
		fv.Addf("condition", "condition is required for %s triggers", def.Kind)
		return
	}

	if cond.CooldownHours != nil {
		fv.RequireRange(*cond.CooldownHours, models.MinCooldownHours, models.MaxCooldownHours, "condition.cooldown_hours")
	}
	if cond.FireMode != "" {
		fv.RequireOneOf(cond.FireMode, []string{string(models.FireModeOnce), string(models.FireModeRecurring)}, "condition.fire_mode")
	}

	if cond.Expression != "" {
		if cond.HasStructured() {
			v.logger.Warn("Condition has both an expression and structured fields, using the expression",
				logging.String("kind", string(def.Kind)),
				logging.String("name", def.Name),
				logging.String("expression", cond.Expression),
			)
		}
		fv.Validate("condition.expression", func() error {
			_, err := parseExpression(def.Kind, cond.Expression)
			return err
		})
		return
	}

	switch def.Kind {
	case models.KindPrice:
		if cond.Ticker == "" && cond.Operator == "" && cond.Value == nil {
			fv.Addf("condition", "price triggers need ticker, operator and value, or an expression like \"NVDA < 130\"")
			return
		}
		if !models.ValidTicker(cond.Ticker) {
			fv.Addf("condition.ticker", "condition.ticker %q is not a valid ticker symbol", cond.Ticker)
		}
		fv.RequireOneOf(cond.Operator, models.Operators, "condition.operator")
		if cond.Value == nil {
			fv.Addf("condition.value", "condition.value is required for price triggers")
		}
	case models.KindSilence:
		if cond.ThresholdHours == nil {
			fv.Addf("condition", "silence triggers need threshold_hours or an expression like \"inactive_hours > 48\"")
			return
		}
		if *cond.ThresholdHours <= 0 {
			fv.Addf("condition.threshold_hours", "condition.threshold_hours must be positive (got %g)", *cond.ThresholdHours)
		}
	case models.KindPortfolio:
		fv.Addf("condition.expression", "portfolio triggers need an expression; expected %s", models.PortfolioExpressionFormat)
	}
}

func parseExpression(kind models.Kind, expr string) (models.Condition, error) {
	switch kind {
	case models.KindPrice:
		return models.ParsePriceExpression(expr)
	case models.KindSilence:
		return models.ParseSilenceExpression(expr)
	case models.KindPortfolio:
		return models.ParsePortfolioExpression(expr)
	}
	return nil, fmt.Errorf("%s triggers do not take a condition expression", kind)
}

func checkAction(raw json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("action must be a JSON object")
	}
	return nil
}
