package schedule

import (
	"bytes"
	"testing"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC) // 10:00 PST, the day before DST starts

func newTestCalculator(t *testing.T) (*Calculator, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.DebugLevel, Output: &buf})
	require.NoError(t, err)
	return NewCalculator(logger), &buf
}

func TestInitialNextCheck(t *testing.T) {
	calc, _ := newTestCalculator(t)
	onceAt := fixedNow.Add(72 * time.Hour)

	tests := []struct {
		name    string
		trigger *models.Trigger
		want    time.Time
	}{
		{
			name:    "cron in UTC",
			trigger: &models.Trigger{Kind: models.KindCron, Schedule: models.CronSchedule{Expression: "30 18 * * *", Timezone: "UTC"}},
			want:    time.Date(2026, 3, 7, 18, 30, 0, 0, time.UTC),
		},
		{
			name:    "cron due exactly now is included",
			trigger: &models.Trigger{Kind: models.KindCron, Schedule: models.CronSchedule{Expression: "0 18 * * *", Timezone: "UTC"}},
			want:    fixedNow,
		},
		{
			name:    "interval",
			trigger: &models.Trigger{Kind: models.KindInterval, Schedule: models.IntervalSchedule{Minutes: 30}},
			want:    fixedNow.Add(30 * time.Minute),
		},
		{
			name:    "once",
			trigger: &models.Trigger{Kind: models.KindOnce, Schedule: models.OnceSchedule{At: onceAt}},
			want:    onceAt,
		},
		{
			name:    "price is checked immediately",
			trigger: &models.Trigger{Kind: models.KindPrice, Schedule: models.CheckSchedule{IntervalMinutes: 5}},
			want:    fixedNow,
		},
		{
			name:    "portfolio is checked immediately",
			trigger: &models.Trigger{Kind: models.KindPortfolio, Schedule: models.CheckSchedule{IntervalMinutes: 15}},
			want:    fixedNow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.InitialNextCheck(tt.trigger, fixedNow)
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s, got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestInitialNextCheck_LosAngelesAcrossDST(t *testing.T) {
	calc, _ := newTestCalculator(t)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	trigger := &models.Trigger{
		Kind:     models.KindCron,
		Schedule: models.CronSchedule{Expression: "0 9 * * *", Timezone: "America/Los_Angeles"},
	}

	got := calc.InitialNextCheck(trigger, fixedNow)
	require.NotNil(t, got)

	local := got.In(la)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.Equal(t, 8, local.Day(), "next calendar day")
	assert.Equal(t, time.Date(2026, 3, 8, 16, 0, 0, 0, time.UTC), *got, "09:00 PDT is 16:00 UTC")
}

func TestNextCheckAfterFire_Success(t *testing.T) {
	calc, _ := newTestCalculator(t)

	tests := []struct {
		name    string
		trigger *models.Trigger
		want    *time.Time
	}{
		{
			name:    "cron moves to next occurrence",
			trigger: &models.Trigger{Kind: models.KindCron, Schedule: models.CronSchedule{Expression: "0 18 * * *", Timezone: "UTC"}},
			want:    ptr(fixedNow.Add(24 * time.Hour)),
		},
		{
			name:    "interval",
			trigger: &models.Trigger{Kind: models.KindInterval, Schedule: models.IntervalSchedule{Minutes: 45}},
			want:    ptr(fixedNow.Add(45 * time.Minute)),
		},
		{
			name:    "once has nothing further",
			trigger: &models.Trigger{Kind: models.KindOnce, Schedule: models.OnceSchedule{At: fixedNow}},
			want:    nil,
		},
		{
			name:    "price uses its check interval",
			trigger: &models.Trigger{Kind: models.KindPrice, Schedule: models.CheckSchedule{IntervalMinutes: 10}},
			want:    ptr(fixedNow.Add(10 * time.Minute)),
		},
		{
			name:    "portfolio below minimum falls back to its default",
			trigger: &models.Trigger{Kind: models.KindPortfolio, Schedule: models.CheckSchedule{IntervalMinutes: 0}},
			want:    ptr(fixedNow.Add(15 * time.Minute)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.NextCheckAfterFire(tt.trigger, models.StatusSuccess, fixedNow)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNextCheckAfterFire_Backoff(t *testing.T) {
	calc, _ := newTestCalculator(t)

	triggers := []*models.Trigger{
		{Kind: models.KindCron, Schedule: models.CronSchedule{Expression: "0 9 * * *", Timezone: "UTC"}},
		{Kind: models.KindInterval, Schedule: models.IntervalSchedule{Minutes: 60}},
		{Kind: models.KindOnce, Schedule: models.OnceSchedule{At: fixedNow}},
		{Kind: models.KindPrice, Schedule: models.CheckSchedule{IntervalMinutes: 5}},
		{Kind: models.KindSilence, Schedule: models.CheckSchedule{IntervalMinutes: 5}},
		{Kind: models.KindPortfolio, Schedule: models.CheckSchedule{IntervalMinutes: 15}},
	}
	statuses := map[models.ExecutionStatus]time.Duration{
		models.StatusFailed:          15 * time.Minute,
		models.StatusGateBlocked:     5 * time.Minute,
		models.StatusConditionNotMet: 5 * time.Minute,
	}

	for _, tr := range triggers {
		for status, delay := range statuses {
			t.Run(string(tr.Kind)+"/"+string(status), func(t *testing.T) {
				got := calc.NextCheckAfterFire(tr, status, fixedNow)
				require.NotNil(t, got)
				assert.Equal(t, fixedNow.Add(delay), *got)
			})
		}
	}
}

func TestCorruptCronFailsClosed(t *testing.T) {
	calc, logs := newTestCalculator(t)

	for _, s := range []models.CronSchedule{
		{Expression: "not a cron", Timezone: "UTC"},
		{Expression: "0 9 * * *", Timezone: "Nowhere/Special"},
		{Expression: "0 0 30 2 *", Timezone: "UTC"},
	} {
		tr := &models.Trigger{ID: "t-corrupt", Kind: models.KindCron, Schedule: s}

		got := calc.NextCheckAfterFire(tr, models.StatusSuccess, fixedNow)
		require.NotNil(t, got, s.Expression)
		assert.Equal(t, fixedNow.Add(CorruptCronBackoff), *got)

		got = calc.InitialNextCheck(tr, fixedNow)
		require.NotNil(t, got)
		assert.Equal(t, fixedNow.Add(CorruptCronBackoff), *got)
	}

	assert.Contains(t, logs.String(), "Unusable cron schedule")
	assert.Contains(t, logs.String(), "t-corrupt")
}

func TestMissingScheduleFallsBack(t *testing.T) {
	calc, _ := newTestCalculator(t)
	got := calc.NextCheckAfterFire(&models.Trigger{Kind: models.KindCron}, models.StatusSuccess, fixedNow)
	require.NotNil(t, got)
	assert.Equal(t, fixedNow.Add(CorruptCronBackoff), *got)
}

func TestCalculatorIsDeterministic(t *testing.T) {
	calc, _ := newTestCalculator(t)
	tr := &models.Trigger{Kind: models.KindCron, Schedule: models.CronSchedule{Expression: "15 */3 * * 1-5", Timezone: "Europe/Berlin"}}

	first := calc.NextCheckAfterFire(tr, models.StatusSuccess, fixedNow)
	for i := 0; i < 10; i++ {
		assert.Equal(t, *first, *calc.NextCheckAfterFire(tr, models.StatusSuccess, fixedNow))
	}
}

func TestCronFrequency(t *testing.T) {
	tests := []struct {
		expr         string
		tooFrequent  bool
		overDailyCap bool
	}{
		{"* * * * *", false, true},
		{"*/2 * * * *", false, true},
		{"*/15 * * * *", false, false},
		{"*/14 * * * *", false, true},
		{"0 9 * * *", false, false},
		{"@every 30s", true, true},
		{"@hourly", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := CronFrequency(models.CronSchedule{Expression: tt.expr, Timezone: "UTC"}, fixedNow.Add(7*time.Minute+30*time.Second))
			require.NoError(t, err)
			assert.Equal(t, tt.tooFrequent, f.TooFrequent(), "spacing %s", f.Spacing)
			assert.Equal(t, tt.overDailyCap, f.OverDailyCap(), "fires %d", f.FiresInWindow)
		})
	}
}

func TestCronFrequency_ExactCount(t *testing.T) {
	for _, now := range []time.Time{fixedNow, fixedNow.Add(7 * time.Minute)} {
		f, err := CronFrequency(models.CronSchedule{Expression: "*/15 * * * *", Timezone: "UTC"}, now)
		require.NoError(t, err)
		assert.Equal(t, 96, f.FiresInWindow)
		assert.Equal(t, 15*time.Minute, f.Spacing)
	}
}

func TestCronFrequency_Invalid(t *testing.T) {
	_, err := CronFrequency(models.CronSchedule{Expression: "61 * * * *", Timezone: "UTC"}, fixedNow)
	assert.Error(t, err)
}

func ptr(t time.Time) *time.Time { return &t }
