package schedule

import (
	"time"

	"intent-scheduler/internal/models"
)

const (
	// MinCronSpacing is the smallest gap allowed between consecutive occurrences.
	MinCronSpacing = 60 * time.Second
	// MaxCronFiresPerDay caps occurrences in any rolling 24h window.
	MaxCronFiresPerDay = 96
	// FrequencyWindow is the rolling window MaxCronFiresPerDay applies to.
	FrequencyWindow = 24 * time.Hour
)

// Frequency summarizes how often a cron schedule fires from a given instant.
type Frequency struct {
	// Spacing is the gap between the next two occurrences.
	Spacing time.Duration
	// FiresInWindow counts occurrences in (now, now+24h]. Counting stops one
	// past MaxCronFiresPerDay, so any value above the cap means "too many".
	FiresInWindow int
}

// CronFrequency measures the spacing and daily volume of s as seen from now.
func CronFrequency(s models.CronSchedule, now time.Time) (Frequency, error) {
	sched, err := ParseCron(s.Expression, s.Timezone)
	if err != nil {
		return Frequency{}, err
	}

	var f Frequency
	first := sched.Next(now)
	if first.IsZero() {
		return f, nil
	}
	second := sched.Next(first)
	if !second.IsZero() {
		f.Spacing = second.Sub(first)
	}

	end := now.Add(FrequencyWindow)
	for t := first; !t.IsZero() && !t.After(end); t = sched.Next(t) {
		f.FiresInWindow++
		if f.FiresInWindow > MaxCronFiresPerDay {
			break
		}
	}
	return f, nil
}

// TooFrequent reports whether the spacing is below MinCronSpacing.
func (f Frequency) TooFrequent() bool {
	return f.Spacing > 0 && f.Spacing < MinCronSpacing
}

// OverDailyCap reports whether the window count exceeds MaxCronFiresPerDay.
func (f Frequency) OverDailyCap() bool {
	return f.FiresInWindow > MaxCronFiresPerDay
}
