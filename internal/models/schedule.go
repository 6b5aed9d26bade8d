package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MinIntervalMinutes is the shortest interval schedule accepted.
	MinIntervalMinutes = 5
	// DefaultCheckIntervalMinutes is the polling cadence of price and silence triggers.
	DefaultCheckIntervalMinutes = 5
	// DefaultPortfolioCheckIntervalMinutes is the polling cadence of portfolio triggers.
	DefaultPortfolioCheckIntervalMinutes = 15
	// MinCheckIntervalMinutes bounds how often a condition trigger may be checked.
	MinCheckIntervalMinutes = 5
)

// Schedule is the kind-specific timing of a trigger. Exactly one variant
// corresponds to each kind: CronSchedule, IntervalSchedule, OnceSchedule, or
// CheckSchedule for the condition kinds.
type Schedule interface {
	scheduleKind() string
}

// CronSchedule fires on a cron expression evaluated in Timezone.
type CronSchedule struct {
	Expression string `json:"cron"`
	Timezone   string `json:"timezone"`
}

// IntervalSchedule fires every Minutes minutes.
type IntervalSchedule struct {
	Minutes int `json:"interval_minutes"`
}

// OnceSchedule fires a single time at At (stored in UTC).
type OnceSchedule struct {
	At       time.Time `json:"at"`
	Timezone string    `json:"timezone"`
}

// CheckSchedule is how often a condition trigger is re-evaluated.
type CheckSchedule struct {
	IntervalMinutes int `json:"check_interval_minutes"`
}

func (CronSchedule) scheduleKind() string     { return "cron" }
func (IntervalSchedule) scheduleKind() string { return "interval" }
func (OnceSchedule) scheduleKind() string     { return "once" }
func (CheckSchedule) scheduleKind() string    { return "check" }

// DefaultCheckInterval returns the check interval a condition kind gets when
// none is configured.
func DefaultCheckInterval(kind Kind) int {
	if kind == KindPortfolio {
		return DefaultPortfolioCheckIntervalMinutes
	}
	return DefaultCheckIntervalMinutes
}

// LoadLocation resolves an IANA name; the empty string means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

var localInstantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant reads an instant. Values with an explicit offset are taken as
// is; values without one are interpreted as wall-clock time in loc.
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localInstantLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid instant (use RFC 3339, e.g. \"2026-11-01T09:00:00-07:00\", or a local \"2026-11-01T09:00\")", value)
}

// EncodeSchedule serializes a schedule variant for storage.
func EncodeSchedule(s Schedule) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("schedule is nil")
	}
	return json.Marshal(s)
}

// DecodeSchedule rebuilds the variant for kind from its stored form.
func DecodeSchedule(kind Kind, raw []byte) (Schedule, error) {
	switch kind {
	case KindCron:
		var s CronSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case KindInterval:
		var s IntervalSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case KindOnce:
		var s OnceSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case KindPrice, KindSilence, KindPortfolio:
		var s CheckSchedule
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, err
			}
		}
		if s.IntervalMinutes == 0 {
			s.IntervalMinutes = DefaultCheckInterval(kind)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", kind)
	}
}
