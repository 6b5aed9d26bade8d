// Package models defines the trigger and execution records owned by the
// scheduling engine, and the tagged-union schedule and condition variants
// a trigger carries.
package models

import (
	"encoding/json"
	"time"
)

// Kind is the temporal category of a trigger.
type Kind string

const (
	KindCron      Kind = "cron"
	KindInterval  Kind = "interval"
	KindOnce      Kind = "once"
	KindPrice     Kind = "price"
	KindSilence   Kind = "silence"
	KindPortfolio Kind = "portfolio"
)

// AllKinds lists every kind in a stable order.
var AllKinds = []Kind{KindCron, KindInterval, KindOnce, KindPrice, KindSilence, KindPortfolio}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsCondition reports whether k is evaluated against external state
// (price, silence, portfolio) rather than purely by the clock.
func (k Kind) IsCondition() bool {
	return k == KindPrice || k == KindSilence || k == KindPortfolio
}

// KindNames returns AllKinds as strings.
func KindNames() []string {
	names := make([]string, len(AllKinds))
	for i, k := range AllKinds {
		names[i] = string(k)
	}
	return names
}

// FireMode decides whether a condition trigger survives a successful fire.
type FireMode string

const (
	FireModeOnce      FireMode = "once"
	FireModeRecurring FireMode = "recurring"
)

// DisabledReason records why a trigger stopped being scheduled.
type DisabledReason string

const (
	DisabledCompleted            DisabledReason = "completed"
	DisabledFireModeOnce         DisabledReason = "fire_mode_once"
	DisabledMaxExecutionsReached DisabledReason = "max_executions_reached"
	DisabledExpired              DisabledReason = "expired"
	DisabledManual               DisabledReason = "manual"
)

const (
	// MaxEnabledTriggersPerUser is the per-user quota of enabled triggers.
	MaxEnabledTriggersPerUser = 25
	// DefaultCooldownHours applies to condition kinds when none is given.
	DefaultCooldownHours = 24
	MinCooldownHours     = 1
	MaxCooldownHours     = 168
)

// Trigger is a durable scheduled intent. The scheduling-state fields are
// written only by the engine.
type Trigger struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	Schedule    Schedule  `json:"schedule"`
	Condition   Condition `json:"condition,omitempty"`

	// Condition kinds only.
	CooldownHours int      `json:"cooldown_hours,omitempty"`
	FireMode      FireMode `json:"fire_mode,omitempty"`

	Action json.RawMessage `json:"action,omitempty"`

	NextCheck         *time.Time      `json:"next_check"`
	LastChecked       *time.Time      `json:"last_checked,omitempty"`
	LastExecuted      *time.Time      `json:"last_executed,omitempty"`
	LastConditionFire *time.Time      `json:"last_condition_fire,omitempty"`
	ExecutionCount    int             `json:"execution_count"`
	Enabled           bool            `json:"enabled"`
	DisabledReason    *DisabledReason `json:"disabled_reason,omitempty"`
	ClaimedAt         *time.Time      `json:"claimed_at,omitempty"`

	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxExecutions *int       `json:"max_executions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaseLive reports whether ClaimedAt marks a lease that is still honored at now.
func (t *Trigger) LeaseLive(now time.Time, leaseDuration time.Duration) bool {
	return t.ClaimedAt != nil && now.Sub(*t.ClaimedAt) < leaseDuration
}

// CooldownRemaining returns how much of the cooldown window is left at now,
// or zero when the trigger is not cooling down.
func (t *Trigger) CooldownRemaining(now time.Time) time.Duration {
	if !t.Kind.IsCondition() || t.LastConditionFire == nil || t.CooldownHours <= 0 {
		return 0
	}
	remaining := time.Duration(t.CooldownHours)*time.Hour - now.Sub(*t.LastConditionFire)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// Disable moves the trigger into a disabled state with no next check.
func (t *Trigger) Disable(reason DisabledReason) {
	t.Enabled = false
	t.NextCheck = nil
	r := reason
	t.DisabledReason = &r
}

// PendingTrigger is a due trigger as handed to polling workers.
type PendingTrigger struct {
	*Trigger
	InCooldown bool `json:"in_cooldown"`
}

// ClaimResult is what a worker receives for a successful claim.
type ClaimResult struct {
	Trigger   *Trigger  `json:"trigger"`
	ClaimedAt time.Time `json:"claimed_at"`
}
