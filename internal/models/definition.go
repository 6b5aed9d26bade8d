package models

import (
	"encoding/json"
	"time"
)

// ScheduleSpec is the wire form of a schedule. Which fields are required
// depends on the trigger kind.
type ScheduleSpec struct {
	Cron                 string `json:"cron,omitempty"`
	Timezone             string `json:"timezone,omitempty"`
	IntervalMinutes      *int   `json:"interval_minutes,omitempty"`
	At                   string `json:"at,omitempty"`
	CheckIntervalMinutes *int   `json:"check_interval_minutes,omitempty"`
}

// ConditionSpec is the wire form of a condition. Structured fields and
// Expression are alternatives; when both are present Expression wins.
type ConditionSpec struct {
	Expression     string   `json:"expression,omitempty"`
	Ticker         string   `json:"ticker,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	ThresholdHours *float64 `json:"threshold_hours,omitempty"`
	CooldownHours  *int     `json:"cooldown_hours,omitempty"`
	FireMode       string   `json:"fire_mode,omitempty"`
}

// HasStructured reports whether any structured watched-value field is set.
func (c *ConditionSpec) HasStructured() bool {
	return c.Ticker != "" || c.Operator != "" || c.Value != nil || c.ThresholdHours != nil
}

// TriggerDefinition is a candidate trigger as submitted by a client.
type TriggerDefinition struct {
	UserID        string          `json:"user_id,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Kind          Kind            `json:"kind"`
	Schedule      ScheduleSpec    `json:"schedule"`
	Condition     *ConditionSpec  `json:"condition,omitempty"`
	Action        json.RawMessage `json:"action,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	MaxExecutions *int            `json:"max_executions,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
}

// IsEnabled defaults to true when Enabled is unset.
func (d *TriggerDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// TriggerPatch carries the fields an update changes. Schedule is replaced as
// a whole; within Condition the watched value is replaced as a whole while
// cooldown_hours and fire_mode merge individually.
type TriggerPatch struct {
	Name          *string         `json:"name,omitempty"`
	Description   *string         `json:"description,omitempty"`
	Kind          *Kind           `json:"kind,omitempty"`
	Schedule      *ScheduleSpec   `json:"schedule,omitempty"`
	Condition     *ConditionSpec  `json:"condition,omitempty"`
	Action        json.RawMessage `json:"action,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	MaxExecutions *int            `json:"max_executions,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
}

// TimingChanged reports whether the patch touches kind or schedule, which
// forces next_check to be recomputed.
func (p *TriggerPatch) TimingChanged(current Kind) bool {
	return (p.Kind != nil && *p.Kind != current) || p.Schedule != nil
}

// Apply merges the patch onto def and returns the result.
func (p *TriggerPatch) Apply(def TriggerDefinition) TriggerDefinition {
	if p.Name != nil {
		def.Name = *p.Name
	}
	if p.Description != nil {
		def.Description = *p.Description
	}
	if p.Kind != nil {
		def.Kind = *p.Kind
	}
	if p.Schedule != nil {
		def.Schedule = *p.Schedule
	}
	if p.Condition != nil {
		merged := ConditionSpec{}
		if def.Condition != nil {
			merged = *def.Condition
		}
		if p.Condition.Expression != "" || p.Condition.HasStructured() {
			merged.Expression = p.Condition.Expression
			merged.Ticker = p.Condition.Ticker
			merged.Operator = p.Condition.Operator
			merged.Value = p.Condition.Value
			merged.ThresholdHours = p.Condition.ThresholdHours
		}
		if p.Condition.CooldownHours != nil {
			merged.CooldownHours = p.Condition.CooldownHours
		}
		if p.Condition.FireMode != "" {
			merged.FireMode = p.Condition.FireMode
		}
		def.Condition = &merged
	}
	if len(p.Action) > 0 {
		def.Action = p.Action
	}
	if p.ExpiresAt != nil {
		def.ExpiresAt = p.ExpiresAt
	}
	if p.MaxExecutions != nil {
		def.MaxExecutions = p.MaxExecutions
	}
	if p.Enabled != nil {
		def.Enabled = p.Enabled
	}
	return def
}

// DefinitionOf reconstructs the definition a stored trigger was built from,
// so that a patch can be merged and the result re-validated.
func DefinitionOf(t *Trigger) TriggerDefinition {
	enabled := t.Enabled
	def := TriggerDefinition{
		UserID:        t.UserID,
		Name:          t.Name,
		Description:   t.Description,
		Kind:          t.Kind,
		Action:        t.Action,
		ExpiresAt:     t.ExpiresAt,
		MaxExecutions: t.MaxExecutions,
		Enabled:       &enabled,
	}

	switch s := t.Schedule.(type) {
	case CronSchedule:
		def.Schedule = ScheduleSpec{Cron: s.Expression, Timezone: s.Timezone}
	case IntervalSchedule:
		minutes := s.Minutes
		def.Schedule = ScheduleSpec{IntervalMinutes: &minutes}
	case OnceSchedule:
		def.Schedule = ScheduleSpec{At: s.At.UTC().Format(time.RFC3339), Timezone: s.Timezone}
	case CheckSchedule:
		minutes := s.IntervalMinutes
		def.Schedule = ScheduleSpec{CheckIntervalMinutes: &minutes}
	}

	if t.Kind.IsCondition() {
		spec := &ConditionSpec{FireMode: string(t.FireMode)}
		if t.CooldownHours > 0 {
			hours := t.CooldownHours
			spec.CooldownHours = &hours
		}
		switch c := t.Condition.(type) {
		case PriceCondition:
			if c.Expression != "" {
				spec.Expression = c.Expression
			} else {
				value := c.Value
				spec.Ticker, spec.Operator, spec.Value = c.Ticker, c.Operator, &value
			}
		case SilenceCondition:
			if c.Expression != "" {
				spec.Expression = c.Expression
			} else {
				hours := c.ThresholdHours
				spec.ThresholdHours = &hours
			}
		case PortfolioCondition:
			spec.Expression = c.Expression
		}
		def.Condition = spec
	}

	return def
}
