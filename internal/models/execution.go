package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the outcome a worker reports for a fire.
type ExecutionStatus string

const (
	StatusSuccess         ExecutionStatus = "success"
	StatusFailed          ExecutionStatus = "failed"
	StatusGateBlocked     ExecutionStatus = "gate_blocked"
	StatusConditionNotMet ExecutionStatus = "condition_not_met"
)

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusGateBlocked, StatusConditionNotMet:
		return true
	}
	return false
}

// ExecutionRecord is an immutable audit entry written by fire.
type ExecutionRecord struct {
	ID             string          `json:"id"`
	TriggerID      string          `json:"trigger_id"`
	UserID         string          `json:"user_id"`
	ExecutedAt     time.Time       `json:"executed_at"`
	Kind           Kind            `json:"kind"`
	Status         ExecutionStatus `json:"status"`
	TriggerData    json.RawMessage `json:"trigger_data,omitempty"`
	GateResult     json.RawMessage `json:"gate_result,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	DeliveryID     string          `json:"delivery_id,omitempty"`
	EvaluationMs   *int64          `json:"evaluation_ms,omitempty"`
	GenerationMs   *int64          `json:"generation_ms,omitempty"`
	DeliveryMs     *int64          `json:"delivery_ms,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// FireOutcome is what a worker reports after evaluating a claimed trigger.
type FireOutcome struct {
	Status         ExecutionStatus `json:"status"`
	TriggerData    json.RawMessage `json:"trigger_data,omitempty"`
	GateResult     json.RawMessage `json:"gate_result,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	DeliveryID     string          `json:"delivery_id,omitempty"`
	EvaluationMs   *int64          `json:"evaluation_ms,omitempty"`
	GenerationMs   *int64          `json:"generation_ms,omitempty"`
	DeliveryMs     *int64          `json:"delivery_ms,omitempty"`
	Error          string          `json:"error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// FireResult is the trigger state after a fire was processed.
type FireResult struct {
	TriggerID              string          `json:"trigger_id"`
	NextCheck              *time.Time      `json:"next_check"`
	Enabled                bool            `json:"enabled"`
	ExecutionCount         int             `json:"execution_count"`
	DisabledReason         *DisabledReason `json:"disabled_reason,omitempty"`
	LastConditionFire      *time.Time      `json:"last_condition_fire,omitempty"`
	CooldownActive         bool            `json:"cooldown_active"`
	CooldownRemainingHours float64         `json:"cooldown_remaining_hours,omitempty"`
	ExecutionID            string          `json:"execution_id,omitempty"`
	Duplicate              bool            `json:"duplicate,omitempty"`
}
