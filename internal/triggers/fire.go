package triggers

import (
	"context"
	"errors"
	"math"
	"time"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"
)

// Fire records a worker's outcome for a trigger and advances its schedule.
//
// The lease is always released. Condition triggers inside their cooldown
// window return with CooldownActive set and nothing else changes: no
// execution record, no next_check move. Otherwise a success bumps the
// execution count, next_check is recomputed, the auto-disable rules run in
// order and an execution record is appended.
//
// A repeated IdempotencyKey releases the lease and otherwise returns the
// current state with Duplicate set.
func (s *Service) Fire(ctx context.Context, id string, outcome models.FireOutcome) (*models.FireResult, error) {
	if !outcome.Status.Valid() {
		return nil, apperrors.ValidationError(
			"status must be one of: success, failed, gate_blocked, condition_not_met")
	}

	start := time.Now()
	now := s.now().UTC()
	lastFire, cooldownKnown := s.failOpenCooldownLookup(ctx, id)

	var (
		result     *models.FireResult
		fired      *models.Trigger
		disabledBy models.DisabledReason
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		t, err := tx.LockTrigger(ctx, id, storage.LockWait)
		if err != nil {
			return err
		}

		if outcome.IdempotencyKey != "" {
			prev, err := tx.FindExecutionByIdempotencyKey(ctx, id, outcome.IdempotencyKey)
			switch {
			case err == nil:
				if t.ClaimedAt != nil {
					t.ClaimedAt = nil
					t.UpdatedAt = now
					if err := tx.UpdateTrigger(ctx, t); err != nil {
						return err
					}
				}
				fired = t
				result = fireResult(t)
				result.ExecutionID = prev.ID
				result.Duplicate = true
				return nil
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
		}

		t.LastChecked = &now
		t.ClaimedAt = nil
		t.UpdatedAt = now

		if cooldownKnown && t.Kind.IsCondition() {
			probe := *t
			probe.LastConditionFire = latest(lastFire, t.LastConditionFire)
			if remaining := probe.CooldownRemaining(now); remaining > 0 {
				if err := tx.UpdateTrigger(ctx, t); err != nil {
					return err
				}
				fired = t
				result = fireResult(t)
				result.LastConditionFire = probe.LastConditionFire
				result.CooldownActive = true
				result.CooldownRemainingHours = roundHours(remaining)
				return nil
			}
		}

		if outcome.Status == models.StatusSuccess {
			t.ExecutionCount++
			t.LastExecuted = &now
			if t.Kind.IsCondition() {
				t.LastConditionFire = &now
			}
		}

		if t.Enabled {
			t.NextCheck = s.calc.NextCheckAfterFire(t, outcome.Status, now)
			if reason, ok := autoDisableReason(t, outcome.Status, now); ok {
				t.Disable(reason)
				disabledBy = reason
			}
		}

		rec, err := s.recorder.Record(ctx, tx, t, &outcome, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateTrigger(ctx, t); err != nil {
			return err
		}

		fired = t
		result = fireResult(t)
		result.ExecutionID = rec.ID
		return nil
	})
	err = storeError("fire", err)
	s.metrics.Operation("fire", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	switch {
	case result.Duplicate:
		s.metrics.FireDuplicate(fired.Kind)
		withRequest(ctx, s.logger).Info("Duplicate fire ignored",
			logging.String("trigger_id", id),
			logging.String("idempotency_key", outcome.IdempotencyKey),
		)
	case result.CooldownActive:
		s.metrics.CooldownBlocked(fired.Kind)
		withRequest(ctx, s.logger).Debug("Fire suppressed by cooldown",
			logging.String("trigger_id", id),
			logging.Field{Key: "remaining_hours", Value: result.CooldownRemainingHours},
		)
	default:
		s.metrics.Fire(fired.Kind, outcome.Status)
		if disabledBy != "" {
			s.metrics.AutoDisabled(disabledBy)
			withRequest(ctx, s.logger).Info("Trigger auto-disabled",
				logging.String("trigger_id", id),
				logging.String("reason", string(disabledBy)),
				logging.Int("execution_count", fired.ExecutionCount),
			)
		}
	}
	return result, nil
}

// failOpenCooldownLookup reads the last condition fire outside the fire
// transaction. A failed lookup is reported as unknown and the cooldown gate
// is skipped: a storage hiccup must not silently stop proactive messages.
func (s *Service) failOpenCooldownLookup(ctx context.Context, id string) (*time.Time, bool) {
	last, err := s.store.LastConditionFire(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			withRequest(ctx, s.logger).Warn("Cooldown lookup failed, treating trigger as not cooling down",
				logging.String("trigger_id", id),
				logging.Err(err),
			)
		}
		return nil, false
	}
	return last, true
}

// autoDisableReason applies the auto-disable rules in order; the first
// match wins.
func autoDisableReason(t *models.Trigger, status models.ExecutionStatus, now time.Time) (models.DisabledReason, bool) {
	success := status == models.StatusSuccess
	switch {
	case t.Kind == models.KindOnce && success:
		return models.DisabledCompleted, true
	case t.Kind.IsCondition() && t.FireMode == models.FireModeOnce && success:
		return models.DisabledFireModeOnce, true
	case t.MaxExecutions != nil && t.ExecutionCount >= *t.MaxExecutions:
		return models.DisabledMaxExecutionsReached, true
	case t.ExpiresAt != nil && !t.ExpiresAt.After(now):
		return models.DisabledExpired, true
	}
	return "", false
}

func fireResult(t *models.Trigger) *models.FireResult {
	return &models.FireResult{
		TriggerID:         t.ID,
		NextCheck:         t.NextCheck,
		Enabled:           t.Enabled,
		ExecutionCount:    t.ExecutionCount,
		DisabledReason:    t.DisabledReason,
		LastConditionFire: t.LastConditionFire,
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	}
	return b
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
