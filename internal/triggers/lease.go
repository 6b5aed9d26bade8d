package triggers

import (
	"context"
	"errors"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/pagination"
	"intent-scheduler/internal/metrics"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"
)

// DefaultLeaseDuration is how long a claim is honored. Leases are not renewed.
const DefaultLeaseDuration = 5 * time.Minute

// LeaseCoordinator hands due triggers to workers, one worker per trigger.
type LeaseCoordinator struct {
	store        storage.Store
	lease        time.Duration
	pendingLimit int
	now          func() time.Time
	metrics      metrics.Recorder
	logger       logging.Logger
}

// Pending lists due, unleased triggers, oldest due first. Condition
// triggers still inside their cooldown are flagged rather than dropped. An
// empty userID lists every user's triggers.
func (c *LeaseCoordinator) Pending(ctx context.Context, userID string, limit int) ([]models.PendingTrigger, error) {
	now := c.now().UTC()
	limit = pagination.ClampLimit(limit, c.pendingLimit, c.pendingLimit)

	due, err := c.store.ListDueTriggers(ctx, userID, now, now.Add(-c.lease), limit)
	if err != nil {
		return nil, storeError("pending", err)
	}

	pending := make([]models.PendingTrigger, len(due))
	for i, t := range due {
		pending[i] = models.PendingTrigger{Trigger: t, InCooldown: t.CooldownRemaining(now) > 0}
	}
	c.metrics.PendingReturned(len(pending))
	return pending, nil
}

// Claim leases a trigger to the caller. Losing a race, hitting a live lease
// or claiming a disabled trigger all report a conflict; callers are expected
// to move on to the next pending trigger.
func (c *LeaseCoordinator) Claim(ctx context.Context, triggerID string) (*models.ClaimResult, error) {
	now := c.now().UTC()

	var claimed *models.Trigger
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		t, err := tx.LockTrigger(ctx, triggerID, storage.LockSkip)
		if err != nil {
			return err
		}
		if !t.Enabled {
			return errClaimDisabled()
		}
		if t.LeaseLive(now, c.lease) {
			return errAlreadyClaimed()
		}
		if err := tx.SetClaim(ctx, t.ID, now); err != nil {
			return err
		}
		t.ClaimedAt = &now
		claimed = t
		return nil
	})

	if err != nil {
		c.metrics.Claim(claimOutcome(err))
		if errors.Is(err, storage.ErrLocked) {
			err = errAlreadyClaimed()
		}
		withRequest(ctx, c.logger).Debug("Claim refused",
			logging.String("trigger_id", triggerID),
			logging.Err(err),
		)
		return nil, storeError("claim", err)
	}

	c.metrics.Claim(metrics.ClaimClaimed)
	return &models.ClaimResult{Trigger: claimed, ClaimedAt: now}, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, storage.ErrLocked), isConflict(err):
		return metrics.ClaimConflict
	case errors.Is(err, storage.ErrNotFound):
		return metrics.ClaimNotFound
	default:
		return metrics.ClaimError
	}
}
