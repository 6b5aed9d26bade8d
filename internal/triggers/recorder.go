package triggers

import (
	"context"
	"time"

	"intent-scheduler/internal/common/pagination"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"

	"github.com/lucsky/cuid"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ExecutionRecorder appends fire outcomes and pages through them. Records
// are never updated.
type ExecutionRecorder struct {
	store storage.Store
}

// Record appends the outcome of firing t at now inside tx.
func (r *ExecutionRecorder) Record(ctx context.Context, tx storage.Tx, t *models.Trigger, outcome *models.FireOutcome, now time.Time) (*models.ExecutionRecord, error) {
	rec := &models.ExecutionRecord{
		ID:             cuid.New(),
		TriggerID:      t.ID,
		UserID:         t.UserID,
		ExecutedAt:     now.UTC(),
		Kind:           t.Kind,
		Status:         outcome.Status,
		TriggerData:    outcome.TriggerData,
		GateResult:     outcome.GateResult,
		MessageID:      outcome.MessageID,
		DeliveryID:     outcome.DeliveryID,
		EvaluationMs:   outcome.EvaluationMs,
		GenerationMs:   outcome.GenerationMs,
		DeliveryMs:     outcome.DeliveryMs,
		ErrorMessage:   outcome.Error,
		IdempotencyKey: outcome.IdempotencyKey,
	}
	if err := tx.InsertExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns a page of a trigger's executions, newest first, and the
// total number recorded. limit defaults to 50 and is capped at 100.
func (r *ExecutionRecorder) History(ctx context.Context, triggerID string, limit, offset int) ([]*models.ExecutionRecord, int, error) {
	limit = pagination.ClampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	if offset < 0 {
		offset = 0
	}
	records, total, err := r.store.ListExecutions(ctx, triggerID, limit, offset)
	if err != nil {
		return nil, 0, storeError("history", err)
	}
	return records, total, nil
}
