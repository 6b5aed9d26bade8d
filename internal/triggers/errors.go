package triggers

import (
	"context"
	"errors"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/storage"
)

// Conflict codes let workers tell a lost race from a trigger that will never
// be claimable.
const (
	CodeLeaseHeld       = "lease_held"
	CodeTriggerDisabled = "trigger_disabled"
)

func errTriggerNotFound() error {
	return apperrors.NotFoundError("trigger")
}

func errAlreadyClaimed() error {
	return apperrors.ConflictError("trigger is already claimed by another worker").WithCode(CodeLeaseHeld)
}

// storeError converts a storage failure into an AppError. AppErrors raised
// inside a transaction pass through untouched. A lock timeout outside of
// Claim is a transient storage failure; an expired request context is a
// timeout.
func storeError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return errTriggerNotFound()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.TimeoutError(operation)
	case errors.Is(err, storage.ErrDuplicate):
		return apperrors.ConflictError("a record with the same identity already exists").WithContext("operation", operation)
	default:
		return apperrors.StorageError(operation, err)
	}
}

func errClaimDisabled() error {
	return apperrors.ConflictError("trigger is disabled and cannot be claimed").WithCode(CodeTriggerDisabled)
}

func isConflict(err error) bool {
	return apperrors.IsType(err, apperrors.ErrTypeConflict)
}
