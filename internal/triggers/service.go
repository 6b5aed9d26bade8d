package triggers

import (
	"context"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/validation"
	"intent-scheduler/internal/metrics"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/schedule"
	"intent-scheduler/internal/storage"

	"github.com/lucsky/cuid"
)

const DefaultPendingLimit = 100

// Options tunes a Service. Zero values take the package defaults.
type Options struct {
	LeaseDuration time.Duration
	PendingLimit  int
	MaxEnabled    int

	Now     func() time.Time
	Metrics metrics.Recorder
	Logger  logging.Logger
}

// Service is the entry point for every trigger operation.
type Service struct {
	store     storage.Store
	validator *Validator
	calc      *schedule.Calculator
	leases    *LeaseCoordinator
	recorder  *ExecutionRecorder
	now       func() time.Time
	metrics   metrics.Recorder
	logger    logging.Logger
}

// NewService wires the lifecycle components around store.
func NewService(store storage.Store, opts Options) *Service {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = DefaultLeaseDuration
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}
	if opts.MaxEnabled <= 0 {
		opts.MaxEnabled = models.MaxEnabledTriggersPerUser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent("triggers")
	}

	return &Service{
		store:     store,
		validator: NewValidator(opts.MaxEnabled, opts.Logger.WithFields(logging.String("subsystem", "validation"))),
		calc:      schedule.NewCalculator(opts.Logger.WithFields(logging.String("subsystem", "schedule"))),
		leases: &LeaseCoordinator{
			store:        store,
			lease:        opts.LeaseDuration,
			pendingLimit: opts.PendingLimit,
			now:          opts.Now,
			metrics:      opts.Metrics,
			logger:       opts.Logger.WithFields(logging.String("subsystem", "lease")),
		},
		recorder: &ExecutionRecorder{store: store},
		now:      opts.Now,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Create validates def and stores it as a new trigger owned by userID. The
// quota count and the insert share a transaction holding the user's lock,
// so concurrent creates cannot overshoot the limit.
func (s *Service) Create(ctx context.Context, userID string, def models.TriggerDefinition) (*models.Trigger, error) {
	start := time.Now()
	now := s.now().UTC()
	def.UserID = userID

	var created *models.Trigger
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		count, err := tx.CountEnabledTriggers(ctx, userID)
		if err != nil {
			return err
		}

		fv := s.validator.Validate(&def, Checks{Now: now, Quota: true, EnabledCount: count, OnceFuture: true})
		if fv.HasErrors() {
			return fv.Error()
		}

		t, err := Build(&def, cuid.New(), now)
		if err != nil {
			return err
		}
		if t.Enabled {
			t.NextCheck = s.calc.InitialNextCheck(t, now)
		}
		if err := tx.CreateTrigger(ctx, t); err != nil {
			return err
		}
		created = t
		return nil
	})
	err = storeError("create", err)
	s.metrics.Operation("create", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.metrics.TriggerCreated(created.Kind)
	withRequest(ctx, s.logger).Info("Trigger created",
		logging.String("trigger_id", created.ID),
		logging.String("user_id", userID),
		logging.String("kind", string(created.Kind)),
	)
	return created, nil
}

// ValidateDefinition runs every create-time check without persisting.
func (s *Service) ValidateDefinition(ctx context.Context, userID string, def models.TriggerDefinition) (*validation.ValidationResult, error) {
	def.UserID = userID
	enabled := true
	_, count, err := s.store.ListTriggers(ctx, storage.TriggerFilters{UserID: userID, Enabled: &enabled}, 1, 0)
	if err != nil {
		return nil, storeError("validate", err)
	}
	fv := s.validator.Validate(&def, Checks{Now: s.now(), Quota: true, EnabledCount: count, OnceFuture: true})
	return fv.GetValidationResult(), nil
}

// Get returns a trigger owned by userID. An empty userID skips the owner check.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Trigger, error) {
	t, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return nil, storeError("get", err)
	}
	if !ownedBy(t, userID) {
		return nil, errTriggerNotFound()
	}
	return t, nil
}

// List returns one page of userID's triggers and the total matching filters.
func (s *Service) List(ctx context.Context, userID string, kind models.Kind, enabled *bool, limit, offset int) ([]*models.Trigger, int, error) {
	triggers, total, err := s.store.ListTriggers(ctx, storage.TriggerFilters{UserID: userID, Kind: kind, Enabled: enabled}, limit, offset)
	if err != nil {
		return nil, 0, storeError("list", err)
	}
	return triggers, total, nil
}

// Update applies patch to a trigger. The merged definition is validated as a
// whole; next_check is recomputed when the kind or schedule changes or the
// trigger is re-enabled.
func (s *Service) Update(ctx context.Context, userID, id string, patch models.TriggerPatch) (*models.Trigger, error) {
	start := time.Now()
	now := s.now().UTC()

	var updated *models.Trigger
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		current, err := tx.LockTrigger(ctx, id, storage.LockWait)
		if err != nil {
			return err
		}
		if !ownedBy(current, userID) {
			return errTriggerNotFound()
		}

		merged := patch.Apply(models.DefinitionOf(current))
		reenabling := !current.Enabled && merged.IsEnabled()
		timingChanged := patch.TimingChanged(current.Kind)

		checks := Checks{Now: now, OnceFuture: timingChanged || reenabling}
		if reenabling {
			if err := tx.LockUser(ctx, current.UserID); err != nil {
				return err
			}
			count, err := tx.CountEnabledTriggers(ctx, current.UserID)
			if err != nil {
				return err
			}
			checks.Quota, checks.EnabledCount = true, count
		}
		if fv := s.validator.Validate(&merged, checks); fv.HasErrors() {
			return fv.Error()
		}

		next, err := Build(&merged, current.ID, now)
		if err != nil {
			return err
		}
		carryState(next, current)

		switch {
		case !merged.IsEnabled():
			if current.Enabled {
				next.Disable(models.DisabledManual)
			}
		case reenabling:
			next.DisabledReason = nil
			next.NextCheck = s.calc.InitialNextCheck(next, now)
		case timingChanged:
			next.NextCheck = s.calc.InitialNextCheck(next, now)
		}

		if err := tx.UpdateTrigger(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	err = storeError("update", err)
	s.metrics.Operation("update", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// carryState copies the engine-owned fields of current onto a freshly built trigger.
func carryState(next, current *models.Trigger) {
	next.UserID = current.UserID
	next.CreatedAt = current.CreatedAt
	next.NextCheck = current.NextCheck
	next.LastChecked = current.LastChecked
	next.LastExecuted = current.LastExecuted
	next.LastConditionFire = current.LastConditionFire
	next.ExecutionCount = current.ExecutionCount
	next.DisabledReason = current.DisabledReason
	next.ClaimedAt = current.ClaimedAt
	if !next.Kind.IsCondition() {
		next.LastConditionFire = nil
	}
}

// Delete removes a trigger and its execution history.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return storeError("delete", err)
	}
	s.metrics.TriggerDeleted(t.Kind)
	withRequest(ctx, s.logger).Info("Trigger deleted",
		logging.String("trigger_id", id),
		logging.String("user_id", t.UserID),
	)
	return nil
}

// Pending lists due triggers for workers. See LeaseCoordinator.Pending.
func (s *Service) Pending(ctx context.Context, userID string, limit int) ([]models.PendingTrigger, error) {
	return s.leases.Pending(ctx, userID, limit)
}

// Claim leases a trigger to the calling worker. See LeaseCoordinator.Claim.
func (s *Service) Claim(ctx context.Context, id string) (*models.ClaimResult, error) {
	start := time.Now()
	res, err := s.leases.Claim(ctx, id)
	s.metrics.Operation("claim", time.Since(start), err)
	return res, err
}

// History returns a page of a trigger's executions, newest first.
func (s *Service) History(ctx context.Context, userID, id string, limit, offset int) ([]*models.ExecutionRecord, int, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, 0, err
	}
	return s.recorder.History(ctx, id, limit, offset)
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

func ownedBy(t *models.Trigger, userID string) bool {
	return userID == "" || t.UserID == userID
}

// withRequest tags l with the HTTP request id carried by ctx, if any.
func withRequest(ctx context.Context, l logging.Logger) logging.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return l.WithFields(logging.String("request_id", id))
	}
	return l
}
