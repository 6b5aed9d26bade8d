package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"
)

const triggerColumns = `id, user_id, name, description, kind, schedule_config, condition_config,
	cooldown_hours, fire_mode, action, next_check, last_checked, last_executed,
	last_condition_fire, execution_count, enabled, disabled_reason, claimed_at,
	expires_at, max_executions, created_at, updated_at`

const executionColumns = `id, trigger_id, user_id, executed_at, kind, status, trigger_data,
	gate_result, message_id, delivery_id, evaluation_ms, generation_ms, delivery_ms,
	error_message, idempotency_key`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// queries holds the SQL shared by the Store and its transactions.
type queries struct {
	q queryer
	d dialect
}

func (s queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.d.rebind(query), args...)
	return res, s.d.translate(err)
}

func (s queries) getTrigger(ctx context.Context, id string, lock string) (*models.Trigger, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+triggerColumns+` FROM triggers WHERE id = ?`+lock), id)
	t, err := scanTrigger(row)
	if err != nil {
		return nil, s.d.translate(err)
	}
	return t, nil
}

func (s queries) triggerExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT 1 FROM triggers WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.d.translate(err)
	}
	return true, nil
}

func (s queries) listTriggers(ctx context.Context, filters storage.TriggerFilters, limit, offset int) ([]*models.Trigger, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filters.Kind))
	}
	if filters.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filters.Enabled)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM triggers`+clause), args...).Scan(&total); err != nil {
		return nil, 0, s.d.translate(err)
	}

	query := `SELECT ` + triggerColumns + ` FROM triggers` + clause + ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, s.d.translate(err)
	}
	triggers, err := collectTriggers(rows)
	if err != nil {
		return nil, 0, s.d.translate(err)
	}
	return triggers, total, nil
}

func (s queries) listDueTriggers(ctx context.Context, userID string, now, leaseCutoff time.Time, limit int) ([]*models.Trigger, error) {
	owner := ""
	args := []interface{}{true, now.UTC(), leaseCutoff.UTC(), limit}
	if userID != "" {
		owner = "user_id = ? AND "
		args = append([]interface{}{userID}, args...)
	}

	query := `SELECT ` + triggerColumns + ` FROM triggers
		WHERE ` + owner + `enabled = ? AND next_check IS NOT NULL AND next_check <= ?
		  AND (claimed_at IS NULL OR claimed_at <= ?)
		ORDER BY next_check ASC, id ASC
		LIMIT ?`

	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.translate(err)
	}
	triggers, err := collectTriggers(rows)
	return triggers, s.d.translate(err)
}

func (s queries) lastConditionFire(ctx context.Context, id string) (*time.Time, error) {
	var last sql.NullTime
	err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT last_condition_fire FROM triggers WHERE id = ?`), id).Scan(&last)
	if err != nil {
		return nil, s.d.translate(err)
	}
	return timePtr(last), nil
}

func (s queries) countEnabled(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM triggers WHERE user_id = ? AND enabled = ?`), userID, true).Scan(&n)
	return n, s.d.translate(err)
}

func (s queries) createTrigger(ctx context.Context, t *models.Trigger) error {
	sched, cond, err := encodeTriggerConfig(t)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `INSERT INTO triggers (`+triggerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Description, string(t.Kind), sched, cond,
		t.CooldownHours, string(t.FireMode), nullJSON(t.Action),
		nullTime(t.NextCheck), nullTime(t.LastChecked), nullTime(t.LastExecuted),
		nullTime(t.LastConditionFire), t.ExecutionCount, t.Enabled, nullReason(t.DisabledReason),
		nullTime(t.ClaimedAt), nullTime(t.ExpiresAt), nullInt(t.MaxExecutions),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	return err
}

func (s queries) updateTrigger(ctx context.Context, t *models.Trigger) error {
	sched, cond, err := encodeTriggerConfig(t)
	if err != nil {
		return err
	}

	res, err := s.exec(ctx, `UPDATE triggers SET
			name = ?, description = ?, kind = ?, schedule_config = ?, condition_config = ?,
			cooldown_hours = ?, fire_mode = ?, action = ?, next_check = ?, last_checked = ?,
			last_executed = ?, last_condition_fire = ?, execution_count = ?, enabled = ?,
			disabled_reason = ?, claimed_at = ?, expires_at = ?, max_executions = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, string(t.Kind), sched, cond,
		t.CooldownHours, string(t.FireMode), nullJSON(t.Action), nullTime(t.NextCheck), nullTime(t.LastChecked),
		nullTime(t.LastExecuted), nullTime(t.LastConditionFire), t.ExecutionCount, t.Enabled,
		nullReason(t.DisabledReason), nullTime(t.ClaimedAt), nullTime(t.ExpiresAt), nullInt(t.MaxExecutions), t.UpdatedAt.UTC(),
		t.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s queries) setClaim(ctx context.Context, id string, claimedAt time.Time) error {
	res, err := s.exec(ctx, `UPDATE triggers SET claimed_at = ? WHERE id = ?`, claimedAt.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s queries) deleteTrigger(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s queries) insertExecution(ctx context.Context, r *models.ExecutionRecord) error {
	_, err := s.exec(ctx, `INSERT INTO trigger_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TriggerID, r.UserID, r.ExecutedAt.UTC(), string(r.Kind), string(r.Status),
		nullJSON(r.TriggerData), nullJSON(r.GateResult), nullString(r.MessageID), nullString(r.DeliveryID),
		nullInt64(r.EvaluationMs), nullInt64(r.GenerationMs), nullInt64(r.DeliveryMs),
		nullString(r.ErrorMessage), nullString(r.IdempotencyKey),
	)
	return err
}

func (s queries) findExecutionByKey(ctx context.Context, triggerID, key string) (*models.ExecutionRecord, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+executionColumns+` FROM trigger_executions
		WHERE trigger_id = ? AND idempotency_key = ?`), triggerID, key)
	rec, err := scanExecution(row)
	if err != nil {
		return nil, s.d.translate(err)
	}
	return rec, nil
}

func (s queries) listExecutions(ctx context.Context, triggerID string, limit, offset int) ([]*models.ExecutionRecord, int, error) {
	var total int
	err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM trigger_executions WHERE trigger_id = ?`), triggerID).Scan(&total)
	if err != nil {
		return nil, 0, s.d.translate(err)
	}

	rows, err := s.q.QueryContext(ctx, s.d.rebind(`SELECT `+executionColumns+` FROM trigger_executions
		WHERE trigger_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ? OFFSET ?`), triggerID, limit, offset)
	if err != nil {
		return nil, 0, s.d.translate(err)
	}
	defer rows.Close()

	records := make([]*models.ExecutionRecord, 0)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, s.d.translate(err)
	}
	return records, total, nil
}

func collectTriggers(rows *sql.Rows) ([]*models.Trigger, error) {
	defer rows.Close()

	triggers := make([]*models.Trigger, 0)
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		t              models.Trigger
		kind, fireMode string
		sched, cond    []byte
		action         []byte
		next, checked  sql.NullTime
		executed       sql.NullTime
		condFire       sql.NullTime
		claimed        sql.NullTime
		expires        sql.NullTime
		reason         sql.NullString
		maxExec        sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.Description, &kind, &sched, &cond,
		&t.CooldownHours, &fireMode, &action, &next, &checked, &executed,
		&condFire, &t.ExecutionCount, &t.Enabled, &reason, &claimed,
		&expires, &maxExec, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = models.Kind(kind)
	t.FireMode = models.FireMode(fireMode)

	if t.Schedule, err = models.DecodeSchedule(t.Kind, sched); err != nil {
		return nil, apperrors.ConfigDecodeError(fmt.Sprintf("schedule of trigger %s", t.ID), err)
	}
	if t.Condition, err = models.DecodeCondition(t.Kind, cond); err != nil {
		return nil, apperrors.ConfigDecodeError(fmt.Sprintf("condition of trigger %s", t.ID), err)
	}
	if len(action) > 0 {
		t.Action = json.RawMessage(action)
	}

	t.NextCheck = timePtr(next)
	t.LastChecked = timePtr(checked)
	t.LastExecuted = timePtr(executed)
	t.LastConditionFire = timePtr(condFire)
	t.ClaimedAt = timePtr(claimed)
	t.ExpiresAt = timePtr(expires)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if reason.Valid {
		r := models.DisabledReason(reason.String)
		t.DisabledReason = &r
	}
	if maxExec.Valid {
		n := int(maxExec.Int64)
		t.MaxExecutions = &n
	}
	return &t, nil
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var (
		r                               models.ExecutionRecord
		kind, status                    string
		triggerData, gateResult         []byte
		messageID, deliveryID, errorMsg sql.NullString
		idempotencyKey                  sql.NullString
		evalMs, genMs, delivMs          sql.NullInt64
	)

	err := row.Scan(
		&r.ID, &r.TriggerID, &r.UserID, &r.ExecutedAt, &kind, &status, &triggerData,
		&gateResult, &messageID, &deliveryID, &evalMs, &genMs, &delivMs,
		&errorMsg, &idempotencyKey,
	)
	if err != nil {
		return nil, err
	}

	r.ExecutedAt = r.ExecutedAt.UTC()
	r.Kind = models.Kind(kind)
	r.Status = models.ExecutionStatus(status)
	if len(triggerData) > 0 {
		r.TriggerData = json.RawMessage(triggerData)
	}
	if len(gateResult) > 0 {
		r.GateResult = json.RawMessage(gateResult)
	}
	r.MessageID = messageID.String
	r.DeliveryID = deliveryID.String
	r.ErrorMessage = errorMsg.String
	r.IdempotencyKey = idempotencyKey.String
	r.EvaluationMs = int64Ptr(evalMs)
	r.GenerationMs = int64Ptr(genMs)
	r.DeliveryMs = int64Ptr(delivMs)
	return &r, nil
}

func encodeTriggerConfig(t *models.Trigger) (string, interface{}, error) {
	sched, err := models.EncodeSchedule(t.Schedule)
	if err != nil {
		return "", nil, fmt.Errorf("encode schedule: %w", err)
	}
	cond, err := models.EncodeCondition(t.Condition)
	if err != nil {
		return "", nil, fmt.Errorf("encode condition: %w", err)
	}
	return string(sched), nullJSON(cond), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func nullInt64(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func nullReason(r *models.DisabledReason) interface{} {
	if r == nil {
		return nil
	}
	return string(*r)
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
