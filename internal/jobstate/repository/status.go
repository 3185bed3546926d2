package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/metrics"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

// TransitionRule names the guard in policy errors.
const TransitionRule = "StatusTransition"

// Change is a status change. Empty MinorStatus or ApplicationStatus keep the current value.
type Change struct {
	Status            status.Status `json:"status"`
	MinorStatus       string        `json:"minorStatus,omitempty"`
	ApplicationStatus string        `json:"applicationStatus,omitempty"`
	Source            string        `json:"source,omitempty"`
	// Zero means now
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type LoggingRecord struct {
	Status            status.Status `json:"status"`
	MinorStatus       string        `json:"minorStatus"`
	ApplicationStatus string        `json:"applicationStatus"`
	StatusTime        time.Time     `json:"statusTime"`
	Source            string        `json:"source"`
}

// RequestTransition asks the guard for the status to move a job to and stores it. The
// guard may choose a different status than requested, in which case its choice is stored.
// A refusal is an *wmserrors.ErrPolicy and nothing is written.
func (r *JobDB) RequestTransition(ctx context.Context, jobId int64, change Change) (status.Status, error) {
	if err := validateChange(change); err != nil {
		return "", err
	}
	current, err := r.currentStatuses(ctx, []int64{jobId})
	if err != nil {
		return "", err
	}
	from, ok := current[jobId]
	if !ok {
		return "", jobNotFound(jobId)
	}
	actual, allowed := r.nextState(jobId, from, change.Status)
	if !allowed {
		return from, errors.WithStack(&wmserrors.ErrPolicy{
			JobId:   jobId,
			Rule:    TransitionRule,
			Message: fmt.Sprintf("transition from %s to %s is not allowed", from, change.Status),
		})
	}
	applied, err := r.applyStatuses(ctx, []int64{jobId}, []status.Status{actual}, change)
	if err != nil {
		return "", err
	}
	stored, ok := applied[jobId]
	if !ok {
		return "", jobNotFound(jobId)
	}
	return stored, nil
}

// RequestTransitions applies the guard to every job in jobIds and stores the results in one
// statement. Unknown jobs and refused transitions are skipped; the returned map holds the
// status stored for every job that was written.
func (r *JobDB) RequestTransitions(ctx context.Context, jobIds []int64, change Change) (map[int64]status.Status, error) {
	if err := validateChange(change); err != nil {
		return nil, err
	}
	current, err := r.currentStatuses(ctx, jobIds)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(current))
	statuses := make([]status.Status, 0, len(current))
	for _, id := range jobIds {
		from, ok := current[id]
		if !ok {
			continue
		}
		actual, allowed := r.nextState(id, from, change.Status)
		if !allowed {
			continue
		}
		ids = append(ids, id)
		statuses = append(statuses, actual)
	}
	if len(ids) == 0 {
		return map[int64]status.Status{}, nil
	}
	return r.applyStatuses(ctx, ids, statuses, change)
}

// OverrideStatus stores a status without consulting the guard.
func (r *JobDB) OverrideStatus(ctx context.Context, jobId int64, change Change) error {
	applied, err := r.OverrideStatuses(ctx, []int64{jobId}, change)
	if err != nil {
		return err
	}
	if _, ok := applied[jobId]; !ok {
		return jobNotFound(jobId)
	}
	return nil
}

// OverrideStatuses stores a status for many jobs without consulting the guard. Unknown jobs are skipped.
func (r *JobDB) OverrideStatuses(ctx context.Context, jobIds []int64, change Change) (map[int64]status.Status, error) {
	if err := validateChange(change); err != nil {
		return nil, err
	}
	statuses := make([]status.Status, len(jobIds))
	for i := range jobIds {
		statuses[i] = change.Status
	}
	return r.applyStatuses(ctx, jobIds, statuses, change)
}

// MarkDeleted moves jobs to Deleted through the guard. Rows are kept; see DeleteJobs.
func (r *JobDB) MarkDeleted(ctx context.Context, jobIds []int64, source string) (map[int64]status.Status, error) {
	return r.RequestTransitions(ctx, jobIds, Change{Status: status.Deleted, MinorStatus: "Deleted by " + sourceOrUnknown(source), Source: source})
}

// GetLoggingInfo returns the status history of a job, oldest first.
func (r *JobDB) GetLoggingInfo(ctx context.Context, jobId int64) ([]LoggingRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, minor_status, application_status, status_time, source
		FROM job_logging WHERE job_id = $1 ORDER BY status_time, serial`, jobId)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetLoggingInfo", err)
	}
	defer rows.Close()
	records := []LoggingRecord{}
	for rows.Next() {
		rec := LoggingRecord{}
		if err := rows.Scan(&rec.Status, &rec.MinorStatus, &rec.ApplicationStatus, &rec.StatusTime, &rec.Source); err != nil {
			return nil, wmserrors.NewStorageError("GetLoggingInfo", err)
		}
		rec.StatusTime = rec.StatusTime.UTC()
		records = append(records, rec)
	}
	return records, wmserrors.NewStorageError("GetLoggingInfo", rows.Err())
}

func validateChange(change Change) error {
	if !change.Status.IsValid() {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "Status", Value: change.Status, Message: "unknown status"})
	}
	return nil
}

// nextState consults the guard. A guard answering with the current status for a different
// candidate refuses the transition.
func (r *JobDB) nextState(jobId int64, current status.Status, candidate status.Status) (status.Status, bool) {
	actual := r.guard.NextState(current, candidate)
	entry := logging.WithJob(log.WithFields(log.Fields{
		"current":   current,
		"requested": candidate,
		"actual":    actual,
	}), jobId)
	if actual == current && candidate != current {
		metrics.RecordRejectedTransition(current, candidate)
		entry.Info("Status transition refused")
		return current, false
	}
	if actual != candidate {
		entry.Warn("Transition guard chose a different status than requested")
	}
	return actual, true
}

func (r *JobDB) currentStatuses(ctx context.Context, jobIds []int64) (map[int64]status.Status, error) {
	rows, err := r.db.Query(ctx, "SELECT job_id, status FROM jobs WHERE job_id = ANY($1)", jobIds)
	if err != nil {
		return nil, wmserrors.NewStorageError("currentStatuses", err)
	}
	defer rows.Close()
	result := make(map[int64]status.Status, len(jobIds))
	for rows.Next() {
		var id int64
		var s status.Status
		if err := rows.Scan(&id, &s); err != nil {
			return nil, wmserrors.NewStorageError("currentStatuses", err)
		}
		result[id] = s
	}
	return result, wmserrors.NewStorageError("currentStatuses", rows.Err())
}

// applyStatuses writes statuses[i] to jobIds[i] and appends the status history, all in one
// statement. Moving to Stalled leaves LastUpdateTime alone; reaching a final status sets
// EndExecTime unless it is already set.
func (r *JobDB) applyStatuses(ctx context.Context, jobIds []int64, statuses []status.Status, change Change) (map[int64]status.Status, error) {
	at := change.Timestamp.UTC()
	if change.Timestamp.IsZero() {
		at = r.clock.Now()
	}
	rows, err := r.db.Query(ctx, `
		WITH changes AS (
			SELECT * FROM unnest($1::bigint[], $2::text[]) AS c(job_id, status)
		), updated AS (
			UPDATE jobs j SET
				status = c.status,
				minor_status = COALESCE($3::text, j.minor_status),
				application_status = COALESCE($4::text, j.application_status),
				last_update_time = CASE WHEN c.status = $6::text THEN j.last_update_time ELSE $5::timestamptz END,
				end_exec_time = CASE WHEN c.status = ANY($7::text[]) THEN COALESCE(j.end_exec_time, $5::timestamptz) ELSE j.end_exec_time END
			FROM changes c
			WHERE j.job_id = c.job_id
			RETURNING j.job_id, j.status, j.minor_status, j.application_status
		)
		INSERT INTO job_logging (job_id, status, minor_status, application_status, status_time, source)
		SELECT job_id, status, minor_status, application_status, $5::timestamptz, $8::text FROM updated
		RETURNING job_id, status`,
		jobIds, statusStrings(statuses), nullIfEmpty(change.MinorStatus), nullIfEmpty(change.ApplicationStatus),
		at, string(status.Stalled), status.FinalStatesAsStrings(), sourceOrUnknown(change.Source))
	if err != nil {
		return nil, wmserrors.NewStorageError("applyStatuses", err)
	}
	defer rows.Close()

	applied := make(map[int64]status.Status, len(jobIds))
	for rows.Next() {
		var id int64
		var s status.Status
		if err := rows.Scan(&id, &s); err != nil {
			return nil, wmserrors.NewStorageError("applyStatuses", err)
		}
		applied[id] = s
		metrics.RecordTransition(change.Status, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wmserrors.NewStorageError("applyStatuses", err)
	}
	return applied, nil
}

func statusStrings(statuses []status.Status) []string {
	result := make([]string, len(statuses))
	for i, s := range statuses {
		result[i] = string(s)
	}
	return result
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
