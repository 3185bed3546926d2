package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/jdl"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

// OptimizerChainParameter is the optimizer parameter holding a job's optimizer chain.
const OptimizerChainParameter = "OptimizerChain"

// SubmissionSource is recorded in the status history of newly inserted jobs.
const SubmissionSource = "JobStore"

type Submission struct {
	Description string
	Owner       string
	OwnerDN     string
	OwnerGroup  string
	VO          string
	// Defaults to Received
	InitialStatus status.Status
}

// SubmissionResult is returned for every recorded job, including jobs that failed admission.
type SubmissionResult struct {
	JobID       int64         `json:"jobId"`
	Status      status.Status `json:"status"`
	MinorStatus string        `json:"minorStatus"`
}

// InsertJob records a new job. A description that fails admission is still recorded, as a
// Failed job with the reason in MinorStatus, and is not reported as an error.
func (r *JobDB) InsertJob(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	initial := sub.InitialStatus
	if initial == "" {
		initial = status.Received
	}
	if !initial.IsValid() {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "InitialStatus", Value: sub.InitialStatus, Message: "unknown status"})
	}
	identity := admission.Identity{Owner: sub.Owner, OwnerDN: sub.OwnerDN, OwnerGroup: sub.OwnerGroup, VO: sub.VO}

	prepared, err := r.preparer.Prepare(sub.Description, identity)
	var validationErr *admission.ValidationError
	if errors.As(err, &validationErr) {
		return r.insertRejected(ctx, sub, validationErr.MinorStatus)
	}
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	minorStatus := status.JobAcceptedMinorStatus
	var jobId int64
	err = r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		a := prepared.Attributes
		var endExecTime *time.Time
		if initial.IsFinal() {
			endExecTime = &now
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO jobs (status, minor_status, application_status, owner, owner_dn, owner_group, vo,
				job_name, job_group, job_type, site, user_priority, verified_flag, cpu_time, platform,
				submission_time, last_update_time, end_exec_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13, $14, $15, $15, $16)
			RETURNING job_id`,
			initial, minorStatus, status.UnknownApplicationStatus, a.Owner, a.OwnerDN, a.OwnerGroup, a.VO,
			a.JobName, a.JobGroup, a.JobType, a.Site, int32(a.UserPriority), a.CPUTime, a.Platform,
			now, endExecTime,
		).Scan(&jobId)
		if err != nil {
			return err
		}
		if err := r.writeDescription(ctx, tx, jobId, prepared.Original, prepared.Resolved, prepared.Requirements); err != nil {
			return err
		}
		if err := writeInputFiles(ctx, tx, jobId, prepared.InputFiles); err != nil {
			return err
		}
		if err := setOptimizerParameter(ctx, tx, jobId, OptimizerChainParameter, prepared.Chain.String()); err != nil {
			return err
		}
		return appendLogging(ctx, tx, jobId, initial, minorStatus, status.UnknownApplicationStatus, now, SubmissionSource)
	})
	if err != nil {
		return nil, storageError("InsertJob", jobId, err)
	}
	r.chains.add(jobId, prepared.Chain)

	logging.WithJob(log.WithField("owner", sub.Owner), jobId).Infof("Inserted job with status %s", initial)
	return &SubmissionResult{JobID: jobId, Status: initial, MinorStatus: minorStatus}, nil
}

// insertRejected records a job that failed admission.
func (r *JobDB) insertRejected(ctx context.Context, sub Submission, reason string) (*SubmissionResult, error) {
	now := r.clock.Now()
	original := jdl.NormalizeBrackets(sub.Description)
	var jobId int64
	err := r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO jobs (status, minor_status, application_status, owner, owner_dn, owner_group, vo,
				verified_flag, submission_time, last_update_time, end_exec_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $8, $8)
			RETURNING job_id`,
			status.Failed, reason, status.UnknownApplicationStatus, sub.Owner, sub.OwnerDN, sub.OwnerGroup, sub.VO, now,
		).Scan(&jobId)
		if err != nil {
			return err
		}
		if err := r.writeDescription(ctx, tx, jobId, original, original, ""); err != nil {
			return err
		}
		return appendLogging(ctx, tx, jobId, status.Failed, reason, status.UnknownApplicationStatus, now, SubmissionSource)
	})
	if err != nil {
		return nil, storageError("InsertJob", jobId, err)
	}
	logging.WithJob(log.WithField("owner", sub.Owner), jobId).Warnf("Job failed admission: %s", reason)
	return &SubmissionResult{JobID: jobId, Status: status.Failed, MinorStatus: reason}, nil
}

func appendLogging(ctx context.Context, q pgxtype.Querier, jobId int64, s status.Status, minor string, application string, at time.Time, source string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO job_logging (job_id, status, minor_status, application_status, status_time, source)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		jobId, s, minor, application, at, sourceOrUnknown(source))
	return err
}

func sourceOrUnknown(source string) string {
	if strings.TrimSpace(source) == "" {
		return "Unknown"
	}
	return source
}
