package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/metrics"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

const (
	RescheduleLimitRule = "MaxRescheduling"
	VerifiedRule        = "VerifiedFlag"
)

type RescheduleResult struct {
	JobID             int64         `json:"jobId"`
	RescheduleCounter int           `json:"rescheduleCounter"`
	Status            status.Status `json:"status"`
	MinorStatus       string        `json:"minorStatus"`
}

// RescheduleOutcome is the result of rescheduling one job of a batch.
type RescheduleOutcome struct {
	Result *RescheduleResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Reschedule sends a job back to Received so that it goes through the optimizers again.
//
// The reschedule counter is incremented first. A job that has used up its reschedules is
// failed instead and an *wmserrors.ErrPolicy is returned. Otherwise the job parameters are
// archived under the previous cycle, job and optimizer parameters are cleared and the
// attributes are derived again from the original description. If that derivation fails the
// counter and archive stay as they are; calling Reschedule again is safe.
func (r *JobDB) Reschedule(ctx context.Context, jobId int64, source string) (*RescheduleResult, error) {
	entry := logging.WithJob(log.WithField("source", source), jobId)

	job, err := r.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if !job.VerifiedFlag {
		return nil, errors.WithStack(&wmserrors.ErrPolicy{
			JobId:   jobId,
			Rule:    VerifiedRule,
			Message: "only verified jobs can be rescheduled",
		})
	}

	var counter int32
	err = r.db.QueryRow(ctx, `
		UPDATE jobs SET reschedule_counter = reschedule_counter + 1
		WHERE job_id = $1 AND reschedule_counter < $2
		RETURNING reschedule_counter`,
		jobId, int32(r.config.MaxRescheduling)).Scan(&counter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.failRescheduleLimit(ctx, jobId, source)
	}
	if err != nil {
		return nil, wmserrors.NewStorageError("Reschedule", err)
	}
	previousCycle := counter - 1

	err = r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO attic_job_parameters (job_id, reschedule_cycle, name, value)
			SELECT job_id, $2::integer, name, value FROM job_parameters WHERE job_id = $1
			ON CONFLICT DO NOTHING`,
			jobId, previousCycle)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM job_parameters WHERE job_id = $1", jobId); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "DELETE FROM optimizer_parameters WHERE job_id = $1", jobId)
		return err
	})
	r.chains.remove(jobId)
	if err != nil {
		return nil, storageError("Reschedule", jobId, err)
	}

	description, err := r.GetDescription(ctx, jobId)
	if err != nil {
		return nil, err
	}
	prepared, err := r.preparer.Prepare(description.Original, admission.Identity{
		Owner:      job.Owner,
		OwnerDN:    job.OwnerDN,
		OwnerGroup: job.OwnerGroup,
		VO:         job.VO,
	})
	if err != nil {
		entry.WithError(err).Warn("Could not derive attributes of rescheduled job")
		return nil, errors.Wrapf(err, "rescheduling job %d", jobId)
	}

	now := r.clock.Now()
	err = r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		a := prepared.Attributes
		_, err := tx.Exec(ctx, `
			UPDATE jobs SET
				status = $2, minor_status = $3, application_status = $4,
				job_name = $5, job_group = $6, job_type = $7, site = $8, user_priority = $9,
				cpu_time = $10, platform = $11, vo = $12,
				reschedule_time = $13, last_update_time = $13, start_exec_time = NULL, end_exec_time = NULL
			WHERE job_id = $1`,
			jobId, status.Received, status.RescheduledMinorStatus, status.UnknownApplicationStatus,
			a.JobName, a.JobGroup, a.JobType, a.Site, int32(a.UserPriority),
			a.CPUTime, a.Platform, a.VO, now)
		if err != nil {
			return err
		}
		if err := r.writeDescription(ctx, tx, jobId, prepared.Original, prepared.Resolved, prepared.Requirements); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM input_files WHERE job_id = $1", jobId); err != nil {
			return err
		}
		if err := writeInputFiles(ctx, tx, jobId, prepared.InputFiles); err != nil {
			return err
		}
		if err := setOptimizerParameter(ctx, tx, jobId, OptimizerChainParameter, prepared.Chain.String()); err != nil {
			return err
		}
		return appendLogging(ctx, tx, jobId, status.Received, status.RescheduledMinorStatus, status.UnknownApplicationStatus, now, source)
	})
	if err != nil {
		return nil, storageError("Reschedule", jobId, err)
	}
	r.chains.add(jobId, prepared.Chain)
	metrics.RecordReschedule()

	entry.Infof("Rescheduled job, cycle %d of %d", counter, r.config.MaxRescheduling)
	return &RescheduleResult{
		JobID:             jobId,
		RescheduleCounter: int(counter),
		Status:            status.Received,
		MinorStatus:       status.RescheduledMinorStatus,
	}, nil
}

func (r *JobDB) failRescheduleLimit(ctx context.Context, jobId int64, source string) error {
	applied, err := r.applyStatuses(ctx, []int64{jobId}, []status.Status{status.Failed}, Change{
		Status:      status.Failed,
		MinorStatus: status.MaxReschedulingMinorStatus,
		Source:      source,
	})
	if err != nil {
		return err
	}
	if _, ok := applied[jobId]; !ok {
		return jobNotFound(jobId)
	}
	metrics.RecordRescheduleLimitReached()
	logging.WithJob(log.WithField("source", source), jobId).Warn("Job failed, no reschedules left")
	return errors.WithStack(&wmserrors.ErrPolicy{
		JobId:   jobId,
		Rule:    RescheduleLimitRule,
		Message: fmt.Sprintf("%s (%d)", status.MaxReschedulingMinorStatus, r.config.MaxRescheduling),
	})
}

// RescheduleJobs reschedules every job independently and reports each outcome.
func (r *JobDB) RescheduleJobs(ctx context.Context, jobIds []int64, source string) map[int64]RescheduleOutcome {
	outcomes := make(map[int64]RescheduleOutcome, len(jobIds))
	for _, id := range jobIds {
		result, err := r.Reschedule(ctx, id, source)
		if err != nil {
			outcomes[id] = RescheduleOutcome{Error: err.Error()}
			continue
		}
		outcomes[id] = RescheduleOutcome{Result: result}
	}
	return outcomes
}
