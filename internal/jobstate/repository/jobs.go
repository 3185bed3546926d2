package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

type Job struct {
	JobID             int64         `json:"jobId"`
	Status            status.Status `json:"status"`
	MinorStatus       string        `json:"minorStatus"`
	ApplicationStatus string        `json:"applicationStatus"`
	Owner             string        `json:"owner"`
	OwnerDN           string        `json:"ownerDN"`
	OwnerGroup        string        `json:"ownerGroup"`
	VO                string        `json:"vo"`
	JobName           string        `json:"jobName"`
	JobGroup          string        `json:"jobGroup"`
	JobType           string        `json:"jobType"`
	Site              string        `json:"site"`
	UserPriority      int32         `json:"userPriority"`
	VerifiedFlag      bool          `json:"verifiedFlag"`
	RescheduleCounter int32         `json:"rescheduleCounter"`
	CPUTime           int64         `json:"cpuTime"`
	Platform          string        `json:"platform"`
	SubmissionTime    time.Time     `json:"submissionTime"`
	LastUpdateTime    time.Time     `json:"lastUpdateTime"`
	HeartBeatTime     *time.Time    `json:"heartBeatTime,omitempty"`
	StartExecTime     *time.Time    `json:"startExecTime,omitempty"`
	EndExecTime       *time.Time    `json:"endExecTime,omitempty"`
	RescheduleTime    *time.Time    `json:"rescheduleTime,omitempty"`
}

const jobColumns = `job_id, status, minor_status, application_status, owner, owner_dn, owner_group, vo,
	job_name, job_group, job_type, site, user_priority, verified_flag, reschedule_counter, cpu_time, platform,
	submission_time, last_update_time, heart_beat_time, start_exec_time, end_exec_time, reschedule_time`

func scanJob(row pgx.Row) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.JobID, &j.Status, &j.MinorStatus, &j.ApplicationStatus, &j.Owner, &j.OwnerDN, &j.OwnerGroup, &j.VO,
		&j.JobName, &j.JobGroup, &j.JobType, &j.Site, &j.UserPriority, &j.VerifiedFlag, &j.RescheduleCounter,
		&j.CPUTime, &j.Platform, &j.SubmissionTime, &j.LastUpdateTime, &j.HeartBeatTime, &j.StartExecTime,
		&j.EndExecTime, &j.RescheduleTime)
	if err != nil {
		return nil, err
	}
	j.SubmissionTime = j.SubmissionTime.UTC()
	j.LastUpdateTime = j.LastUpdateTime.UTC()
	for _, t := range []**time.Time{&j.HeartBeatTime, &j.StartExecTime, &j.EndExecTime, &j.RescheduleTime} {
		if *t != nil {
			utc := (*t).UTC()
			*t = &utc
		}
	}
	return j, nil
}

func (r *JobDB) GetJob(ctx context.Context, jobId int64) (*Job, error) {
	row := r.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE job_id = $1", jobId)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobNotFound(jobId)
	}
	if err != nil {
		return nil, storageError("GetJob", jobId, err)
	}
	return job, nil
}

// GetJobs returns the jobs that exist among jobIds, keyed by id.
func (r *JobDB) GetJobs(ctx context.Context, jobIds []int64) (map[int64]*Job, error) {
	rows, err := r.db.Query(ctx, "SELECT "+jobColumns+" FROM jobs WHERE job_id = ANY($1)", jobIds)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetJobs", err)
	}
	defer rows.Close()
	jobs := make(map[int64]*Job, len(jobIds))
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, wmserrors.NewStorageError("GetJobs", err)
		}
		jobs[job.JobID] = job
	}
	return jobs, wmserrors.NewStorageError("GetJobs", rows.Err())
}

// GetAttributes returns attributes of one job in their text form. No names means all attributes.
func (r *JobDB) GetAttributes(ctx context.Context, jobId int64, names ...string) (map[string]string, error) {
	attributes, err := r.GetJobsAttributes(ctx, []int64{jobId}, names...)
	if err != nil {
		return nil, err
	}
	result, ok := attributes[jobId]
	if !ok {
		return nil, jobNotFound(jobId)
	}
	return result, nil
}

// GetJobsAttributes returns attributes of many jobs keyed by job id. Unknown ids are absent.
func (r *JobDB) GetJobsAttributes(ctx context.Context, jobIds []int64, names ...string) (map[int64]map[string]string, error) {
	columns, err := r.schema.columns(names)
	if err != nil {
		return nil, err
	}
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = c.textExpression()
	}
	sql := "SELECT job_id, " + strings.Join(exprs, ", ") + " FROM jobs WHERE job_id = ANY($1)"
	rows, err := r.db.Query(ctx, sql, jobIds)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetJobsAttributes", err)
	}
	defer rows.Close()

	result := make(map[int64]map[string]string, len(jobIds))
	for rows.Next() {
		var jobId int64
		values := make([]string, len(columns))
		dest := make([]interface{}, 0, len(columns)+1)
		dest = append(dest, &jobId)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, wmserrors.NewStorageError("GetJobsAttributes", err)
		}
		attributes := make(map[string]string, len(columns))
		for i, c := range columns {
			attributes[c.attribute] = values[i]
		}
		result[jobId] = attributes
	}
	return result, wmserrors.NewStorageError("GetJobsAttributes", rows.Err())
}

type AttributeUpdateOptions struct {
	// Also set LastUpdateTime to now
	TouchLastUpdate bool
	// Only write jobs whose LastUpdateTime is before this time
	OnlyIfUpdatedBefore *time.Time
}

func (r *JobDB) SetAttribute(ctx context.Context, jobId int64, name string, value string, opts AttributeUpdateOptions) (bool, error) {
	return r.SetAttributes(ctx, jobId, map[string]string{name: value}, opts)
}

// SetAttributes writes attributes of one job. It reports false when OnlyIfUpdatedBefore
// prevented the write.
func (r *JobDB) SetAttributes(ctx context.Context, jobId int64, values map[string]string, opts AttributeUpdateOptions) (bool, error) {
	updated, err := r.SetJobsAttributes(ctx, []int64{jobId}, values, opts)
	if err != nil {
		return false, err
	}
	if updated == 0 {
		if opts.OnlyIfUpdatedBefore == nil {
			return false, jobNotFound(jobId)
		}
		exists, err := r.exists(ctx, jobId)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, jobNotFound(jobId)
		}
		return false, nil
	}
	return true, nil
}

// SetJobsAttributes writes the same attribute values to every job in jobIds in one
// statement and returns the number of jobs written. Every value is checked first: one
// invalid value aborts the whole write.
func (r *JobDB) SetJobsAttributes(ctx context.Context, jobIds []int64, values map[string]string, opts AttributeUpdateOptions) (int64, error) {
	if len(values) == 0 {
		return 0, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "values", Value: values, Message: "no attributes to set"})
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, 0, len(values)+1)
	args := make([]interface{}, 0, len(values)+3)
	touched := false
	for _, name := range names {
		c, err := r.schema.writable(name)
		if err != nil {
			return 0, err
		}
		v, err := c.parse(values[name])
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		assignments = append(assignments, c.identifier()+" = $"+itoa(len(args)))
		if c.name == "last_update_time" {
			touched = true
		}
	}
	if opts.TouchLastUpdate && !touched {
		args = append(args, r.clock.Now())
		assignments = append(assignments, "last_update_time = $"+itoa(len(args)))
	}
	args = append(args, jobIds)
	sql := "UPDATE jobs SET " + strings.Join(assignments, ", ") + " WHERE job_id = ANY($" + itoa(len(args)) + ")"
	if opts.OnlyIfUpdatedBefore != nil {
		args = append(args, opts.OnlyIfUpdatedBefore.UTC())
		sql += " AND last_update_time < $" + itoa(len(args))
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, wmserrors.NewStorageError("SetJobsAttributes", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobDB) exists(ctx context.Context, jobId int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)", jobId).Scan(&exists)
	if err != nil {
		return false, wmserrors.NewStorageError("exists", err)
	}
	return exists, nil
}
