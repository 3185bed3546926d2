package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

func (r *JobDB) SetParameter(ctx context.Context, jobId int64, name string, value string) error {
	return r.SetParameters(ctx, jobId, map[string]string{name: value})
}

// SetParameters upserts parameters of one job.
func (r *JobDB) SetParameters(ctx context.Context, jobId int64, values map[string]string) error {
	return r.SetJobsParameters(ctx, map[int64]map[string]string{jobId: values})
}

// SetJobsParameters upserts parameters of many jobs in one statement. A blank name
// anywhere aborts the whole write.
func (r *JobDB) SetJobsParameters(ctx context.Context, values map[int64]map[string]string) error {
	ids, names, vals, err := flattenParameters(values)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO job_parameters (job_id, name, value)
		SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[])
		ON CONFLICT (job_id, name) DO UPDATE SET value = EXCLUDED.value`,
		ids, names, vals)
	return storageError("SetJobsParameters", singleId(values), err)
}

// GetParameters returns parameters of many jobs keyed by job id. No names means all parameters.
// Jobs without any matching parameter are absent.
func (r *JobDB) GetParameters(ctx context.Context, jobIds []int64, names ...string) (map[int64]map[string]string, error) {
	return r.getParameters(ctx, "job_parameters", jobIds, names)
}

func (r *JobDB) getParameters(ctx context.Context, table string, jobIds []int64, names []string) (map[int64]map[string]string, error) {
	sql := "SELECT job_id, name, value FROM " + table + " WHERE job_id = ANY($1)"
	args := []interface{}{jobIds}
	if len(names) > 0 {
		sql += " AND name = ANY($2)"
		args = append(args, names)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetParameters", err)
	}
	defer rows.Close()

	result := make(map[int64]map[string]string)
	for rows.Next() {
		var jobId int64
		var name, value string
		if err := rows.Scan(&jobId, &name, &value); err != nil {
			return nil, wmserrors.NewStorageError("GetParameters", err)
		}
		if result[jobId] == nil {
			result[jobId] = map[string]string{}
		}
		result[jobId][name] = value
	}
	return result, wmserrors.NewStorageError("GetParameters", rows.Err())
}

func (r *JobDB) SetOptimizerParameter(ctx context.Context, jobId int64, name string, value string) error {
	if strings.TrimSpace(name) == "" {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "name", Value: name, Message: "parameter names must not be blank"})
	}
	err := setOptimizerParameter(ctx, r.db, jobId, name, value)
	if err != nil {
		return storageError("SetOptimizerParameter", jobId, err)
	}
	if name == OptimizerChainParameter {
		r.chains.remove(jobId)
	}
	return nil
}

func setOptimizerParameter(ctx context.Context, q pgxtype.Querier, jobId int64, name string, value string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO optimizer_parameters (job_id, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (job_id, name) DO UPDATE SET value = EXCLUDED.value`,
		jobId, name, value)
	return err
}

// GetOptimizerParameters returns optimizer parameters of one job. No names means all parameters.
func (r *JobDB) GetOptimizerParameters(ctx context.Context, jobId int64, names ...string) (map[string]string, error) {
	params, err := r.getParameters(ctx, "optimizer_parameters", []int64{jobId}, names)
	if err != nil {
		return nil, err
	}
	if params[jobId] == nil {
		return map[string]string{}, nil
	}
	return params[jobId], nil
}

// RemoveOptimizerParameters deletes optimizer parameters of one job. No names means all parameters.
func (r *JobDB) RemoveOptimizerParameters(ctx context.Context, jobId int64, names ...string) error {
	sql := "DELETE FROM optimizer_parameters WHERE job_id = $1"
	args := []interface{}{jobId}
	if len(names) > 0 {
		sql += " AND name = ANY($2)"
		args = append(args, names)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return wmserrors.NewStorageError("RemoveOptimizerParameters", err)
	}
	r.chains.remove(jobId)
	return nil
}

// GetAtticParameters returns the parameters archived by the reschedule that ended cycle.
func (r *JobDB) GetAtticParameters(ctx context.Context, jobId int64, cycle int) (map[string]string, error) {
	rows, err := r.db.Query(ctx,
		"SELECT name, value FROM attic_job_parameters WHERE job_id = $1 AND reschedule_cycle = $2",
		jobId, int32(cycle))
	if err != nil {
		return nil, wmserrors.NewStorageError("GetAtticParameters", err)
	}
	defer rows.Close()
	result := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, wmserrors.NewStorageError("GetAtticParameters", err)
		}
		result[name] = value
	}
	return result, wmserrors.NewStorageError("GetAtticParameters", rows.Err())
}

// GetAtticCycles lists the reschedule cycles archived for a job.
func (r *JobDB) GetAtticCycles(ctx context.Context, jobId int64) ([]int, error) {
	rows, err := r.db.Query(ctx,
		"SELECT DISTINCT reschedule_cycle FROM attic_job_parameters WHERE job_id = $1 ORDER BY reschedule_cycle",
		jobId)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetAtticCycles", err)
	}
	defer rows.Close()
	cycles := []int{}
	for rows.Next() {
		var cycle int32
		if err := rows.Scan(&cycle); err != nil {
			return nil, wmserrors.NewStorageError("GetAtticCycles", err)
		}
		cycles = append(cycles, int(cycle))
	}
	return cycles, wmserrors.NewStorageError("GetAtticCycles", rows.Err())
}

// GetInputFiles returns the input files of a job in submission order.
func (r *JobDB) GetInputFiles(ctx context.Context, jobId int64) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT path FROM input_files WHERE job_id = $1 ORDER BY position", jobId)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetInputFiles", err)
	}
	defer rows.Close()
	paths := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, wmserrors.NewStorageError("GetInputFiles", err)
		}
		paths = append(paths, path)
	}
	return paths, wmserrors.NewStorageError("GetInputFiles", rows.Err())
}

// SetInputFiles replaces the input files of a job. Blank and repeated paths are dropped.
func (r *JobDB) SetInputFiles(ctx context.Context, jobId int64, paths []string) error {
	err := r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM input_files WHERE job_id = $1", jobId); err != nil {
			return err
		}
		return writeInputFiles(ctx, tx, jobId, util.UniqueNonBlank(paths))
	})
	return storageError("SetInputFiles", jobId, err)
}

func writeInputFiles(ctx context.Context, q pgxtype.Querier, jobId int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		INSERT INTO input_files (job_id, position, path)
		SELECT $1::bigint, t.position, t.path FROM unnest($2::text[]) WITH ORDINALITY AS t(path, position)`,
		jobId, paths)
	return err
}

// flattenParameters turns per-job maps into parallel arrays for unnest, in a stable order.
func flattenParameters(values map[int64]map[string]string) ([]int64, []string, []string, error) {
	jobIds := make([]int64, 0, len(values))
	for id := range values {
		jobIds = append(jobIds, id)
	}
	sort.Slice(jobIds, func(i, j int) bool { return jobIds[i] < jobIds[j] })

	var ids []int64
	var names, vals []string
	for _, id := range jobIds {
		params := values[id]
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.TrimSpace(k) == "" {
				return nil, nil, nil, errors.WithStack(&wmserrors.ErrInvalidArgument{
					Name: "name", Value: k, Message: "parameter names must not be blank",
				})
			}
			ids = append(ids, id)
			names = append(names, k)
			vals = append(vals, params[k])
		}
	}
	return ids, names, vals, nil
}

// singleId returns the job id when values holds exactly one job, for error reporting.
func singleId(values map[int64]map[string]string) int64 {
	if len(values) != 1 {
		return 0
	}
	for id := range values {
		return id
	}
	return 0
}
