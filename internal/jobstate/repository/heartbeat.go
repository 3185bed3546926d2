package repository

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

type HeartbeatSample struct {
	Name          string    `json:"name"`
	Value         string    `json:"value"`
	HeartBeatTime time.Time `json:"heartBeatTime"`
}

// RecordHeartbeat marks the job alive at the given time (now if zero) and appends every
// metric as a new sample. HeartBeatTime never moves backwards and StartExecTime is only
// set if it is not set yet.
func (r *JobDB) RecordHeartbeat(ctx context.Context, jobId int64, samples map[string]string, at time.Time) error {
	if at.IsZero() {
		at = r.clock.Now()
	}
	at = at.UTC()

	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = samples[name]
	}

	err := r.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE jobs SET
				heart_beat_time = GREATEST(COALESCE(heart_beat_time, $2), $2),
				start_exec_time = COALESCE(start_exec_time, $2)
			WHERE job_id = $1`,
			jobId, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return jobNotFound(jobId)
		}
		if len(names) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO heartbeat_samples (job_id, name, value, heart_beat_time)
			SELECT $1::bigint, t.name, t.value, $4::timestamptz FROM unnest($2::text[], $3::text[]) AS t(name, value)`,
			jobId, names, values, at)
		return err
	})
	if wmserrors.IsNotFound(err) {
		return err
	}
	return storageError("RecordHeartbeat", jobId, err)
}

// GetHeartbeatData returns the samples of a job in time order.
func (r *JobDB) GetHeartbeatData(ctx context.Context, jobId int64) ([]HeartbeatSample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT name, value, heart_beat_time FROM heartbeat_samples
		WHERE job_id = $1 ORDER BY heart_beat_time, serial`, jobId)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetHeartbeatData", err)
	}
	defer rows.Close()
	samples := []HeartbeatSample{}
	for rows.Next() {
		s := HeartbeatSample{}
		if err := rows.Scan(&s.Name, &s.Value, &s.HeartBeatTime); err != nil {
			return nil, wmserrors.NewStorageError("GetHeartbeatData", err)
		}
		s.HeartBeatTime = s.HeartBeatTime.UTC()
		samples = append(samples, s)
	}
	return samples, wmserrors.NewStorageError("GetHeartbeatData", rows.Err())
}
