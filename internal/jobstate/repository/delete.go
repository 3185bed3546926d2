package repository

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

// DeleteJobs removes jobs and everything recorded about them. Unknown ids are ignored.
func (r *JobDB) DeleteJobs(ctx context.Context, jobIds []int64) (int64, error) {
	if len(jobIds) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, "DELETE FROM jobs WHERE job_id = ANY($1)", jobIds)
	if err != nil {
		return 0, wmserrors.NewStorageError("DeleteJobs", err)
	}
	r.chains.remove(jobIds...)
	log.Infof("Deleted %d of %d requested jobs", tag.RowsAffected(), len(jobIds))
	return tag.RowsAffected(), nil
}
