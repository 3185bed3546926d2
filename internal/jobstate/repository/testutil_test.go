package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common/database"
	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

const testMaxRescheduling = 3

var (
	baseTime     = time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC)
	defaultChain = status.OptimizerChain{"JobPath", "JobSanity", "InputData", "JobScheduling"}
	testOwner    = Submission{
		Owner:      "alice",
		OwnerDN:    "/DC=ch/DC=cern/CN=alice",
		OwnerGroup: "lhcb_user",
	}
)

func testPreparer() *admission.Preparer {
	return admission.NewPreparer(
		admission.Config{DefaultCPUTime: 86400, DefaultOptimizerChain: defaultChain},
		platform.NewStaticResolver(map[string][]string{"el9": {"el8"}}),
	)
}

func withJobDB(t *testing.T, guard status.Guard, action func(ctx context.Context, r *JobDB, clock *util.DummyClock)) {
	migrations, err := Migrations()
	require.NoError(t, err)
	err = database.WithTestDb(migrations, func(db *pgxpool.Pool, _ *sql.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r, err := New(ctx, db, Config{MaxRescheduling: testMaxRescheduling, OptimizerChainCacheSize: 100}, testPreparer(), guard)
		if err != nil {
			return err
		}
		clock := &util.DummyClock{T: baseTime}
		r.clock = clock
		action(ctx, r, clock)
		return nil
	})
	require.NoError(t, err)
}

func submit(t *testing.T, ctx context.Context, r *JobDB, description string) int64 {
	sub := testOwner
	sub.Description = description
	result, err := r.InsertJob(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, status.Received, result.Status, result.MinorStatus)
	return result.JobID
}

func submitSimple(t *testing.T, ctx context.Context, r *JobDB) int64 {
	return submit(t, ctx, r, `[Executable = "/bin/echo"; Arguments = "hello";]`)
}
