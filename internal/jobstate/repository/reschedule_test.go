package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

func TestReschedule(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submit(t, ctx, r, `[Executable = "a"; InputData = {"/lhcb/a"}; JobName = "first";]`)
		require.NoError(t, r.SetParameters(ctx, id, map[string]string{"Pilot": "p1", "Site": "LCG.CERN.ch"}))
		require.NoError(t, r.SetOptimizerParameter(ctx, id, "Candidates", "x"))
		require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: status.Running}))
		require.NoError(t, r.RecordHeartbeat(ctx, id, nil, time.Time{}))
		_, err := r.RequestTransition(ctx, id, Change{Status: status.Failed, MinorStatus: "Payload failed"})
		require.NoError(t, err)

		clock.Advance(time.Hour)
		result, err := r.Reschedule(ctx, id, "JobCleaner")
		require.NoError(t, err)
		assert.Equal(t, &RescheduleResult{
			JobID:             id,
			RescheduleCounter: 1,
			Status:            status.Received,
			MinorStatus:       status.RescheduledMinorStatus,
		}, result)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Received, job.Status)
		assert.Equal(t, status.RescheduledMinorStatus, job.MinorStatus)
		assert.Equal(t, int32(1), job.RescheduleCounter)
		assert.Equal(t, "first", job.JobName)
		assert.Nil(t, job.StartExecTime)
		assert.Nil(t, job.EndExecTime)
		assert.NotNil(t, job.HeartBeatTime)
		require.NotNil(t, job.RescheduleTime)
		assert.Equal(t, baseTime.Add(time.Hour), *job.RescheduleTime)
		assert.Equal(t, baseTime.Add(time.Hour), job.LastUpdateTime)

		params, err := r.GetParameters(ctx, []int64{id})
		require.NoError(t, err)
		assert.Empty(t, params[id])
		attic, err := r.GetAtticParameters(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Pilot": "p1", "Site": "LCG.CERN.ch"}, attic)

		optimizer, err := r.GetOptimizerParameters(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{OptimizerChainParameter: defaultChain.String()}, optimizer)

		files, err := r.GetInputFiles(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"/lhcb/a"}, files)

		history, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, status.Received, last.Status)
		assert.Equal(t, "JobCleaner", last.Source)
	})
}

func TestReschedule_Limit(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		for i := 0; i < testMaxRescheduling; i++ {
			require.NoError(t, r.SetParameter(ctx, id, "Cycle", itoa(i)))
			result, err := r.Reschedule(ctx, id, "test")
			require.NoError(t, err)
			assert.Equal(t, i+1, result.RescheduleCounter)
		}

		_, err := r.Reschedule(ctx, id, "test")
		var policy *wmserrors.ErrPolicy
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, RescheduleLimitRule, policy.Rule)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Failed, job.Status)
		assert.Equal(t, status.MaxReschedulingMinorStatus, job.MinorStatus)
		assert.Equal(t, int32(testMaxRescheduling), job.RescheduleCounter)

		cycles, err := r.GetAtticCycles(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, cycles)
		for i, cycle := range cycles {
			attic, err := r.GetAtticParameters(ctx, id, cycle)
			require.NoError(t, err)
			assert.Equal(t, itoa(i), attic["Cycle"])
		}
	})
}

func TestReschedule_DerivationFailureKeepsCounterAndAttic(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submit(t, ctx, r, `[Executable = "a"; Platform = "el9";]`)
		require.NoError(t, r.SetParameters(ctx, id, map[string]string{"Pilot": "p1"}))

		working := r.preparer
		r.preparer = admission.NewPreparer(
			admission.Config{DefaultCPUTime: 86400, DefaultOptimizerChain: defaultChain},
			platform.NewStaticResolver(map[string][]string{"el8": {"el8"}}),
		)
		_, err := r.Reschedule(ctx, id, "test")
		var validationErr *admission.ValidationError
		require.ErrorAs(t, err, &validationErr)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int32(1), job.RescheduleCounter)
		assert.Equal(t, status.Received, job.Status)
		assert.Nil(t, job.RescheduleTime)
		params, err := r.GetParameters(ctx, []int64{id})
		require.NoError(t, err)
		assert.Empty(t, params[id])
		cycles, err := r.GetAtticCycles(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, cycles)

		r.preparer = working
		result, err := r.Reschedule(ctx, id, "test")
		require.NoError(t, err)
		assert.Equal(t, 2, result.RescheduleCounter)

		cycles, err = r.GetAtticCycles(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, cycles)
		attic, err := r.GetAtticParameters(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Pilot": "p1"}, attic)
	})
}

func TestReschedule_RequiresVerifiedJob(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		sub := testOwner
		sub.Description = `[Executable = "a"; Platform = "solaris";]`
		rejected, err := r.InsertJob(ctx, sub)
		require.NoError(t, err)

		_, err = r.Reschedule(ctx, rejected.JobID, "test")
		var policy *wmserrors.ErrPolicy
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, VerifiedRule, policy.Rule)

		job, err := r.GetJob(ctx, rejected.JobID)
		require.NoError(t, err)
		assert.Equal(t, int32(0), job.RescheduleCounter)
	})
}

func TestRescheduleJobs(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		outcomes := r.RescheduleJobs(ctx, []int64{id, id + 100}, "test")
		require.Len(t, outcomes, 2)
		require.NotNil(t, outcomes[id].Result)
		assert.Equal(t, 1, outcomes[id].Result.RescheduleCounter)
		assert.Nil(t, outcomes[id+100].Result)
		assert.NotEmpty(t, outcomes[id+100].Error)
	})
}
