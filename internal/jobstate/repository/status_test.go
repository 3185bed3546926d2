package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

func TestRequestTransition_FollowsGuard(t *testing.T) {
	guard := status.NewStateMachine()
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		for _, from := range status.All {
			for _, to := range status.All {
				id := submitSimple(t, ctx, r)
				require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: from, Source: "test"}))

				stored, err := r.RequestTransition(ctx, id, Change{Status: to, Source: "test"})
				expected := guard.NextState(from, to)
				job, getErr := r.GetJob(ctx, id)
				require.NoError(t, getErr)
				if expected == from && from != to {
					var policy *wmserrors.ErrPolicy
					require.ErrorAs(t, err, &policy, "%s -> %s", from, to)
					assert.Equal(t, TransitionRule, policy.Rule)
					assert.Equal(t, from, job.Status, "%s -> %s", from, to)
				} else {
					require.NoError(t, err, "%s -> %s", from, to)
					assert.Equal(t, to, stored)
					assert.Equal(t, to, job.Status, "%s -> %s", from, to)
				}
			}
		}
	})
}

func TestRequestTransition_RefusalWritesNothing(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: status.Done, MinorStatus: "Execution Complete"}))
		before, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		_, err = r.RequestTransition(ctx, id, Change{Status: status.Running, MinorStatus: "resurrected"})
		assert.Error(t, err)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Done, job.Status)
		assert.Equal(t, "Execution Complete", job.MinorStatus)
		assert.Equal(t, baseTime, job.LastUpdateTime)
		after, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestRequestTransition_GuardMayRedirect(t *testing.T) {
	redirect := status.GuardFunc(func(current status.Status, candidate status.Status) status.Status {
		if candidate == status.Running {
			return status.Stalled
		}
		return candidate
	})
	withJobDB(t, redirect, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		stored, err := r.RequestTransition(ctx, id, Change{Status: status.Running})
		require.NoError(t, err)
		assert.Equal(t, status.Stalled, stored)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Stalled, job.Status)
	})
}

func TestRequestTransition_UnknownJob(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		_, err := r.RequestTransition(ctx, 12345, Change{Status: status.Checking})
		assert.True(t, wmserrors.IsNotFound(err))

		_, err = r.RequestTransition(ctx, 12345, Change{Status: "Sleeping"})
		var invalid *wmserrors.ErrInvalidArgument
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestRequestTransitions_SkipsRefusedAndUnknown(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		received := submitSimple(t, ctx, r)
		done := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, done, Change{Status: status.Done}))

		applied, err := r.RequestTransitions(ctx, []int64{received, done, done + 100}, Change{Status: status.Checking, MinorStatus: "JobPath"})
		require.NoError(t, err)
		assert.Equal(t, map[int64]status.Status{received: status.Checking}, applied)

		statuses, err := r.GetJobsAttributes(ctx, []int64{received, done}, "Status", "MinorStatus")
		require.NoError(t, err)
		assert.Equal(t, "Checking", statuses[received]["Status"])
		assert.Equal(t, "JobPath", statuses[received]["MinorStatus"])
		assert.Equal(t, "Done", statuses[done]["Status"])
	})
}

func TestApplyStatus_History(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		clock.Advance(time.Minute)
		_, err := r.RequestTransition(ctx, id, Change{Status: status.Checking, MinorStatus: "JobSanity", Source: "JobPath"})
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = r.RequestTransition(ctx, id, Change{Status: status.Waiting, ApplicationStatus: "queued", Source: "JobScheduling"})
		require.NoError(t, err)

		history, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, LoggingRecord{
			Status:            status.Checking,
			MinorStatus:       "JobSanity",
			ApplicationStatus: status.UnknownApplicationStatus,
			StatusTime:        baseTime.Add(time.Minute),
			Source:            "JobPath",
		}, history[1])
		assert.Equal(t, LoggingRecord{
			Status:            status.Waiting,
			MinorStatus:       "JobSanity",
			ApplicationStatus: "queued",
			StatusTime:        baseTime.Add(2 * time.Minute),
			Source:            "JobScheduling",
		}, history[2])
	})
}

func TestApplyStatus_StalledKeepsLastUpdateTime(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: status.Running}))

		clock.Advance(time.Hour)
		_, err := r.RequestTransition(ctx, id, Change{Status: status.Stalled, MinorStatus: "Job stalled: pilot not running"})
		require.NoError(t, err)

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Stalled, job.Status)
		assert.Equal(t, baseTime, job.LastUpdateTime)

		clock.Advance(time.Hour)
		_, err = r.RequestTransition(ctx, id, Change{Status: status.Running})
		require.NoError(t, err)
		job, err = r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(2*time.Hour), job.LastUpdateTime)
	})
}

func TestApplyStatus_EndExecTimeSetOnce(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: status.Running}))

		clock.Advance(time.Minute)
		_, err := r.RequestTransition(ctx, id, Change{Status: status.Done})
		require.NoError(t, err)
		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, job.EndExecTime)
		assert.Equal(t, baseTime.Add(time.Minute), *job.EndExecTime)

		clock.Advance(time.Minute)
		_, err = r.RequestTransition(ctx, id, Change{Status: status.Deleted})
		require.NoError(t, err)
		job, err = r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(time.Minute), *job.EndExecTime)
	})
}

func TestApplyStatus_ExplicitTimestamp(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		at := baseTime.Add(-time.Hour)
		require.NoError(t, r.OverrideStatus(ctx, id, Change{Status: status.Checking, Timestamp: at}))

		history, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, at, history[0].StatusTime)
		assert.Equal(t, status.Checking, history[0].Status)
	})
}

func TestMarkDeleted(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		waiting := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, waiting, Change{Status: status.Waiting}))
		running := submitSimple(t, ctx, r)
		require.NoError(t, r.OverrideStatus(ctx, running, Change{Status: status.Running}))

		applied, err := r.MarkDeleted(ctx, []int64{waiting, running}, "alice")
		require.NoError(t, err)
		assert.Equal(t, map[int64]status.Status{waiting: status.Deleted}, applied)

		job, err := r.GetJob(ctx, waiting)
		require.NoError(t, err)
		assert.Equal(t, "Deleted by alice", job.MinorStatus)
	})
}

func TestAdvanceOptimizer(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)

		next, err := r.AdvanceOptimizer(ctx, id, "JobPath")
		require.NoError(t, err)
		assert.Equal(t, "JobSanity", next)
		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.Checking, job.Status)
		assert.Equal(t, "JobSanity", job.MinorStatus)

		history, err := r.GetLoggingInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "JobPath", history[len(history)-1].Source)

		_, err = r.AdvanceOptimizer(ctx, id, "JobScheduling")
		var policy *wmserrors.ErrPolicy
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, id, policy.JobId)

		_, err = r.AdvanceOptimizer(ctx, id, "NotAnOptimizer")
		assert.Error(t, err)

		_, err = r.AdvanceOptimizer(ctx, id+100, "JobPath")
		assert.True(t, wmserrors.IsNotFound(err))
	})
}

func TestGetOptimizerChain_SurvivesCacheEviction(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submit(t, ctx, r, `[Executable = "a"; JobPath = "JobPath, JobSanity, JobScheduling";]`)
		r.chains.remove(id)

		chain, err := r.GetOptimizerChain(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.OptimizerChain{"JobPath", "JobSanity", "JobScheduling"}, chain)

		require.NoError(t, r.SetOptimizerParameter(ctx, id, OptimizerChainParameter, "JobPath,JobScheduling"))
		chain, err = r.GetOptimizerChain(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status.OptimizerChain{"JobPath", "JobScheduling"}, chain)
	})
}
