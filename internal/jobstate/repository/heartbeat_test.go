package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

func TestRecordHeartbeat(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)

		first := baseTime.Add(time.Minute)
		require.NoError(t, r.RecordHeartbeat(ctx, id, map[string]string{"LoadAverage": "0.5", "Vsize": "100"}, first))
		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, *job.StartExecTime)
		assert.Equal(t, first, *job.HeartBeatTime)

		later := first.Add(time.Minute)
		require.NoError(t, r.RecordHeartbeat(ctx, id, map[string]string{"LoadAverage": "0.7"}, later))
		// a late sample from before the last one
		require.NoError(t, r.RecordHeartbeat(ctx, id, map[string]string{"LoadAverage": "0.6"}, first.Add(30*time.Second)))

		job, err = r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, *job.StartExecTime)
		assert.Equal(t, later, *job.HeartBeatTime)

		samples, err := r.GetHeartbeatData(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []HeartbeatSample{
			{Name: "LoadAverage", Value: "0.5", HeartBeatTime: first},
			{Name: "Vsize", Value: "100", HeartBeatTime: first},
			{Name: "LoadAverage", Value: "0.6", HeartBeatTime: first.Add(30 * time.Second)},
			{Name: "LoadAverage", Value: "0.7", HeartBeatTime: later},
		}, samples)
	})
}

func TestRecordHeartbeat_DefaultsToNow(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		clock.Advance(time.Hour)
		require.NoError(t, r.RecordHeartbeat(ctx, id, nil, time.Time{}))

		job, err := r.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(time.Hour), *job.HeartBeatTime)
	})
}

func TestRecordHeartbeat_UnknownJob(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		err := r.RecordHeartbeat(ctx, 999, map[string]string{"LoadAverage": "1"}, time.Time{})
		assert.True(t, wmserrors.IsNotFound(err))
	})
}

func TestCommands(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		require.NoError(t, r.EnqueueCommand(ctx, id, "Kill", ""))
		clock.Advance(time.Second)
		require.NoError(t, r.EnqueueCommand(ctx, id, "Peek", "lines=10"))

		pending, err := r.PollCommands(ctx, id, CommandReceived)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "Kill", pending[0].Command)
		assert.Equal(t, "Peek", pending[1].Command)
		assert.Equal(t, "lines=10", pending[1].Arguments)
		assert.Nil(t, pending[0].DeliveredAt)

		// polling does not consume
		again, err := r.PollCommands(ctx, id, "")
		require.NoError(t, err)
		assert.Equal(t, pending, again)

		n, err := r.MarkCommandDelivered(ctx, id, "Kill")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		pending, err = r.PollCommands(ctx, id, CommandReceived)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "Peek", pending[0].Command)

		sent, err := r.PollCommands(ctx, id, CommandSent)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		assert.Equal(t, baseTime.Add(time.Second), *sent[0].DeliveredAt)

		n, err = r.MarkCommandDelivered(ctx, id, "Kill")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestEnqueueCommand_Validation(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		var invalid *wmserrors.ErrInvalidArgument
		assert.ErrorAs(t, r.EnqueueCommand(ctx, id, " ", ""), &invalid)
		assert.True(t, wmserrors.IsNotFound(r.EnqueueCommand(ctx, id+100, "Kill", "")))
	})
}

func TestHeartbeat_DeliversPendingCommands(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		id := submitSimple(t, ctx, r)
		require.NoError(t, r.EnqueueCommand(ctx, id, "Kill", ""))

		commands, err := r.Heartbeat(ctx, id, map[string]string{"LoadAverage": "1"}, time.Time{})
		require.NoError(t, err)
		require.Len(t, commands, 1)
		assert.Equal(t, "Kill", commands[0].Command)
		assert.Equal(t, CommandSent, commands[0].Status)

		commands, err = r.Heartbeat(ctx, id, nil, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, commands)

		pending, err := r.PollCommands(ctx, id, CommandReceived)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
