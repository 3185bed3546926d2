package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

func TestParse(t *testing.T) {
	for _, s := range All {
		parsed, err := Parse(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	parsed, err := Parse(" running ")
	require.NoError(t, err)
	assert.Equal(t, Running, parsed)

	_, err = Parse("Rescheduled")
	assert.Error(t, err)
}

func TestIsFinal(t *testing.T) {
	final := map[Status]bool{Done: true, Completed: true, Failed: true, Killed: true}
	for _, s := range All {
		assert.Equal(t, final[s], s.IsFinal(), s)
	}
	assert.ElementsMatch(t, []string{"Done", "Completed", "Failed", "Killed"}, FinalStatesAsStrings())
}

func TestStateMachine_EveryPair(t *testing.T) {
	sm := NewStateMachine()
	for _, from := range All {
		allowed := map[Status]bool{}
		for _, to := range sm.Allowed(from) {
			allowed[to] = true
		}
		for _, to := range All {
			actual := sm.NextState(from, to)
			switch {
			case from == to:
				assert.Equal(t, to, actual, "%s -> %s", from, to)
			case allowed[to]:
				assert.Equal(t, to, actual, "%s -> %s", from, to)
			default:
				assert.Equal(t, from, actual, "%s -> %s", from, to)
			}
		}
	}
}

func TestStateMachine_Examples(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, Checking, sm.NextState(Received, Checking))
	assert.Equal(t, Running, sm.NextState(Matched, Running))
	assert.Equal(t, Stalled, sm.NextState(Running, Stalled))
	assert.Equal(t, Running, sm.NextState(Stalled, Running))

	// Refused: the guard keeps the current state.
	assert.Equal(t, Done, sm.NextState(Done, Running))
	assert.Equal(t, Received, sm.NextState(Received, Running))
	assert.Equal(t, Deleted, sm.NextState(Deleted, Received))
	assert.Empty(t, sm.Allowed(Deleted))
}

func TestGuardFunc(t *testing.T) {
	alwaysWaiting := GuardFunc(func(current, candidate Status) Status { return Waiting })
	assert.Equal(t, Waiting, alwaysWaiting.NextState(Received, Checking))
}

func TestOptimizerChain(t *testing.T) {
	chain := ParseOptimizerChain(" JobPath, JobSanity,,InputData ,JobScheduling")
	assert.Equal(t, OptimizerChain{"JobPath", "JobSanity", "InputData", "JobScheduling"}, chain)
	assert.Equal(t, "JobPath,JobSanity,InputData,JobScheduling", chain.String())

	first, ok := chain.First()
	assert.True(t, ok)
	assert.Equal(t, "JobPath", first)

	next, err := chain.Next("JobSanity")
	require.NoError(t, err)
	assert.Equal(t, "InputData", next)

	_, err = chain.Next("JobScheduling")
	assert.True(t, wmserrors.IsPolicy(err))

	_, err = chain.Next("Unknown")
	assert.True(t, wmserrors.IsPolicy(err))

	_, ok = OptimizerChain{}.First()
	assert.False(t, ok)
	assert.Nil(t, ParseOptimizerChain(""))
}
