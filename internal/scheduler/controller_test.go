package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testParams(pop, gens int) Parameters {
	return Parameters{
		PopulationSize: pop,
		MaxGenerations: gens,
		MutationRate:   0.2,
		Seed:           42,
		Workers:        2,
	}
}

func TestControllerSingleGenerationTerminates(t *testing.T) {
	p := newFixtureProblem(t)
	ctrl, err := NewController(p, testParams(1, 1), zap.NewNop())
	require.NoError(t, err)

	var calls [][2]int
	res, err := ctrl.Run(context.Background(), func(gen, total int, _ float64) {
		calls = append(calls, [2]int{gen, total})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generations)
	assert.Equal(t, 1, res.Generation)
	assert.Equal(t, StateMaxGenerationsReached, res.State)
	assert.Len(t, res.BestHistory, 1)
	assert.Equal(t, [][2]int{{1, 1}}, calls)
	assert.Equal(t, StateMaxGenerationsReached, ctrl.State())
}

func TestControllerElitismIsMonotonic(t *testing.T) {
	p := newFixtureProblem(t)
	ctrl, err := NewController(p, testParams(12, 25), nil)
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.BestHistory, 25)
	for i := 1; i < len(res.BestHistory); i++ {
		assert.GreaterOrEqual(t, res.BestHistory[i], res.BestHistory[i-1])
	}
	assert.Equal(t, res.BestHistory[len(res.BestHistory)-1], res.Fitness)
	assert.Zero(t, res.Breakdown.Hard())
}

func TestControllerStopsWhenConverged(t *testing.T) {
	p := newFixtureProblem(t)
	params := testParams(4, 50)
	params.TargetFitnessMin = -1e9
	params.TargetFitnessMax = 1e9
	ctrl, err := NewController(p, params, nil)
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateConverged, res.State)
	assert.Equal(t, 1, res.Generations)
}

func TestControllerCancellation(t *testing.T) {
	p := newFixtureProblem(t)
	ctrl, err := NewController(p, testParams(4, 10), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ctrl.Run(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateFailed, ctrl.State())
}

func TestControllerRejectsBadParameters(t *testing.T) {
	p := newFixtureProblem(t)

	for _, params := range []Parameters{
		{PopulationSize: 0, MaxGenerations: 1},
		{PopulationSize: 1, MaxGenerations: 0},
		{PopulationSize: 1, MaxGenerations: 1, MutationRate: 1.5},
	} {
		_, err := NewController(p, params, nil)
		assert.Error(t, err)
	}
}

func TestControllerSameSeedSameResult(t *testing.T) {
	p := newFixtureProblem(t)
	run := func() *Result {
		ctrl, err := NewController(p, testParams(8, 10), nil)
		require.NoError(t, err)
		res, err := ctrl.Run(context.Background(), nil)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Best.Genes, b.Best.Genes)
	assert.Equal(t, a.BestHistory, b.BestHistory)
}

func TestControllerMaterializeCompletesRun(t *testing.T) {
	p := newFixtureProblem(t)
	ctrl, err := NewController(p, testParams(10, 20), nil)
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background(), nil)
	require.NoError(t, err)
	entries, err := ctrl.Materialize("sched-1", res)
	require.NoError(t, err)
	assert.Equal(t, StateDone, ctrl.State())
	assert.Len(t, entries, 10)

	type cell struct{ room, day, slot string }
	owner := make(map[cell]string)
	for _, e := range entries {
		assert.False(t, e.HasConflict, "entry %s: %v", e.DisplayCode, e.ConflictReason)
		key := cell{e.RoomID, e.Day, e.TimeSlotID}
		if prev, ok := owner[key]; ok {
			assert.Equal(t, prev, e.SessionGroupID, "room double booked at %v", key)
		}
		owner[key] = e.SessionGroupID
	}

	ctrl.Fail()
	assert.Equal(t, StateDone, ctrl.State(), "a finished run cannot fail")
	_, err = ctrl.Materialize("sched-1", res)
	assert.Error(t, err)
}

func TestControllerRejectsIllegalTransition(t *testing.T) {
	p := newFixtureProblem(t)
	ctrl, err := NewController(p, testParams(1, 1), nil)
	require.NoError(t, err)

	assert.Error(t, ctrl.transition(StateDone))
	assert.NoError(t, ctrl.transition(StateEvolving))
	assert.Error(t, ctrl.transition(StateInitializing))
}
