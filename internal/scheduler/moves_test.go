package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

func materializedFixture(t *testing.T) ([]models.ScheduleEntry, *Validator) {
	t.Helper()
	p := newFixtureProblem(t)
	entries, err := p.Materialize("sched-1", cleanChromosome())
	require.NoError(t, err)
	return entries, NewValidator(fixtureInput())
}

func TestProposeMoveOntoOccupiedRoomFlagsInsteadOfFailing(t *testing.T) {
	entries, v := materializedFixture(t)
	moved := entries[4].ID

	out, err := v.ProposeMove(entries, Move{EntryID: moved, Day: "Monday", TimeSlotID: "MW-4", RoomID: "r-hyb"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, moved, out[0].ID)
	assert.Equal(t, "monday", out[0].Day)
	assert.True(t, out[0].HasConflict)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "room H1 is already booked by CS101 BSCS-B1 on monday 13:00")
	assert.True(t, entries[0].HasConflict, "the occupant is flagged too")
	assert.True(t, entries[2].HasConflict)

	out, err = v.ProposeMove(entries, Move{EntryID: moved, Day: "tuesday", TimeSlotID: "TTH-1", RoomID: "r-lec"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, e := range out {
		assert.False(t, e.HasConflict)
		assert.Nil(t, e.ConflictReason)
	}

	out, err = v.ProposeMove(entries, Move{EntryID: moved, Day: "tuesday", TimeSlotID: "TTH-1", RoomID: "r-lec"})
	require.NoError(t, err)
	assert.Len(t, out, 1, "repeating a move changes nothing else")
	assert.False(t, out[0].HasConflict)
}

func TestProposeMoveChecksRoomTypeAndDay(t *testing.T) {
	entries, v := materializedFixture(t)

	out, err := v.ProposeMove(entries, Move{EntryID: entries[6].ID, Day: "tuesday", TimeSlotID: "TTH-4", RoomID: "r-lec"})
	require.NoError(t, err)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "room L1 cannot host lab sessions")

	out, err = v.ProposeMove(entries, Move{EntryID: entries[4].ID, Day: "friday", TimeSlotID: "TTH-1", RoomID: "r-lec"})
	require.NoError(t, err)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "time slot 08:00 does not run on friday")
}

func TestProposeMoveFacultyOverlap(t *testing.T) {
	entries, v := materializedFixture(t)

	// Ben teaches the merged class on monday 13:00; give him the CS102 lecture at the same time.
	ben := "f-ben"
	entries[4].UserID = &ben
	out, err := v.ProposeMove(entries, Move{EntryID: entries[4].ID, Day: "monday", TimeSlotID: "MW-4", RoomID: "r-lec"})
	require.NoError(t, err)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "faculty Ben is already teaching")
}

func TestProposeMoveErrors(t *testing.T) {
	entries, v := materializedFixture(t)

	_, err := v.ProposeMove(entries, Move{EntryID: "ghost", Day: "monday", TimeSlotID: "MW-1", RoomID: "r-lec"})
	assert.True(t, errors.Is(err, ErrEntryNotFound))

	for _, m := range []Move{
		{EntryID: entries[0].ID, Day: "funday", TimeSlotID: "MW-1", RoomID: "r-lec"},
		{EntryID: entries[0].ID, Day: "monday", TimeSlotID: "XX-1", RoomID: "r-lec"},
		{EntryID: entries[0].ID, Day: "monday", TimeSlotID: "MW-1", RoomID: "r-ghost"},
	} {
		_, err := v.ProposeMove(entries, m)
		assert.True(t, errors.Is(err, ErrInvalidMove), "move %+v", m)
	}
	assert.Equal(t, "monday", entries[0].Day, "rejected moves leave the entry alone")
	assert.Equal(t, "MW-4", entries[0].TimeSlotID)
}

func TestFlagAllReportsChangedIndices(t *testing.T) {
	entries, v := materializedFixture(t)
	entries[5].RoomID = "r-hyb"
	entries[5].Day = "wednesday"
	entries[5].TimeSlotID = "MW-4"

	changed := v.FlagAll(entries)
	assert.ElementsMatch(t, []int{1, 3, 5}, changed)
	assert.Empty(t, v.FlagAll(entries))
}

func TestProposeMoveFlagsSplitLabSession(t *testing.T) {
	entries, v := materializedFixture(t)
	// Lab entries: tuesday TTH-4 and TTH-5, thursday TTH-4 and TTH-5, all in LAB1.
	first, second := entries[6], entries[7]
	require.True(t, first.IsLabSession)
	require.Equal(t, 2, second.SlotsSpan)
	require.Equal(t, "TTH-5", second.TimeSlotID)

	out, err := v.ProposeMove(entries, Move{EntryID: second.ID, Day: "tuesday", TimeSlotID: "TTH-2", RoomID: "r-hyb"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "lab session of CS102 BSCS-B1 LAB is split across rooms H1 and LAB1 on tuesday")
	assert.Equal(t, first.ID, out[1].ID)
	assert.True(t, entries[6].HasConflict)
	assert.False(t, entries[8].HasConflict, "thursday half is untouched")
	assert.False(t, entries[9].HasConflict)

	out, err = v.ProposeMove(entries, Move{EntryID: second.ID, Day: "tuesday", TimeSlotID: "TTH-2", RoomID: "r-lab"})
	require.NoError(t, err)
	require.NotNil(t, out[0].ConflictReason)
	assert.Contains(t, *out[0].ConflictReason, "lab session of CS102 BSCS-B1 LAB is not in consecutive slots on tuesday")
	assert.True(t, entries[6].HasConflict)

	out, err = v.ProposeMove(entries, Move{EntryID: second.ID, Day: "tuesday", TimeSlotID: "TTH-5", RoomID: "r-lab"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, e := range out {
		assert.False(t, e.HasConflict, "entry %s", e.ID)
	}
}

func TestFlagAllDetectsSessionMovedToAnotherDay(t *testing.T) {
	entries, v := materializedFixture(t)
	entries[7].Day = "thursday"
	entries[7].TimeSlotID = "TTH-1"

	v.FlagAll(entries)
	require.NotNil(t, entries[6].ConflictReason)
	assert.Contains(t, *entries[6].ConflictReason, "needs 2 consecutive slots on tuesday but holds 1")
	assert.True(t, entries[7].HasConflict)
}
