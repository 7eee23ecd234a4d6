package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

var (
	// ErrEntryNotFound is returned when a move names an entry that is not part of the schedule.
	ErrEntryNotFound = errors.New("schedule entry not found")
	// ErrInvalidMove is returned for moves that reference unknown days, slots or rooms.
	ErrInvalidMove = errors.New("invalid move")
)

// Move relocates a single schedule entry.
type Move struct {
	EntryID    string
	Day        string
	TimeSlotID string
	RoomID     string
}

// Validator re-checks hard constraints on materialized entries. It uses the same rules as the
// evaluator but works on ids, so it can run after the chromosome is gone.
type Validator struct {
	blocks  map[string]models.SubjectBlock
	rooms   map[string]models.Room
	faculty map[string]models.Faculty
	slots   map[string]models.TimeSlot
}

// NewValidator indexes input for lookups.
func NewValidator(input Input) *Validator {
	v := &Validator{
		blocks:  make(map[string]models.SubjectBlock, len(input.Blocks)),
		rooms:   make(map[string]models.Room, len(input.Rooms)),
		faculty: make(map[string]models.Faculty, len(input.Faculty)),
		slots:   make(map[string]models.TimeSlot, len(input.TimeSlots)),
	}
	for _, b := range input.Blocks {
		v.blocks[b.ID] = b
	}
	for _, r := range input.Rooms {
		v.rooms[r.ID] = r
	}
	for _, f := range input.Faculty {
		v.faculty[f.UserID] = f
	}
	for _, s := range input.TimeSlots {
		v.slots[s.ID] = s
	}
	return v
}

type daySlot struct {
	day  string
	slot string
}

type board struct {
	entries  []models.ScheduleEntry
	at       map[daySlot][]int
	sessions map[string][]int
}

func newBoard(entries []models.ScheduleEntry) *board {
	b := &board{
		entries:  entries,
		at:       make(map[daySlot][]int, len(entries)),
		sessions: make(map[string][]int),
	}
	for i, e := range entries {
		key := daySlot{strings.ToLower(e.Day), e.TimeSlotID}
		b.at[key] = append(b.at[key], i)
		if e.SessionGroupID != "" {
			b.sessions[e.SessionGroupID] = append(b.sessions[e.SessionGroupID], i)
		}
	}
	return b
}

// FlagAll recomputes the conflict flag of every entry and returns the indices whose flag changed.
func (v *Validator) FlagAll(entries []models.ScheduleEntry) []int {
	b := newBoard(entries)
	var changed []int
	for i := range entries {
		if v.reflag(b, i) {
			changed = append(changed, i)
		}
	}
	return changed
}

// ProposeMove commits m onto entries in place and revalidates the moved entry, the rest of its
// session and every entry sharing its old or new day and slot. It never rejects a move for breaking a constraint; the
// breach is recorded on the entry instead. The returned entries are the moved one followed by
// neighbours whose conflict state changed.
func (v *Validator) ProposeMove(entries []models.ScheduleEntry, m Move) ([]models.ScheduleEntry, error) {
	idx := -1
	for i := range entries {
		if entries[i].ID == m.EntryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrEntryNotFound
	}
	day := strings.ToLower(strings.TrimSpace(m.Day))
	if _, ok := models.DayGroupOf(day); !ok {
		return nil, fmt.Errorf("%w: unknown day %q", ErrInvalidMove, m.Day)
	}
	if _, ok := v.slots[m.TimeSlotID]; !ok {
		return nil, fmt.Errorf("%w: unknown time slot %q", ErrInvalidMove, m.TimeSlotID)
	}
	if _, ok := v.rooms[m.RoomID]; !ok {
		return nil, fmt.Errorf("%w: unknown room %q", ErrInvalidMove, m.RoomID)
	}

	old := daySlot{strings.ToLower(entries[idx].Day), entries[idx].TimeSlotID}
	entries[idx].Day = day
	entries[idx].TimeSlotID = m.TimeSlotID
	entries[idx].RoomID = m.RoomID
	entries[idx].CustomStartTime = nil
	entries[idx].CustomEndTime = nil

	b := newBoard(entries)
	v.reflag(b, idx)
	out := []models.ScheduleEntry{entries[idx]}
	seen := map[int]bool{idx: true}
	affected := append([]int(nil), b.sessions[entries[idx].SessionGroupID]...)
	for _, key := range []daySlot{old, {day, m.TimeSlotID}} {
		affected = append(affected, b.at[key]...)
	}
	for _, j := range affected {
		if seen[j] {
			continue
		}
		seen[j] = true
		if v.reflag(b, j) {
			out = append(out, entries[j])
		}
	}
	return out, nil
}

func (v *Validator) reflag(b *board, i int) bool {
	e := &b.entries[i]
	beforeFlag := e.HasConflict
	var before string
	if e.ConflictReason != nil {
		before = *e.ConflictReason
	}
	reasons := v.check(b, i)
	e.SetConflict(strings.Join(reasons, "; "))
	var after string
	if e.ConflictReason != nil {
		after = *e.ConflictReason
	}
	return beforeFlag != e.HasConflict || before != after
}

func (v *Validator) check(b *board, i int) []string {
	e := b.entries[i]
	day := strings.ToLower(e.Day)
	var reasons []string

	slot, ok := v.slots[e.TimeSlotID]
	slotLabel := e.TimeSlotID
	if ok {
		if slot.Name != "" {
			slotLabel = slot.Name
		}
		if group, _ := models.DayGroupOf(day); group != slot.DayGroup {
			reasons = append(reasons, fmt.Sprintf("time slot %s does not run on %s", slotLabel, day))
		}
	}

	room, ok := v.rooms[e.RoomID]
	if !ok {
		reasons = append(reasons, fmt.Sprintf("unknown room %s", e.RoomID))
	} else {
		kind := ComponentLecture
		if e.IsLabSession {
			kind = ComponentLab
		}
		if !room.RoomType.Hosts(e.IsLabSession) {
			reasons = append(reasons, fmt.Sprintf("room %s cannot host %s sessions", roomLabel(room), kind))
		}
		if students := v.students(b, i); room.Capacity < students {
			reasons = append(reasons, fmt.Sprintf("room %s seats %d but %d students are expected", roomLabel(room), room.Capacity, students))
		}
	}

	if reason := v.checkSpan(b, i); reason != "" {
		reasons = append(reasons, reason)
	}

	for _, j := range b.at[daySlot{day, e.TimeSlotID}] {
		if j == i {
			continue
		}
		other := b.entries[j]
		if other.SessionGroupID != "" && other.SessionGroupID == e.SessionGroupID {
			continue
		}
		if other.RoomID == e.RoomID {
			reasons = append(reasons, fmt.Sprintf("room %s is already booked by %s on %s %s", v.roomName(e.RoomID), other.DisplayCode, day, slotLabel))
		}
		if e.UserID != nil && other.UserID != nil && *e.UserID == *other.UserID {
			reasons = append(reasons, fmt.Sprintf("faculty %s is already teaching %s on %s %s", v.facultyName(*e.UserID), other.DisplayCode, day, slotLabel))
		}
		if other.AcademicSetupSubjectID == e.AcademicSetupSubjectID && other.IsLabSession != e.IsLabSession {
			reasons = append(reasons, fmt.Sprintf("lecture and lab of %s overlap on %s %s", e.DisplayCode, day, slotLabel))
		}
	}
	return reasons
}

// checkSpan verifies that a multi-slot session still fills SlotsSpan consecutive slots of one
// room on the entry's day.
func (v *Validator) checkSpan(b *board, i int) string {
	e := b.entries[i]
	if e.SlotsSpan <= 1 || e.SessionGroupID == "" {
		return ""
	}
	day := strings.ToLower(e.Day)
	var parts []models.ScheduleEntry
	for _, j := range b.sessions[e.SessionGroupID] {
		other := b.entries[j]
		if other.AcademicSetupSubjectID == e.AcademicSetupSubjectID && strings.ToLower(other.Day) == day {
			parts = append(parts, other)
		}
	}
	kind := ComponentLecture
	if e.IsLabSession {
		kind = ComponentLab
	}
	label := fmt.Sprintf("%s session of %s", kind, e.DisplayCode)
	for _, other := range parts {
		if other.RoomID != e.RoomID {
			return fmt.Sprintf("%s is split across rooms %s and %s on %s", label, v.roomName(e.RoomID), v.roomName(other.RoomID), day)
		}
	}
	if len(parts) != e.SlotsSpan {
		return fmt.Sprintf("%s needs %d consecutive slots on %s but holds %d", label, e.SlotsSpan, day, len(parts))
	}
	sort.Slice(parts, func(a, c int) bool {
		return parseClock(v.slots[parts[a].TimeSlotID].StartTime) < parseClock(v.slots[parts[c].TimeSlotID].StartTime)
	})
	for k := 1; k < len(parts); k++ {
		prev, ok1 := v.slots[parts[k-1].TimeSlotID]
		next, ok2 := v.slots[parts[k].TimeSlotID]
		if !ok1 || !ok2 || parseClock(prev.EndTime) != parseClock(next.StartTime) {
			return fmt.Sprintf("%s is not in consecutive slots on %s", label, day)
		}
	}
	return ""
}

// students sums the expected students of every block sharing the entry's session.
func (v *Validator) students(b *board, i int) int {
	e := b.entries[i]
	blocks := map[string]bool{e.AcademicSetupSubjectID: true}
	if e.SessionGroupID != "" {
		for _, j := range b.at[daySlot{strings.ToLower(e.Day), e.TimeSlotID}] {
			if b.entries[j].SessionGroupID == e.SessionGroupID {
				blocks[b.entries[j].AcademicSetupSubjectID] = true
			}
		}
	}
	var total int
	for id := range blocks {
		total += v.blocks[id].ExpectedStudents
	}
	return total
}

func (v *Validator) roomName(id string) string {
	if room, ok := v.rooms[id]; ok {
		return roomLabel(room)
	}
	return id
}

func roomLabel(room models.Room) string {
	if room.Name != "" {
		return room.Name
	}
	return room.ID
}

func (v *Validator) facultyName(id string) string {
	if f, ok := v.faculty[id]; ok && f.Name != "" {
		return f.Name
	}
	return id
}
