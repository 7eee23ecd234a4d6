package scheduler

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

const noon = 12 * 60

type slotInfo struct {
	models.TimeSlot
	start int
	end   int
}

type groupSlots struct {
	group models.DayGroup
	slots []slotInfo
	// linked[i] is true when slot i+1 starts exactly where slot i ends.
	linked  []bool
	minutes int
}

type unit struct {
	blocks []int
}

type componentSpec struct {
	unit      int
	kind      Component
	rooms     []int
	preferred int
	students  int
	units     float64
	spans     []int
	starts    [][]int
}

type geneKey struct {
	block string
	kind  Component
}

type slotRef struct {
	group int
	slot  int
}

// Problem is the compiled, index-based view of one academic setup. It is immutable once built
// and safe for concurrent readers.
type Problem struct {
	blocks  []models.SubjectBlock
	faculty []models.Faculty
	rooms   []models.Room
	groups  []groupSlots
	units   []unit
	specs   []componentSpec

	geneOf     map[geneKey]int
	unitOf     []int
	roomIdx    map[string]int
	facultyIdx map[string]int
	slotRef    map[string]slotRef
	groupIdx   map[models.DayGroup]int

	offGroup   []int
	offPeriod  []models.TimePeriod
	prefPeriod []models.TimePeriod

	validator *Validator
}

// NewProblem compiles input into a Problem restricted to the included day groups and runs the
// structural feasibility checks.
func NewProblem(input Input, included []models.DayGroup) (*Problem, error) {
	if len(included) == 0 {
		included = models.AllDayGroups
	}
	p := &Problem{
		blocks:     input.Blocks,
		faculty:    input.Faculty,
		rooms:      input.Rooms,
		geneOf:     make(map[geneKey]int),
		roomIdx:    make(map[string]int, len(input.Rooms)),
		facultyIdx: make(map[string]int, len(input.Faculty)),
		slotRef:    make(map[string]slotRef, len(input.TimeSlots)),
		groupIdx:   make(map[models.DayGroup]int),
		validator:  NewValidator(input),
	}
	for i, room := range p.rooms {
		p.roomIdx[room.ID] = i
	}
	for i, f := range p.faculty {
		p.facultyIdx[f.UserID] = i
	}
	seen := make(map[string]bool, len(p.blocks))
	for _, block := range p.blocks {
		if seen[block.ID] {
			return nil, &EncodingError{BlockID: block.ID, Reason: "duplicate subject block id"}
		}
		seen[block.ID] = true
	}

	p.buildGroups(input.TimeSlots, included)
	p.buildUnits()
	p.buildSpecs()
	p.buildFacultyRules()

	if err := p.checkFeasibility(); err != nil {
		return nil, err
	}
	return p, nil
}

// NumGenes is the fixed chromosome length.
func (p *Problem) NumGenes() int {
	return len(p.specs)
}

func (p *Problem) buildGroups(slots []models.TimeSlot, included []models.DayGroup) {
	wanted := make(map[models.DayGroup]bool, len(included))
	for _, g := range included {
		wanted[g] = true
	}
	byGroup := make(map[models.DayGroup][]slotInfo)
	for _, slot := range slots {
		if !wanted[slot.DayGroup] {
			continue
		}
		start := parseClock(slot.StartTime)
		end := parseClock(slot.EndTime)
		if end <= start {
			end = start + 60
		}
		byGroup[slot.DayGroup] = append(byGroup[slot.DayGroup], slotInfo{TimeSlot: slot, start: start, end: end})
	}
	for _, g := range models.AllDayGroups {
		list := byGroup[g]
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].start == list[j].start {
				return list[i].Priority < list[j].Priority
			}
			return list[i].start < list[j].start
		})
		linked := make([]bool, len(list))
		for i := 0; i+1 < len(list); i++ {
			linked[i] = list[i].end == list[i+1].start
		}
		idx := len(p.groups)
		p.groupIdx[g] = idx
		for s, info := range list {
			p.slotRef[info.ID] = slotRef{group: idx, slot: s}
		}
		p.groups = append(p.groups, groupSlots{
			group:   g,
			slots:   list,
			linked:  linked,
			minutes: list[0].end - list[0].start,
		})
	}
}

// buildUnits merges parallel-linked blocks that share a block number into one schedulable unit.
func (p *Problem) buildUnits() {
	parent := make([]int, len(p.blocks))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range p.blocks {
		for j := i + 1; j < len(p.blocks); j++ {
			if !parallelLinked(p.blocks[i], p.blocks[j]) {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if ri < rj {
				parent[rj] = ri
			} else {
				parent[ri] = rj
			}
		}
	}
	p.unitOf = make([]int, len(p.blocks))
	rootUnit := make(map[int]int)
	for i := range p.blocks {
		root := find(i)
		u, ok := rootUnit[root]
		if !ok {
			u = len(p.units)
			rootUnit[root] = u
			p.units = append(p.units, unit{})
		}
		p.units[u].blocks = append(p.units[u].blocks, i)
		p.unitOf[i] = u
	}
}

func parallelLinked(a, b models.SubjectBlock) bool {
	if a.SubjectID == b.SubjectID || a.BlockNumber != b.BlockNumber {
		return false
	}
	return containsString(a.ParallelSubjectIDs, b.SubjectID) || containsString(b.ParallelSubjectIDs, a.SubjectID)
}

func (p *Problem) buildSpecs() {
	for u, un := range p.units {
		needsLab := false
		for _, b := range un.blocks {
			if p.blocks[b].NeedsLab {
				needsLab = true
			}
		}
		p.addSpec(u, ComponentLecture, needsLab)
		if needsLab {
			p.addSpec(u, ComponentLab, needsLab)
		}
	}
}

func (p *Problem) addSpec(u int, kind Component, withLab bool) {
	un := p.units[u]
	spec := componentSpec{unit: u, kind: kind, preferred: -1}
	var hours float64
	for _, b := range un.blocks {
		block := p.blocks[b]
		spec.students += block.ExpectedStudents
		h := block.LectureHours
		if kind == ComponentLab {
			h = block.LabHours
		}
		hours = math.Max(hours, h)
		spec.units = math.Max(spec.units, componentUnits(block, kind, withLab))
		if spec.preferred < 0 {
			pref := block.PreferredLectureRoomID
			if kind == ComponentLab {
				pref = block.PreferredLabRoomID
			}
			if pref != nil {
				if idx, ok := p.roomIdx[*pref]; ok {
					spec.preferred = idx
				}
			}
		}
	}
	lab := kind == ComponentLab
	for r, room := range p.rooms {
		if room.RoomType.Hosts(lab) && room.Capacity >= spec.students {
			spec.rooms = append(spec.rooms, r)
		}
	}
	if spec.preferred >= 0 && !containsInt(spec.rooms, spec.preferred) {
		spec.preferred = -1
	}
	spec.spans = make([]int, len(p.groups))
	spec.starts = make([][]int, len(p.groups))
	for g, grp := range p.groups {
		span := spanFor(hours, grp.minutes)
		spec.spans[g] = span
		for s := 0; s+span <= len(grp.slots); s++ {
			if grp.contiguous(s, span) {
				spec.starts[g] = append(spec.starts[g], s)
			}
		}
	}
	idx := len(p.specs)
	p.specs = append(p.specs, spec)
	for _, b := range un.blocks {
		p.geneOf[geneKey{block: p.blocks[b].ID, kind: kind}] = idx
	}
}

func (g groupSlots) contiguous(start, span int) bool {
	if start < 0 || start+span > len(g.slots) {
		return false
	}
	for i := start; i < start+span-1; i++ {
		if !g.linked[i] {
			return false
		}
	}
	return true
}

func componentUnits(block models.SubjectBlock, kind Component, withLab bool) float64 {
	if !withLab || !block.NeedsLab {
		if kind == ComponentLab {
			return 0
		}
		return block.Units
	}
	total := block.LectureHours + block.LabHours
	if total <= 0 {
		if kind == ComponentLecture {
			return block.Units
		}
		return 0
	}
	if kind == ComponentLab {
		return block.Units * block.LabHours / total
	}
	return block.Units * block.LectureHours / total
}

func spanFor(hours float64, slotMinutes int) int {
	if hours <= 0 || slotMinutes <= 0 {
		return 1
	}
	span := int(math.Ceil(hours*60/float64(slotMinutes) - 1e-9))
	if span < 1 {
		return 1
	}
	return span
}

func (p *Problem) buildFacultyRules() {
	p.offGroup = make([]int, len(p.faculty))
	p.offPeriod = make([]models.TimePeriod, len(p.faculty))
	p.prefPeriod = make([]models.TimePeriod, len(p.faculty))
	for i, f := range p.faculty {
		p.offGroup[i] = -1
		if f.PreferredDayOff != nil {
			if g, ok := models.DayGroupOf(*f.PreferredDayOff); ok {
				if idx, ok := p.groupIdx[g]; ok {
					p.offGroup[i] = idx
				}
			}
		}
		p.offPeriod[i] = f.PreferredDayOffTime
		if p.offPeriod[i] == "" {
			p.offPeriod[i] = models.TimePeriodWholeDay
		}
		if f.PreferredPeriod != nil {
			p.prefPeriod[i] = *f.PreferredPeriod
		}
	}
}

func (p *Problem) checkFeasibility() error {
	if len(p.groups) == 0 {
		return infeasible("no time slots are defined for the included day groups")
	}
	if len(p.specs) == 0 {
		return infeasible("no subject blocks to schedule")
	}
	for i, spec := range p.specs {
		label := p.specLabel(i)
		if len(spec.rooms) == 0 {
			kind := "lecture or hybrid"
			if spec.kind == ComponentLab {
				kind = "laboratory or hybrid"
			}
			return infeasible("no %s room can seat %d students for %s", kind, spec.students, label)
		}
		fits := false
		for g := range p.groups {
			if len(spec.starts[g]) > 0 {
				fits = true
				break
			}
		}
		if !fits {
			return infeasible("%s needs %d consecutive slots but no included day group offers them", label, minInt(spec.spans))
		}
	}

	var labDemand, totalDemand, labRooms int
	for _, spec := range p.specs {
		span := minInt(spec.spans)
		totalDemand += span
		if spec.kind == ComponentLab {
			labDemand += span
		}
	}
	for _, room := range p.rooms {
		if room.RoomType.Hosts(true) {
			labRooms++
		}
	}
	var slotCount int
	for _, g := range p.groups {
		slotCount += len(g.slots)
	}
	if labDemand > labRooms*slotCount {
		return infeasible("lab sessions need %d room-slots but only %d laboratory room-slots exist", labDemand, labRooms*slotCount)
	}
	if totalDemand > len(p.rooms)*slotCount {
		return infeasible("sessions need %d room-slots but only %d room-slots exist", totalDemand, len(p.rooms)*slotCount)
	}
	return nil
}

func (p *Problem) specLabel(i int) string {
	spec := p.specs[i]
	block := p.blocks[p.units[spec.unit].blocks[0]]
	code := block.SubjectCode
	if code == "" {
		code = block.SubjectID
	}
	return fmt.Sprintf("%s block %d (%s)", code, block.BlockNumber, spec.kind)
}

func parseClock(raw string) int {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return 0
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func minInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
