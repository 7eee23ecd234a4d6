package scheduler

import "github.com/noah-isme/course-timetable-api/internal/models"

// Breakdown itemises one evaluation.
type Breakdown struct {
	RoomClashes    int     `json:"room_clashes"`
	FacultyClashes int     `json:"faculty_clashes"`
	RoomType       int     `json:"room_type"`
	Capacity       int     `json:"capacity"`
	OverUnits      int     `json:"over_units"`
	SpanViolations int     `json:"span_violations"`
	SelfCollisions int     `json:"self_collisions"`
	Invalid        int     `json:"invalid"`
	SoftEarned     float64 `json:"soft_earned"`
	SoftPossible   float64 `json:"soft_possible"`
	Fitness        float64 `json:"fitness"`
}

// Hard is the number of hard-constraint violations.
func (b Breakdown) Hard() int {
	return b.RoomClashes + b.FacultyClashes + b.RoomType + b.Capacity + b.OverUnits + b.SpanViolations + b.SelfCollisions + b.Invalid
}

// Evaluator scores chromosomes against a Problem. It holds no mutable state and may be shared
// between goroutines.
type Evaluator struct {
	problem *Problem
	weights Weights
}

// NewEvaluator builds an evaluator.
func NewEvaluator(problem *Problem, weights Weights) *Evaluator {
	return &Evaluator{problem: problem, weights: weights}
}

// Evaluate returns the fitness of c.
func (e *Evaluator) Evaluate(c *Chromosome) float64 {
	return e.Breakdown(c).Fitness
}

type roomCell struct {
	group, slot, room int
}

type facultyCell struct {
	group, slot, faculty int
}

// Breakdown evaluates c and reports every counter.
func (e *Evaluator) Breakdown(c *Chromosome) Breakdown {
	p := e.problem
	w := e.weights
	var b Breakdown

	rooms := make(map[roomCell]int)
	faculty := make(map[facultyCell]int)
	load := make([]float64, len(p.faculty))
	busy := make(map[facultyCell]bool)

	var cells []roomCell
	for i, gene := range c.Genes {
		if i >= len(p.specs) || !p.geneValid(gene) {
			b.Invalid++
			continue
		}
		spec := p.specs[i]
		room := p.rooms[gene.Room]
		from, to, ok := p.occupied(i, gene)
		if !ok {
			b.SpanViolations++
		}
		if !room.RoomType.Hosts(spec.kind == ComponentLab) {
			b.RoomType++
		}
		if room.Capacity < spec.students {
			b.Capacity++
		}
		cells = p.cells(cells[:0], c, i, gene)
		for k, cell := range cells {
			rooms[cell]++
			if gene.Faculty >= 0 && !sameTime(cells[:k], cell) {
				fc := facultyCell{cell.group, cell.slot, gene.Faculty}
				faculty[fc]++
				busy[fc] = true
			}
		}

		if spec.preferred >= 0 {
			b.SoftPossible += w.PreferredRoom
			if gene.Room == spec.preferred {
				b.SoftEarned += w.PreferredRoom
			}
		}
		b.SoftPossible += w.Staffing
		if gene.Faculty < 0 {
			continue
		}
		b.SoftEarned += w.Staffing
		load[gene.Faculty] += spec.units

		grp := p.groups[gene.Group]
		if off := p.offGroup[gene.Faculty]; off >= 0 {
			b.SoftPossible += w.DayOff
			if off != gene.Group || !grp.touches(from, to, p.offPeriod[gene.Faculty]) {
				b.SoftEarned += w.DayOff
			}
		}
		if pref := p.prefPeriod[gene.Faculty]; pref == models.TimePeriodMorning || pref == models.TimePeriodAfternoon {
			b.SoftPossible += w.TimePeriod
			if grp.within(from, to, pref) {
				b.SoftEarned += w.TimePeriod
			}
		}
	}

	for _, n := range rooms {
		if n > 1 {
			b.RoomClashes += n - 1
		}
	}
	for _, n := range faculty {
		if n > 1 {
			b.FacultyClashes += n - 1
		}
	}
	b.SelfCollisions = p.selfCollisions(c)

	for f, units := range load {
		limit := p.faculty[f].MaxUnits
		if units <= 0 || limit <= 0 {
			continue
		}
		if w.UnitsHard {
			if units > limit+1e-9 {
				b.OverUnits++
			}
			continue
		}
		b.SoftPossible += w.Load
		if units <= limit+1e-9 {
			b.SoftEarned += w.Load
		} else {
			b.SoftEarned += w.Load * limit / units
		}
	}

	e.scoreIdle(&b, busy)

	ratio := 1.0
	if b.SoftPossible > 0 {
		ratio = b.SoftEarned / b.SoftPossible
	}
	b.Fitness = w.MaxScore*ratio - w.HardPenalty*float64(b.Hard())
	return b
}

func (e *Evaluator) scoreIdle(b *Breakdown, busy map[facultyCell]bool) {
	p := e.problem
	type day struct{ group, faculty int }
	first := make(map[day]int)
	last := make(map[day]int)
	count := make(map[day]int)
	for cell := range busy {
		key := day{cell.group, cell.faculty}
		if _, seen := count[key]; !seen {
			first[key], last[key] = cell.slot, cell.slot
		}
		if cell.slot < first[key] {
			first[key] = cell.slot
		}
		if cell.slot > last[key] {
			last[key] = cell.slot
		}
		count[key]++
	}
	// Iterate groups and faculty in order so float sums are reproducible.
	for g := range p.groups {
		slots := float64(len(p.groups[g].slots))
		for f := range p.faculty {
			key := day{g, f}
			n, ok := count[key]
			if !ok {
				continue
			}
			idle := float64(last[key] - first[key] + 1 - n)
			b.SoftPossible += e.weights.IdleGap
			b.SoftEarned += e.weights.IdleGap * (1 - idle/slots)
		}
	}
}

// contribution is the soft score a single gene earns on its own. Repair uses it to pick which
// of two clashing genes moves.
func (e *Evaluator) contribution(i int, gene Gene) float64 {
	p := e.problem
	w := e.weights
	if !p.geneValid(gene) {
		return 0
	}
	spec := p.specs[i]
	var score float64
	if spec.preferred >= 0 && gene.Room == spec.preferred {
		score += w.PreferredRoom
	}
	if gene.Faculty < 0 {
		return score
	}
	score += w.Staffing
	from, to, _ := p.occupied(i, gene)
	grp := p.groups[gene.Group]
	if off := p.offGroup[gene.Faculty]; off < 0 || off != gene.Group || !grp.touches(from, to, p.offPeriod[gene.Faculty]) {
		score += w.DayOff
	}
	if pref := p.prefPeriod[gene.Faculty]; pref == "" || pref == models.TimePeriodWholeDay || grp.within(from, to, pref) {
		score += w.TimePeriod
	}
	return score
}

func (p *Problem) geneValid(g Gene) bool {
	if g.Group < 0 || g.Group >= len(p.groups) {
		return false
	}
	if g.Slot < 0 || g.Slot >= len(p.groups[g.Group].slots) {
		return false
	}
	if g.Room < 0 || g.Room >= len(p.rooms) {
		return false
	}
	return g.Faculty < len(p.faculty)
}

// occupied returns the slot range [from, to) gene i covers inside its group and whether the range
// is complete and contiguous.
func (p *Problem) occupied(i int, g Gene) (int, int, bool) {
	grp := p.groups[g.Group]
	span := p.specs[i].spans[g.Group]
	ok := grp.contiguous(g.Slot, span)
	to := g.Slot + span
	if to > len(grp.slots) {
		to = len(grp.slots)
	}
	return g.Slot, to, ok
}

// cells appends the room cells gene i of c occupies to dst. Genes rebuilt from moved entries
// report where those entries really are.
func (p *Problem) cells(dst []roomCell, c *Chromosome, i int, gene Gene) []roomCell {
	if pl, ok := c.placed[i]; ok && pl.anchor.Group == gene.Group && pl.anchor.Slot == gene.Slot && pl.anchor.Room == gene.Room {
		return append(dst, pl.cells...)
	}
	from, to, _ := p.occupied(i, gene)
	for s := from; s < to; s++ {
		dst = append(dst, roomCell{gene.Group, s, gene.Room})
	}
	return dst
}

func sameTime(cells []roomCell, cell roomCell) bool {
	for _, c := range cells {
		if c.group == cell.group && c.slot == cell.slot {
			return true
		}
	}
	return false
}

// selfCollisions counts units whose lecture and lab overlap in time.
func (p *Problem) selfCollisions(c *Chromosome) int {
	var n int
	for u := range p.units {
		lecture, lab := p.unitGenes(u)
		if lab < 0 || lecture >= len(c.Genes) || lab >= len(c.Genes) {
			continue
		}
		if p.overlaps(lecture, c.Genes[lecture], lab, c.Genes[lab]) {
			n++
		}
	}
	return n
}

// unitGenes returns the lecture and lab gene indices of unit u; lab is -1 when absent.
func (p *Problem) unitGenes(u int) (int, int) {
	block := p.blocks[p.units[u].blocks[0]].ID
	lecture := p.geneOf[geneKey{block: block, kind: ComponentLecture}]
	lab, ok := p.geneOf[geneKey{block: block, kind: ComponentLab}]
	if !ok {
		lab = -1
	}
	return lecture, lab
}

// sibling returns the other gene of the same unit, or -1.
func (p *Problem) sibling(i int) int {
	lecture, lab := p.unitGenes(p.specs[i].unit)
	if lab < 0 {
		return -1
	}
	if i == lecture {
		return lab
	}
	return lecture
}

func (p *Problem) overlaps(i int, a Gene, j int, b Gene) bool {
	if !p.geneValid(a) || !p.geneValid(b) || a.Group != b.Group {
		return false
	}
	af, at, _ := p.occupied(i, a)
	bf, bt, _ := p.occupied(j, b)
	return af < bt && bf < at
}

// touches reports whether any slot in [from, to) falls into period.
func (g groupSlots) touches(from, to int, period models.TimePeriod) bool {
	for s := from; s < to; s++ {
		if slotPeriodMatches(g.slots[s], period) {
			return true
		}
	}
	return false
}

// within reports whether every slot in [from, to) falls into period.
func (g groupSlots) within(from, to int, period models.TimePeriod) bool {
	for s := from; s < to; s++ {
		if !slotPeriodMatches(g.slots[s], period) {
			return false
		}
	}
	return true
}

func slotPeriodMatches(slot slotInfo, period models.TimePeriod) bool {
	switch period {
	case models.TimePeriodMorning:
		return slot.start < noon
	case models.TimePeriodAfternoon:
		return slot.start >= noon
	default:
		return true
	}
}
