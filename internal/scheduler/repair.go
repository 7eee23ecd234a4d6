package scheduler

import "sort"

type clashKind int

const (
	clashRoom clashKind = iota
	clashFaculty
	clashTiming
)

type clash struct {
	other int
	kind  clashKind
}

type occupancy struct {
	rooms   map[roomCell][]int
	faculty map[facultyCell][]int
}

func (p *Problem) occupancyOf(c *Chromosome) *occupancy {
	o := &occupancy{
		rooms:   make(map[roomCell][]int),
		faculty: make(map[facultyCell][]int),
	}
	for i, gene := range c.Genes {
		o.place(p, c, i, gene)
	}
	return o
}

func (o *occupancy) place(p *Problem, c *Chromosome, i int, gene Gene) {
	if !p.geneValid(gene) {
		return
	}
	for _, rc := range p.cells(nil, c, i, gene) {
		o.rooms[rc] = append(o.rooms[rc], i)
		if gene.Faculty >= 0 {
			fc := facultyCell{rc.group, rc.slot, gene.Faculty}
			o.faculty[fc] = append(o.faculty[fc], i)
		}
	}
}

func (o *occupancy) lift(p *Problem, c *Chromosome, i int, gene Gene) {
	if !p.geneValid(gene) {
		return
	}
	for _, rc := range p.cells(nil, c, i, gene) {
		o.rooms[rc] = without(o.rooms[rc], i)
		if gene.Faculty >= 0 {
			fc := facultyCell{rc.group, rc.slot, gene.Faculty}
			o.faculty[fc] = without(o.faculty[fc], i)
		}
	}
}

func without(list []int, v int) []int {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

// repair resolves room double-bookings, faculty overlaps and lecture/lab collisions in place. It
// runs at most passes sweeps and reports whether the chromosome ended up clash-free. In
// faculty-only mode rooms and times are fixed, so only faculty overlaps are considered.
func (p *Problem) repair(c *Chromosome, eval *Evaluator, passes int, facultyOnly bool) bool {
	occ := p.occupancyOf(c)
	for pass := 0; pass < passes; pass++ {
		clean := true
		for i := range c.Genes {
			cl, found := p.findClash(occ, c, i, facultyOnly)
			if !found {
				continue
			}
			clean = false
			loser := p.loser(eval, c, i, cl.other)
			occ.lift(p, c, loser, c.Genes[loser])
			if gene, ok := p.relocate(occ, c, loser, cl.kind, facultyOnly); ok {
				c.Genes[loser] = gene
			}
			occ.place(p, c, loser, c.Genes[loser])
		}
		if clean {
			return true
		}
	}
	for i := range c.Genes {
		if _, found := p.findClash(occ, c, i, facultyOnly); found {
			return false
		}
	}
	return true
}

func (p *Problem) findClash(occ *occupancy, c *Chromosome, i int, facultyOnly bool) (clash, bool) {
	gene := c.Genes[i]
	if !p.geneValid(gene) {
		return clash{}, false
	}
	for _, rc := range p.cells(nil, c, i, gene) {
		if !facultyOnly {
			for _, j := range occ.rooms[rc] {
				if j != i {
					return clash{other: j, kind: clashRoom}, true
				}
			}
		}
		if gene.Faculty >= 0 {
			for _, j := range occ.faculty[facultyCell{rc.group, rc.slot, gene.Faculty}] {
				if j != i {
					return clash{other: j, kind: clashFaculty}, true
				}
			}
		}
	}
	if !facultyOnly {
		if sib := p.sibling(i); sib >= 0 && p.overlaps(i, gene, sib, c.Genes[sib]) {
			return clash{other: sib, kind: clashTiming}, true
		}
	}
	return clash{}, false
}

// loser picks the gene with the lower standalone contribution; ties move the higher index.
func (p *Problem) loser(eval *Evaluator, c *Chromosome, i, j int) int {
	ci := eval.contribution(i, c.Genes[i])
	cj := eval.contribution(j, c.Genes[j])
	switch {
	case ci < cj:
		return i
	case cj < ci:
		return j
	case i > j:
		return i
	default:
		return j
	}
}

// relocate finds the nearest clash-free alternative for gene i, which must already be lifted out
// of occ. Faculty clashes try another faculty member first.
func (p *Problem) relocate(occ *occupancy, c *Chromosome, i int, kind clashKind, facultyOnly bool) (Gene, bool) {
	gene := c.Genes[i]
	if kind == clashFaculty {
		if f, ok := p.freeFaculty(occ, c, i, gene); ok {
			gene.Faculty = f
			return gene, true
		}
		if facultyOnly {
			gene.Faculty = -1
			return gene, true
		}
	}
	if facultyOnly {
		return gene, false
	}

	spec := p.specs[i]
	rooms := make([]int, 0, len(spec.rooms))
	rooms = append(rooms, gene.Room)
	for _, r := range spec.rooms {
		if r != gene.Room {
			rooms = append(rooms, r)
		}
	}
	for _, cand := range p.placements(i, gene) {
		for _, r := range rooms {
			next := Gene{Group: cand.group, Slot: cand.slot, Room: r, Faculty: gene.Faculty}
			if p.fits(occ, c, i, next) {
				return next, true
			}
		}
	}
	if kind == clashFaculty {
		gene.Faculty = -1
		return gene, true
	}
	return gene, false
}

// placements lists start positions for gene i: the current group first, nearest start first,
// then the remaining groups in order.
func (p *Problem) placements(i int, gene Gene) []slotRef {
	spec := p.specs[i]
	var out []slotRef
	if gene.Group >= 0 && gene.Group < len(spec.starts) {
		same := append([]int(nil), spec.starts[gene.Group]...)
		sort.SliceStable(same, func(a, b int) bool {
			da, db := abs(same[a]-gene.Slot), abs(same[b]-gene.Slot)
			if da == db {
				return same[a] < same[b]
			}
			return da < db
		})
		for _, s := range same {
			out = append(out, slotRef{group: gene.Group, slot: s})
		}
	}
	for g, starts := range spec.starts {
		if g == gene.Group {
			continue
		}
		for _, s := range starts {
			out = append(out, slotRef{group: g, slot: s})
		}
	}
	return out
}

func (p *Problem) fits(occ *occupancy, c *Chromosome, i int, gene Gene) bool {
	from, to, ok := p.occupied(i, gene)
	if !ok {
		return false
	}
	for s := from; s < to; s++ {
		if len(occ.rooms[roomCell{gene.Group, s, gene.Room}]) > 0 {
			return false
		}
		if gene.Faculty >= 0 && len(occ.faculty[facultyCell{gene.Group, s, gene.Faculty}]) > 0 {
			return false
		}
	}
	if sib := p.sibling(i); sib >= 0 && p.overlaps(i, gene, sib, c.Genes[sib]) {
		return false
	}
	return true
}

// freeFaculty returns the first faculty member after the current one who is idle for every slot
// gene i occupies.
func (p *Problem) freeFaculty(occ *occupancy, c *Chromosome, i int, gene Gene) (int, bool) {
	n := len(p.faculty)
	if n == 0 {
		return -1, false
	}
	cells := p.cells(nil, c, i, gene)
	start := gene.Faculty + 1
	for k := 0; k < n; k++ {
		f := (start + k) % n
		if f == gene.Faculty {
			continue
		}
		free := true
		for _, rc := range cells {
			if len(occ.faculty[facultyCell{rc.group, rc.slot, f}]) > 0 {
				free = false
				break
			}
		}
		if free {
			return f, true
		}
	}
	return -1, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
