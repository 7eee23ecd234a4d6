package scheduler

import (
	"fmt"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

// FromEntries rebuilds a chromosome from persisted entries. Each gene takes the earliest entry of
// its component; faculty that no longer exist become unassigned. When a component's entries were
// moved apart, the chromosome remembers where they sit so staffing is scored against those cells.
func (p *Problem) FromEntries(entries []models.ScheduleEntry) (*Chromosome, error) {
	genes := make([]Gene, len(p.specs))
	found := make([]bool, len(p.specs))
	actual := make([][]roomCell, len(p.specs))
	for _, e := range entries {
		kind := ComponentLecture
		if e.IsLabSession {
			kind = ComponentLab
		}
		idx, ok := p.geneOf[geneKey{block: e.AcademicSetupSubjectID, kind: kind}]
		if !ok {
			return nil, &EncodingError{BlockID: e.AcademicSetupSubjectID, Component: kind, Reason: "entry has no gene slot"}
		}
		ref, ok := p.slotRef[e.TimeSlotID]
		if !ok {
			return nil, &EncodingError{BlockID: e.AcademicSetupSubjectID, Component: kind, Reason: fmt.Sprintf("unknown time slot %q", e.TimeSlotID)}
		}
		room, ok := p.roomIdx[e.RoomID]
		if !ok {
			return nil, &EncodingError{BlockID: e.AcademicSetupSubjectID, Component: kind, Reason: fmt.Sprintf("unknown room %q", e.RoomID)}
		}
		faculty := -1
		if e.UserID != nil {
			if f, ok := p.facultyIdx[*e.UserID]; ok {
				faculty = f
			}
		}
		actual[idx] = appendCell(actual[idx], roomCell{ref.group, ref.slot, room})
		gene := Gene{Group: ref.group, Slot: ref.slot, Room: room, Faculty: faculty}
		if !found[idx] || earlier(gene, genes[idx]) {
			genes[idx] = gene
			found[idx] = true
		}
	}
	for idx, ok := range found {
		if !ok {
			spec := p.specs[idx]
			block := p.blocks[p.units[spec.unit].blocks[0]]
			return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "no entries for component"}
		}
	}

	c := &Chromosome{Genes: genes}
	for idx, gene := range genes {
		if sameCells(actual[idx], p.cells(nil, c, idx, gene)) {
			continue
		}
		if c.placed == nil {
			c.placed = make(map[int]placement)
		}
		c.placed[idx] = placement{anchor: gene, cells: actual[idx]}
	}
	return c, nil
}

func appendCell(cells []roomCell, cell roomCell) []roomCell {
	if containsCell(cells, cell) {
		return cells
	}
	return append(cells, cell)
}

// sameCells compares two duplicate-free cell lists as sets.
func sameCells(a, b []roomCell) bool {
	if len(a) != len(b) {
		return false
	}
	for _, cell := range b {
		if !containsCell(a, cell) {
			return false
		}
	}
	return true
}

func containsCell(cells []roomCell, cell roomCell) bool {
	for _, c := range cells {
		if c == cell {
			return true
		}
	}
	return false
}

func earlier(a, b Gene) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Slot < b.Slot
}

// ApplyFaculty writes the faculty of each gene in c onto the matching entries in place and
// returns the indices of entries whose user changed. Day, slot and room are untouched.
func (p *Problem) ApplyFaculty(entries []models.ScheduleEntry, c *Chromosome) []int {
	var changed []int
	for i := range entries {
		e := &entries[i]
		kind := ComponentLecture
		if e.IsLabSession {
			kind = ComponentLab
		}
		idx, ok := p.geneOf[geneKey{block: e.AcademicSetupSubjectID, kind: kind}]
		if !ok || idx >= len(c.Genes) {
			continue
		}
		var next *string
		if f := c.Genes[idx].Faculty; f >= 0 && f < len(p.faculty) {
			id := p.faculty[f].UserID
			next = &id
		}
		if sameUser(e.UserID, next) {
			continue
		}
		e.UserID = next
		changed = append(changed, i)
	}
	return changed
}

// Revalidate reflags every entry and returns the indices whose conflict state changed.
func (p *Problem) Revalidate(entries []models.ScheduleEntry) []int {
	return p.validator.FlagAll(entries)
}

func sameUser(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
