package scheduler

import "fmt"

// Encode maps an assignment set onto the chromosome layout of p. Every gene needs exactly one
// assignment, keyed by any block of its unit and the component it schedules.
func (p *Problem) Encode(assignments []Assignment) (*Chromosome, error) {
	genes := make([]Gene, len(p.specs))
	filled := make([]bool, len(p.specs))
	for _, a := range assignments {
		idx, ok := p.geneOf[geneKey{block: a.BlockID, kind: a.Component}]
		if !ok {
			return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: "no gene slot for assignment"}
		}
		if filled[idx] {
			return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: "assigned more than once"}
		}
		ref, ok := p.slotRef[a.TimeSlotID]
		if !ok {
			return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: fmt.Sprintf("unknown time slot %q", a.TimeSlotID)}
		}
		if p.groups[ref.group].group != a.DayGroup {
			return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: fmt.Sprintf("time slot %q is not in day group %s", a.TimeSlotID, a.DayGroup)}
		}
		room, ok := p.roomIdx[a.RoomID]
		if !ok {
			return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: fmt.Sprintf("unknown room %q", a.RoomID)}
		}
		faculty := -1
		if a.FacultyID != nil {
			f, ok := p.facultyIdx[*a.FacultyID]
			if !ok {
				return nil, &EncodingError{BlockID: a.BlockID, Component: a.Component, Reason: fmt.Sprintf("unknown faculty %q", *a.FacultyID)}
			}
			faculty = f
		}
		genes[idx] = Gene{Group: ref.group, Slot: ref.slot, Room: room, Faculty: faculty}
		filled[idx] = true
	}
	for idx, ok := range filled {
		if !ok {
			spec := p.specs[idx]
			block := p.blocks[p.units[spec.unit].blocks[0]]
			return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "missing assignment"}
		}
	}
	return &Chromosome{Genes: genes}, nil
}

// Decode returns one assignment per gene in gene order, keyed by the unit's primary block.
func (p *Problem) Decode(c *Chromosome) ([]Assignment, error) {
	if c == nil || len(c.Genes) != len(p.specs) {
		return nil, &EncodingError{Reason: "chromosome length does not match problem"}
	}
	out := make([]Assignment, 0, len(c.Genes))
	for i, gene := range c.Genes {
		spec := p.specs[i]
		block := p.blocks[p.units[spec.unit].blocks[0]]
		if gene.Group < 0 || gene.Group >= len(p.groups) {
			return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "day group index out of range"}
		}
		grp := p.groups[gene.Group]
		if gene.Slot < 0 || gene.Slot >= len(grp.slots) {
			return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "time slot index out of range"}
		}
		if gene.Room < 0 || gene.Room >= len(p.rooms) {
			return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "room index out of range"}
		}
		a := Assignment{
			BlockID:    block.ID,
			Component:  spec.kind,
			DayGroup:   grp.group,
			TimeSlotID: grp.slots[gene.Slot].ID,
			RoomID:     p.rooms[gene.Room].ID,
		}
		if gene.Faculty >= 0 {
			if gene.Faculty >= len(p.faculty) {
				return nil, &EncodingError{BlockID: block.ID, Component: spec.kind, Reason: "faculty index out of range"}
			}
			id := p.faculty[gene.Faculty].UserID
			a.FacultyID = &id
		}
		out = append(out, a)
	}
	return out, nil
}
