package scheduler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

// Materialize expands c into schedule entries: one per block of the unit, per calendar day of the
// group and per occupied slot. Every entry of one gene shares a session group id. Residual hard
// violations are flagged on the entries rather than returned as errors.
func (p *Problem) Materialize(scheduleID string, c *Chromosome) ([]models.ScheduleEntry, error) {
	if _, err := p.Decode(c); err != nil {
		return nil, err
	}
	var entries []models.ScheduleEntry
	for i, gene := range c.Genes {
		spec := p.specs[i]
		un := p.units[spec.unit]
		grp := p.groups[gene.Group]
		from, to, _ := p.occupied(i, gene)
		session := uuid.NewString()
		parallel := p.parallelCode(un)

		var start, end *string
		if to-from > 1 {
			s, e := grp.slots[from].StartTime, grp.slots[to-1].EndTime
			start, end = &s, &e
		}
		for _, b := range un.blocks {
			block := p.blocks[b]
			code := displayCode(block, spec.kind)
			for _, day := range grp.group.Days() {
				for s := from; s < to; s++ {
					entry := models.ScheduleEntry{
						ID:                     uuid.NewString(),
						ScheduleID:             scheduleID,
						Day:                    day,
						TimeSlotID:             grp.slots[s].ID,
						RoomID:                 p.rooms[gene.Room].ID,
						AcademicSetupSubjectID: block.ID,
						IsLabSession:           spec.kind == ComponentLab,
						SessionGroupID:         session,
						SlotsSpan:              to - from,
						CustomStartTime:        start,
						CustomEndTime:          end,
						DisplayCode:            code,
						ParallelDisplayCode:    parallel,
					}
					if gene.Faculty >= 0 {
						id := p.faculty[gene.Faculty].UserID
						entry.UserID = &id
					}
					entries = append(entries, entry)
				}
			}
		}
	}
	p.validator.FlagAll(entries)
	return entries, nil
}

// displayCode renders "CODE COURSES-B<n>", with a LAB suffix for lab sessions. General-education
// blocks have no course part.
func displayCode(block models.SubjectBlock, kind Component) string {
	code := block.SubjectCode
	if code == "" {
		code = block.SubjectID
	}
	if len(block.CourseCodes) > 0 {
		code += " " + strings.Join(block.CourseCodes, "/")
	}
	code += fmt.Sprintf("-B%d", block.BlockNumber)
	if kind == ComponentLab {
		code += " LAB"
	}
	return code
}

// parallelCode joins the subject codes of a multi-block unit, e.g. "CS101/IT101".
func (p *Problem) parallelCode(un unit) *string {
	if len(un.blocks) < 2 {
		return nil
	}
	codes := make([]string, 0, len(un.blocks))
	for _, b := range un.blocks {
		code := p.blocks[b].SubjectCode
		if code == "" {
			code = p.blocks[b].SubjectID
		}
		codes = append(codes, code)
	}
	joined := strings.Join(codes, "/")
	return &joined
}
