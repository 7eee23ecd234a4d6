package scheduler

import (
	"runtime"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

// Component identifies which half of a subject block a gene schedules.
type Component int

const (
	ComponentLecture Component = iota
	ComponentLab
)

func (c Component) String() string {
	if c == ComponentLab {
		return "lab"
	}
	return "lecture"
}

// Weights shapes the fitness function. Soft weights are relative to each other; the soft total is
// normalised into [0, MaxScore] and every hard violation subtracts HardPenalty.
type Weights struct {
	MaxScore      float64
	HardPenalty   float64
	PreferredRoom float64
	DayOff        float64
	TimePeriod    float64
	IdleGap       float64
	Load          float64
	Staffing      float64
	UnitsHard     bool
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		MaxScore:      100,
		HardPenalty:   1000,
		PreferredRoom: 3,
		DayOff:        4,
		TimePeriod:    2,
		IdleGap:       2,
		Load:          3,
		Staffing:      1,
	}
}

// Parameters govern one evolution run.
type Parameters struct {
	PopulationSize   int
	MaxGenerations   int
	MutationRate     float64
	TournamentSize   int
	MaxRepairPasses  int
	IncludedDays     []models.DayGroup
	TargetFitnessMin float64
	TargetFitnessMax float64
	Workers          int
	Seed             int64
	Weights          Weights

	// FacultyOnly freezes day, slot and room; only faculty genes evolve.
	FacultyOnly bool
}

func (p Parameters) withDefaults() Parameters {
	if p.TournamentSize <= 0 {
		p.TournamentSize = 3
	}
	if p.MaxRepairPasses <= 0 {
		p.MaxRepairPasses = 8
	}
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	if p.Weights == (Weights{}) {
		p.Weights = DefaultWeights()
	}
	if p.Weights.MaxScore <= 0 {
		p.Weights.MaxScore = 100
	}
	if p.Weights.HardPenalty <= p.Weights.MaxScore {
		p.Weights.HardPenalty = p.Weights.MaxScore * 10
	}
	if len(p.IncludedDays) == 0 {
		p.IncludedDays = models.AllDayGroups
	}
	return p
}

// Input is the immutable domain data for one academic setup.
type Input struct {
	Blocks    []models.SubjectBlock
	Faculty   []models.Faculty
	Rooms     []models.Room
	TimeSlots []models.TimeSlot
}

// Gene binds one schedulable component to a group, starting slot, room and faculty.
// Indices refer to the compiled Problem; Faculty is -1 when nobody is assigned.
type Gene struct {
	Group   int
	Slot    int
	Room    int
	Faculty int
}

// Chromosome is one candidate schedule. Gene positions are fixed per Problem.
type Chromosome struct {
	Genes   []Gene
	Fitness float64

	// placed holds the cells really occupied by genes whose saved entries were moved apart. It is
	// shared read-only between copies.
	placed map[int]placement
}

// placement is honoured only while the gene still sits at anchor.
type placement struct {
	anchor Gene
	cells  []roomCell
}

// Clone deep-copies the chromosome.
func (c *Chromosome) Clone() *Chromosome {
	genes := make([]Gene, len(c.Genes))
	copy(genes, c.Genes)
	return &Chromosome{Genes: genes, Fitness: c.Fitness, placed: c.placed}
}

// Assignment is the decoded, id-based form of a gene.
type Assignment struct {
	BlockID    string
	Component  Component
	DayGroup   models.DayGroup
	TimeSlotID string
	RoomID     string
	FacultyID  *string
}
