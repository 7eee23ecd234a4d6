package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

// State is a phase of the evolution state machine.
type State string

const (
	StateInitializing          State = "INITIALIZING"
	StateEvolving              State = "EVOLVING"
	StateConverged             State = "CONVERGED"
	StateMaxGenerationsReached State = "MAX_GENERATIONS_REACHED"
	StateMaterializing         State = "MATERIALIZING"
	StateDone                  State = "DONE"
	StateFailed                State = "FAILED"
)

var transitions = map[State][]State{
	StateInitializing:          {StateEvolving},
	StateEvolving:              {StateConverged, StateMaxGenerationsReached},
	StateConverged:             {StateMaterializing},
	StateMaxGenerationsReached: {StateMaterializing},
	StateMaterializing:         {StateDone},
}

// ErrCancelled is returned when the run context is done between generations.
var ErrCancelled = errors.New("generation cancelled")

// ProgressFunc receives one update per generation.
type ProgressFunc func(generation, maxGenerations int, best float64)

// Result summarises a finished evolution run.
type Result struct {
	Best        *Chromosome
	Fitness     float64
	Breakdown   Breakdown
	Generation  int
	Generations int
	State       State
	BestHistory []float64
}

// Controller drives one evolution run. It is not safe for concurrent Run calls.
type Controller struct {
	problem *Problem
	eval    *Evaluator
	params  Parameters
	rng     *rand.Rand
	logger  *zap.Logger

	mu    sync.RWMutex
	state State
}

// NewController validates params and prepares a run over problem.
func NewController(problem *Problem, params Parameters, logger *zap.Logger) (*Controller, error) {
	if problem == nil {
		return nil, errors.New("scheduler: nil problem")
	}
	if params.PopulationSize < 1 {
		return nil, fmt.Errorf("scheduler: population size must be positive, got %d", params.PopulationSize)
	}
	if params.MaxGenerations < 1 {
		return nil, fmt.Errorf("scheduler: max generations must be positive, got %d", params.MaxGenerations)
	}
	if params.MutationRate < 0 || params.MutationRate > 1 {
		return nil, fmt.Errorf("scheduler: mutation rate must be within [0,1], got %v", params.MutationRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	params = params.withDefaults()
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		problem: problem,
		eval:    NewEvaluator(problem, params.Weights),
		params:  params,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logger,
		state:   StateInitializing,
	}, nil
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Evaluator exposes the evaluator the run scores with.
func (c *Controller) Evaluator() *Evaluator {
	return c.eval
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to == StateFailed {
		if c.state == StateDone {
			return fmt.Errorf("scheduler: cannot fail a finished run")
		}
		c.state = to
		return nil
	}
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("scheduler: illegal transition %s -> %s", c.state, to)
}

// Fail moves the run into FAILED.
func (c *Controller) Fail() {
	_ = c.transition(StateFailed)
}

// Run evolves a schedule from random individuals.
func (c *Controller) Run(ctx context.Context, report ProgressFunc) (*Result, error) {
	return c.run(ctx, nil, report)
}

// Refine evolves faculty assignments only, keeping the day, slot and room of every gene in base.
func (c *Controller) Refine(ctx context.Context, base *Chromosome, report ProgressFunc) (*Result, error) {
	if base == nil || len(base.Genes) != c.problem.NumGenes() {
		c.Fail()
		return nil, &EncodingError{Reason: "base chromosome does not match problem"}
	}
	c.params.FacultyOnly = true
	return c.run(ctx, base, report)
}

func (c *Controller) run(ctx context.Context, base *Chromosome, report ProgressFunc) (*Result, error) {
	params := c.params
	pop := make([]*Chromosome, params.PopulationSize)
	for i := range pop {
		pop[i] = c.fresh(base, i == 0)
	}
	if err := c.transition(StateEvolving); err != nil {
		c.Fail()
		return nil, err
	}

	var best *Chromosome
	result := &Result{}
	for gen := 1; ; gen++ {
		c.evaluate(pop)
		top := 0
		for i := range pop {
			if pop[i].Fitness > pop[top].Fitness {
				top = i
			}
		}
		if best == nil || pop[top].Fitness > best.Fitness {
			best = pop[top].Clone()
			result.Generation = gen
		}
		result.Generations = gen
		result.BestHistory = append(result.BestHistory, best.Fitness)
		if report != nil {
			report(gen, params.MaxGenerations, best.Fitness)
		}

		if c.converged(best.Fitness) {
			result.State = StateConverged
			break
		}
		if gen >= params.MaxGenerations {
			result.State = StateMaxGenerationsReached
			break
		}
		if err := ctx.Err(); err != nil {
			c.Fail()
			c.logger.Info("evolution cancelled", zap.Int("generation", gen), zap.Float64("best_fitness", best.Fitness))
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		pop = c.breed(pop, best)
	}

	if err := c.transition(result.State); err != nil {
		c.Fail()
		return nil, err
	}
	result.Best = best
	result.Fitness = best.Fitness
	result.Breakdown = c.eval.Breakdown(best)
	c.logger.Debug("evolution finished",
		zap.String("state", string(result.State)),
		zap.Int("generations", result.Generations),
		zap.Int("best_generation", result.Generation),
		zap.Float64("fitness", result.Fitness),
		zap.Int("hard_violations", result.Breakdown.Hard()),
	)
	return result, nil
}

func (c *Controller) converged(fitness float64) bool {
	lo, hi := c.params.TargetFitnessMin, c.params.TargetFitnessMax
	if lo >= hi {
		return false
	}
	return fitness >= lo && fitness <= hi
}

// fresh builds one repaired initial individual. In faculty-only mode the first individual is
// base itself so the current staffing competes with the random ones.
func (c *Controller) fresh(base *Chromosome, first bool) *Chromosome {
	var ind *Chromosome
	switch {
	case base == nil:
		ind = c.problem.randomChromosome(c.rng)
	case first:
		ind = base.Clone()
	default:
		ind = c.problem.restaff(c.rng, base)
	}
	c.problem.repair(ind, c.eval, c.params.MaxRepairPasses, c.params.FacultyOnly)
	return ind
}

// breed builds the next generation: the elite survives unchanged and every other slot is filled
// by selection, crossover, mutation and repair. Unrepairable children are replaced by fresh
// individuals.
func (c *Controller) breed(pop []*Chromosome, best *Chromosome) []*Chromosome {
	params := c.params
	next := make([]*Chromosome, 0, len(pop))
	next = append(next, best.Clone())
	for len(next) < len(pop) {
		a := pop[tournament(c.rng, pop, params.TournamentSize)]
		b := pop[tournament(c.rng, pop, params.TournamentSize)]
		child := c.problem.crossover(c.rng, a, b)
		c.problem.mutate(c.rng, child, params.MutationRate, params.FacultyOnly)
		if !c.problem.repair(child, c.eval, params.MaxRepairPasses, params.FacultyOnly) {
			if params.FacultyOnly {
				child = c.problem.restaff(c.rng, best)
			} else {
				child = c.problem.randomChromosome(c.rng)
			}
			c.problem.repair(child, c.eval, params.MaxRepairPasses, params.FacultyOnly)
		}
		next = append(next, child)
	}
	return next
}

// evaluate scores the population on a bounded worker pool.
func (c *Controller) evaluate(pop []*Chromosome) {
	p := pool.New().WithMaxGoroutines(c.params.Workers)
	for _, ind := range pop {
		ind := ind
		p.Go(func() {
			ind.Fitness = c.eval.Evaluate(ind)
		})
	}
	p.Wait()
}

// Materialize converts the best individual of result into schedule entries and completes the run.
func (c *Controller) Materialize(scheduleID string, result *Result) ([]models.ScheduleEntry, error) {
	if err := c.transition(StateMaterializing); err != nil {
		c.Fail()
		return nil, err
	}
	entries, err := c.problem.Materialize(scheduleID, result.Best)
	if err != nil {
		c.Fail()
		return nil, err
	}
	if err := c.transition(StateDone); err != nil {
		c.Fail()
		return nil, err
	}
	return entries, nil
}
