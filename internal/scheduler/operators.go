package scheduler

import "math/rand"

// randomGene draws a feasible placement for gene i: a group the component fits in, a contiguous
// start, a compatible room and any faculty member.
func (p *Problem) randomGene(rng *rand.Rand, i int) Gene {
	spec := p.specs[i]
	var groups []int
	for g, starts := range spec.starts {
		if len(starts) > 0 {
			groups = append(groups, g)
		}
	}
	g := groups[rng.Intn(len(groups))]
	starts := spec.starts[g]
	return Gene{
		Group:   g,
		Slot:    starts[rng.Intn(len(starts))],
		Room:    spec.rooms[rng.Intn(len(spec.rooms))],
		Faculty: p.randomFaculty(rng),
	}
}

func (p *Problem) randomFaculty(rng *rand.Rand) int {
	if len(p.faculty) == 0 {
		return -1
	}
	return rng.Intn(len(p.faculty))
}

func (p *Problem) randomChromosome(rng *rand.Rand) *Chromosome {
	genes := make([]Gene, len(p.specs))
	for i := range genes {
		genes[i] = p.randomGene(rng, i)
	}
	return &Chromosome{Genes: genes}
}

// restaff copies base and draws new faculty for every gene.
func (p *Problem) restaff(rng *rand.Rand, base *Chromosome) *Chromosome {
	c := base.Clone()
	c.Fitness = 0
	for i := range c.Genes {
		c.Genes[i].Faculty = p.randomFaculty(rng)
	}
	return c
}

// tournament samples size individuals and returns the index of the fittest. Equal fitness goes to
// the lower index.
func tournament(rng *rand.Rand, pop []*Chromosome, size int) int {
	best := -1
	for k := 0; k < size; k++ {
		idx := rng.Intn(len(pop))
		if best < 0 || pop[idx].Fitness > pop[best].Fitness || (pop[idx].Fitness == pop[best].Fitness && idx < best) {
			best = idx
		}
	}
	return best
}

// crossover is uniform per unit: both components of a unit come from the same parent.
func (p *Problem) crossover(rng *rand.Rand, a, b *Chromosome) *Chromosome {
	fromA := make([]bool, len(p.units))
	for u := range fromA {
		fromA[u] = rng.Intn(2) == 0
	}
	genes := make([]Gene, len(p.specs))
	for i, spec := range p.specs {
		if fromA[spec.unit] {
			genes[i] = a.Genes[i]
		} else {
			genes[i] = b.Genes[i]
		}
	}
	placed := a.placed
	if placed == nil {
		placed = b.placed
	}
	return &Chromosome{Genes: genes, placed: placed}
}

// mutate redraws each gene with probability rate. In faculty-only mode only the faculty changes.
func (p *Problem) mutate(rng *rand.Rand, c *Chromosome, rate float64, facultyOnly bool) {
	for i := range c.Genes {
		if rng.Float64() >= rate {
			continue
		}
		if facultyOnly {
			c.Genes[i].Faculty = p.randomFaculty(rng)
			continue
		}
		c.Genes[i] = p.randomGene(rng, i)
	}
}
