package metrics

import (
	"math"

	"github.com/san-kum/pbdsim/internal/sim"
)

// MaxStrain returns max |length - rest| / rest over all constraints.
func MaxStrain(w *sim.World) float64 {
	var worst float64
	for c := 0; c < w.Graph.Len(); c++ {
		k := w.Graph.At(c)
		if k.RestLength == 0 {
			continue
		}
		v, _ := k.Evaluate(w.Particles.Pos)
		worst = math.Max(worst, math.Abs(v)/k.RestLength)
	}
	return worst
}

// Strain reports the largest MaxStrain seen over observed steps.
type Strain struct {
	max float64
}

func NewStrain() *Strain { return &Strain{} }

func (s *Strain) Name() string { return "max_strain" }

func (s *Strain) Observe(w *sim.World, _ []float64) {
	s.max = math.Max(s.max, MaxStrain(w))
}

func (s *Strain) Value() float64 { return s.max }
func (s *Strain) Reset()         { s.max = 0 }

// Stability is the fraction of steps whose maximum strain stayed within
// threshold.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(w *sim.World, _ []float64) {
	s.samples++
	if MaxStrain(w) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
