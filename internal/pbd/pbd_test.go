package pbd

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestNewParticles(t *testing.T) {
	tests := []struct {
		name    string
		pos     []r2.Vec
		invMass []float64
		wantErr bool
	}{
		{"valid", []r2.Vec{{X: 0}, {X: 1}}, []float64{0, 1}, false},
		{"empty", nil, nil, false},
		{"length mismatch", []r2.Vec{{X: 0}}, []float64{1, 1}, true},
		{"negative inverse mass", []r2.Vec{{X: 0}}, []float64{-1}, true},
		{"NaN inverse mass", []r2.Vec{{X: 0}}, []float64{math.NaN()}, true},
		{"NaN position", []r2.Vec{{X: math.NaN()}}, []float64{1}, true},
		{"Inf position", []r2.Vec{{Y: math.Inf(1)}}, []float64{1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParticles(tt.pos, tt.invMass)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewParticles() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParticlesFreeAndPinned(t *testing.T) {
	p, err := NewParticles([]r2.Vec{{}, {X: 1}, {X: 2}}, []float64{1, 0, 2})
	if err != nil {
		t.Fatal(err)
	}

	free := p.Free()
	if len(free) != 2 || free[0] != 0 || free[1] != 2 {
		t.Errorf("Free() = %v, want [0 2]", free)
	}
	if !p.IsPinned(1) || p.IsPinned(0) {
		t.Error("IsPinned mismatch")
	}
	mask := p.Pinned()
	if mask[0] || !mask[1] || mask[2] {
		t.Errorf("Pinned() = %v", mask)
	}
	if p.Prev[2] != p.Pos[2] {
		t.Error("Prev should start equal to Pos")
	}
}

func TestParticlesCloneIsIndependent(t *testing.T) {
	p, _ := NewParticles([]r2.Vec{{X: 1, Y: 2}}, []float64{1})
	c := p.Clone()
	c.Pos[0].X = 99
	if p.Pos[0].X == 99 {
		t.Error("Clone shares position storage")
	}
}

func TestParticlesIsValid(t *testing.T) {
	p, _ := NewParticles([]r2.Vec{{X: 1}}, []float64{1})
	if !p.IsValid() {
		t.Fatal("fresh particles should be valid")
	}
	p.Vel[0].Y = math.Inf(-1)
	if p.IsValid() {
		t.Error("Inf velocity should be invalid")
	}
	p.Vel[0].Y = 0
	p.Pos[0].X = math.NaN()
	if p.IsValid() {
		t.Error("NaN position should be invalid")
	}
}

func TestNewGraphRestLengthsAndIncidence(t *testing.T) {
	p, _ := NewParticles([]r2.Vec{{X: 0}, {X: 3, Y: 4}, {X: 3, Y: 5}}, []float64{0, 1, 1})
	g, err := NewGraph(p, []Edge{{0, 1}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}

	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	if math.Abs(g.At(0).RestLength-5) > 1e-12 {
		t.Errorf("rest length 0 = %f, want 5", g.At(0).RestLength)
	}
	if math.Abs(g.At(1).RestLength-1) > 1e-12 {
		t.Errorf("rest length 1 = %f, want 1", g.At(1).RestLength)
	}

	inc := g.Incident(1)
	if len(inc) != 2 {
		t.Fatalf("particle 1 incidence = %v", inc)
	}
	if inc[0].C != 0 || inc[0].Sign != -1 || inc[1].C != 1 || inc[1].Sign != 1 {
		t.Errorf("unexpected incidence %v", inc)
	}
	if len(g.Incident(0)) != 1 || len(g.Incident(2)) != 1 {
		t.Error("endpoint particles should touch one constraint")
	}

	edges := g.Edges()
	edges[0].A = 2
	if g.At(0).A != 0 {
		t.Error("Edges() must return a copy")
	}
}

func TestNewGraphRejectsBadIndices(t *testing.T) {
	p, _ := NewParticles([]r2.Vec{{}, {X: 1}}, []float64{1, 1})

	tests := []struct {
		name string
		e    Edge
	}{
		{"A out of range", Edge{2, 0}},
		{"B out of range", Edge{0, 5}},
		{"negative", Edge{-1, 0}},
		{"self loop", Edge{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(p, []Edge{tt.e})
			if !errors.Is(err, ErrInvalidTopology) {
				t.Errorf("expected ErrInvalidTopology, got %v", err)
			}
		})
	}
}

func TestConstraintEvaluate(t *testing.T) {
	c := Constraint{A: 0, B: 1, RestLength: 1}

	violation, dir := c.Evaluate([]r2.Vec{{X: 2}, {X: 0}})
	if math.Abs(violation-1) > 1e-12 {
		t.Errorf("violation = %f, want 1", violation)
	}
	if dir != (r2.Vec{X: 1}) {
		t.Errorf("dir = %v, want (1, 0)", dir)
	}

	violation, dir = c.Evaluate([]r2.Vec{{X: 1, Y: 1}, {X: 1, Y: 1}})
	if violation != -1 {
		t.Errorf("coincident violation = %f, want -1", violation)
	}
	if dir != (r2.Vec{}) {
		t.Errorf("coincident dir = %v, want zero", dir)
	}
}

func TestSimulationError(t *testing.T) {
	err := &SimulationError{Step: 3, Iteration: 7, Wrapped: ErrInvalidState}
	want := "step 3 (iteration 7): pbd: invalid state (NaN or Inf detected)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("SimulationError should unwrap to ErrInvalidState")
	}
}
