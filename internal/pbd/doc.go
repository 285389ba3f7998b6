// Package pbd provides the simulation state shared by every stage of a
// position-based dynamics step.
//
// The package defines the data the solver stages read and write:
//
//   - [Particles]: positions, pre-step positions, velocities and inverse masses
//   - [Graph]: the fixed distance-constraint topology with rest lengths
//   - [Constraint]: one distance constraint and its per-sweep evaluation
//
// A particle with zero inverse mass is pinned. Nothing in the step pipeline
// moves a pinned particle, and inverse masses cannot be changed after
// construction.
//
// # Example
//
//	ps, _ := pbd.NewParticles(positions, invMass)
//	g, _ := pbd.NewGraph(ps, edges)
//	violation, dir := g.At(0).Evaluate(ps.Pos)
//
// # Thread Safety
//
// Particles and Graph carry no locks. The topology is immutable after
// construction and safe for concurrent reads; particle state is owned by a
// single driver and mutated only by the stage currently running.
package pbd
