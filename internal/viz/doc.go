// Package viz draws a running simulation in the terminal with Bubble Tea.
//
// Particles and constraints are plotted on a braille [Canvas]; the side
// panel charts the residual of every sweep in the latest step.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	R     - Reset to the initial state
//	T     - Cycle color themes
//	Q     - Quit
package viz
