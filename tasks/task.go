// Package tasks implements the motion tasks the contacts use to keep their
// frame still. A motion task turns a desired frame acceleration into an
// equality on the joint acceleration: J dv = a_des - drift.
package tasks

import (
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/robot"
	"gonum.org/v1/gonum/mat"
)

// TaskMotion is a task on the joint acceleration.
type TaskMotion interface {
	Name() string
	// Number of task rows
	Dim() int
	// Compute returns a fresh constraint for (q, v). data must be computed
	// from the same (q, v).
	Compute(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality
	// Constraint returns the last computed constraint, nil before Compute.
	Constraint() *constraint.Equality
}
