// Package contacts implements the contact models of the whole body
// controller. Every contact type satisfies the Contact interface, so the
// solver can stack motion constraints, friction constraints, force generator
// matrices and force regularization tasks without knowing the contact
// geometry.
//
// A contact is stateless with respect to the robot configuration: every
// compute method receives (t, q, v) and the robot.Data snapshot the caller
// computed from the same (q, v). Each compute call returns a freshly built
// constraint that the contact never mutates afterwards; the accessors return
// the last one built. A single contact must not be computed from several
// goroutines at once, distinct contacts are independent.
package contacts

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/tasks"
	"gonum.org/v1/gonum/mat"
)

// Contact is the contract between a contact model and the solver.
type Contact interface {
	Name() string
	SetName(name string)
	// Robot is the model the contact was built on.
	Robot() *robot.Model

	// NMotion is the number of motion constraint rows.
	NMotion() int
	// NForce is the number of force variables.
	NForce() int

	// ComputeMotionConstraint returns the NMotion x nv equality keeping the
	// contact frame still.
	ComputeMotionConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality
	// ComputeForceConstraint returns the friction and normal force bounds on
	// the NForce variables, using the current normal force bounds.
	ComputeForceConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Inequality
	// ForceGeneratorMatrix maps the force variables to the 6D wrench
	// [force; moment] at the contact frame origin.
	ForceGeneratorMatrix() mat.Matrix
	// ComputeForceRegularizationTask returns the equality the solver pulls the
	// force variables towards, weighted by ForceRegularizationWeight.
	ComputeForceRegularizationTask(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality
	ForceRegularizationWeight() float64

	MotionTask() tasks.TaskMotion
	MotionConstraint() constraint.Base
	ForceConstraint() *constraint.Inequality
	ForceRegularizationTask() *constraint.Equality

	MinNormalForce() float64
	MaxNormalForce() float64
	// SetMinNormalForce and SetMaxNormalForce return a *BoundError and leave
	// the bounds untouched when the update would break 0 <= min <= max.
	SetMinNormalForce(minNormalForce float64) error
	SetMaxNormalForce(maxNormalForce float64) error
	// NormalForce projects a force variable vector on the contact normal.
	NormalForce(f mat.Vector) float64

	// WrenchJacobian returns the 6 x nv Jacobian whose transpose maps the
	// wrench produced by ForceGeneratorMatrix to generalized forces.
	WrenchJacobian(data *robot.Data) *mat.Dense
}

// ErrInvalidBound is wrapped by every BoundError.
var ErrInvalidBound = errors.New("invalid normal force bound")

// BoundError reports a rejected normal force bound update.
type BoundError struct {
	Contact string
	// "min" or "max"
	Bound    string
	Value    float64
	Min, Max float64
	Reason   string
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("contact %q: %s normal force %v rejected (bounds [%v, %v]): %s",
		e.Contact, e.Bound, e.Value, e.Min, e.Max, e.Reason)
}

func (e *BoundError) Unwrap() error { return ErrInvalidBound }

// Base carries the bookkeeping shared by every contact: its name, the robot
// model it is formulated against and the normal force bounds. The model is
// borrowed: it is owned by the caller and must outlive the contact.
type Base struct {
	name           string
	robot          *robot.Model
	minNormalForce float64
	maxNormalForce float64
}

func newBase(name string, model *robot.Model, minNormalForce, maxNormalForce float64) (Base, error) {
	if model == nil {
		return Base{}, fmt.Errorf("contact %q: nil robot model", name)
	}
	b := Base{name: name, robot: model}
	if reason := checkBounds(minNormalForce, maxNormalForce); reason != "" {
		return Base{}, fmt.Errorf("contact %q: normal force bounds [%v, %v]: %s", name, minNormalForce, maxNormalForce, reason)
	}
	b.minNormalForce, b.maxNormalForce = minNormalForce, maxNormalForce
	return b, nil
}

func checkBounds(minNormalForce, maxNormalForce float64) string {
	switch {
	case math.IsNaN(minNormalForce) || math.IsNaN(maxNormalForce):
		return "NaN bound"
	case math.IsInf(minNormalForce, 0):
		return "min must be finite"
	case minNormalForce < 0:
		return "min must be non negative"
	case minNormalForce > maxNormalForce:
		return "min above max"
	}
	return ""
}

func (b *Base) Name() string { return b.name }

func (b *Base) SetName(name string) { b.name = name }

// Robot returns the borrowed model.
func (b *Base) Robot() *robot.Model { return b.robot }

func (b *Base) MinNormalForce() float64 { return b.minNormalForce }

func (b *Base) MaxNormalForce() float64 { return b.maxNormalForce }

func (b *Base) SetMinNormalForce(minNormalForce float64) error {
	if reason := checkBounds(minNormalForce, b.maxNormalForce); reason != "" {
		return &BoundError{b.name, "min", minNormalForce, b.minNormalForce, b.maxNormalForce, reason}
	}
	b.minNormalForce = minNormalForce
	return nil
}

func (b *Base) SetMaxNormalForce(maxNormalForce float64) error {
	if reason := checkBounds(b.minNormalForce, maxNormalForce); reason != "" {
		return &BoundError{b.name, "max", maxNormalForce, b.minNormalForce, b.maxNormalForce, reason}
	}
	b.maxNormalForce = maxNormalForce
	return nil
}

// checkState panics unless data was computed from (q, v) for this model.
func (b *Base) checkState(q, v mat.Vector, data *robot.Data) {
	if data == nil {
		panic(errors.New("nil robot data"))
	}
	if q.Len() != b.robot.NQ() || v.Len() != b.robot.NV() {
		panic(errors.New("configuration or velocity doesn't match the robot model"))
	}
	if !data.Matches(q, v) {
		panic(errors.New("robot data was not computed from (q, v)"))
	}
}

func (b *Base) checkForce(f mat.Vector, n int) {
	if f.Len() != n {
		panic(fmt.Errorf("contact %q: force vector has %d entries, expected %d", b.name, f.Len(), n))
	}
}

// tangentBasis returns two unit vectors spanning the plane orthogonal to the
// unit vector n, such that (t1, t2, n) is right handed.
func tangentBasis(n r3.Vector) (r3.Vector, r3.Vector) {
	// Cross with the axis least aligned with n.
	var e r3.Vector
	switch n.Abs().SmallestComponent() {
	case r3.XAxis:
		e = r3.Vector{X: 1}
	case r3.YAxis:
		e = r3.Vector{Y: 1}
	default:
		e = r3.Vector{Z: 1}
	}
	t1 := e.Cross(n).Normalize()
	t2 := n.Cross(t1)
	return t1, t2
}

// frictionPyramid returns the 4 x 3 rows a such that a f <= 0 describes
// the linearized friction cone |f . t_i| <= mu / sqrt(2) f . n.
func frictionPyramid(n r3.Vector, mu float64) *mat.Dense {
	t1, t2 := tangentBasis(n)
	muLin := mu / math.Sqrt2
	res := mat.NewDense(4, 3, nil)
	for row, t := range []r3.Vector{t1, t1.Mul(-1), t2, t2.Mul(-1)} {
		a := t.Sub(n.Mul(muLin))
		res.SetRow(row, []float64{a.X, a.Y, a.Z})
	}
	return res
}

func checkFriction(name string, mu float64) error {
	if !(mu > 0) || math.IsInf(mu, 0) {
		return fmt.Errorf("contact %q: friction coefficient must be positive and finite, got %v", name, mu)
	}
	return nil
}

func checkNormal(name string, n r3.Vector) (r3.Vector, error) {
	if norm := n.Norm(); !(norm > 1e-9) || math.IsInf(norm, 0) {
		return r3.Vector{}, fmt.Errorf("contact %q: invalid contact normal %v", name, n)
	}
	return n.Normalize(), nil
}

func checkWeight(name string, w float64) error {
	if !(w >= 0) || math.IsInf(w, 0) {
		return fmt.Errorf("contact %q: regularization weight must be non negative and finite, got %v", name, w)
	}
	return nil
}
