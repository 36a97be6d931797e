package contacts

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/gonumExtensions"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/tasks"
	"gonum.org/v1/gonum/mat"
)

// ContactPoint is a frictional point contact. The three force variables are
// the contact force in world axes. The force constraint is the friction
// pyramid (4 rows, a f <= 0) followed by min <= n . f <= max.
type ContactPoint struct {
	Base
	task      *tasks.SE3Equality
	normal    r3.Vector
	mu        float64
	weight    float64
	fRef      *mat.VecDense
	generator *mat.Dense
	pyramid   *mat.Dense

	motion *constraint.Equality
	force  *constraint.Inequality
	reg    *constraint.Equality
}

// NewContactPoint returns a point contact on config.Frame.
func NewContactPoint(name string, model *robot.Model, config PointConfig) (*ContactPoint, error) {
	base, err := newBase(name, model, config.MinNormalForce, config.MaxNormalForce)
	if err != nil {
		return nil, err
	}
	normal, err := checkNormal(name, config.Normal)
	if err != nil {
		return nil, err
	}
	if err := checkFriction(name, config.FrictionCoefficient); err != nil {
		return nil, err
	}
	if err := checkWeight(name, config.RegularizationWeight); err != nil {
		return nil, err
	}
	task, err := newPointTask(name, model, config.Frame, config.Kp, config.Kd)
	if err != nil {
		return nil, err
	}

	generator := mat.NewDense(6, 3, nil)
	gonumExtensions.SetBlock(generator, 0, 0, gonumExtensions.Eye(3, 3, 0))
	return &ContactPoint{
		Base:      base,
		task:      task,
		normal:    normal,
		mu:        config.FrictionCoefficient,
		weight:    config.RegularizationWeight,
		fRef:      mat.NewVecDense(3, nil),
		generator: generator,
		pyramid:   frictionPyramid(normal, config.FrictionCoefficient),
	}, nil
}

// newPointTask returns the translation-only motion task of a point contact.
func newPointTask(name string, model *robot.Model, frame string, kp, kd float64) (*tasks.SE3Equality, error) {
	task, err := tasks.NewSE3Equality(name+"_motion", model, frame)
	if err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}
	if err := task.SetMask([]bool{true, true, true, false, false, false}); err != nil {
		return nil, err
	}
	if err := task.SetKp(gonumExtensions.FullVec(6, kp)); err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}
	if err := task.SetKd(gonumExtensions.FullVec(6, kd)); err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}
	return task, nil
}

func (c *ContactPoint) NMotion() int { return 3 }

func (c *ContactPoint) NForce() int { return 3 }

// Normal returns the unit contact normal in world axes.
func (c *ContactPoint) Normal() r3.Vector { return c.normal }

// FrictionCoefficient returns mu.
func (c *ContactPoint) FrictionCoefficient() float64 { return c.mu }

// SetFrictionCoefficient changes mu. Non positive values are rejected.
func (c *ContactPoint) SetFrictionCoefficient(mu float64) error {
	if err := checkFriction(c.name, mu); err != nil {
		return err
	}
	c.mu = mu
	c.pyramid = frictionPyramid(c.normal, mu)
	return nil
}

// SetForceReference sets the force the regularization pulls towards.
func (c *ContactPoint) SetForceReference(f mat.Vector) error {
	if f.Len() != 3 {
		return fmt.Errorf("contact %q: force reference has %d entries, expected 3", c.name, f.Len())
	}
	c.fRef = mat.VecDenseCopyOf(f)
	return nil
}

// SetRegularizationWeight changes the weight of the regularization task.
func (c *ContactPoint) SetRegularizationWeight(w float64) error {
	if err := checkWeight(c.name, w); err != nil {
		return err
	}
	c.weight = w
	return nil
}

func (c *ContactPoint) ComputeMotionConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	c.motion = c.task.Compute(t, q, v, data)
	return c.motion
}

func (c *ContactPoint) ComputeForceConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Inequality {
	c.checkState(q, v, data)
	A := mat.NewDense(5, 3, nil)
	gonumExtensions.SetBlock(A, 0, 0, c.pyramid)
	A.SetRow(4, []float64{c.normal.X, c.normal.Y, c.normal.Z})
	inf := math.Inf(-1)
	lb := mat.NewVecDense(5, []float64{inf, inf, inf, inf, c.minNormalForce})
	ub := mat.NewVecDense(5, []float64{0, 0, 0, 0, c.maxNormalForce})
	c.force = constraint.NewInequality(c.name+"_force", A, lb, ub)
	return c.force
}

func (c *ContactPoint) ForceGeneratorMatrix() mat.Matrix { return c.generator }

func (c *ContactPoint) ComputeForceRegularizationTask(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	c.reg = constraint.NewEquality(c.name+"_force_reg", gonumExtensions.Eye(3, 3, 0), c.fRef)
	return c.reg
}

func (c *ContactPoint) ForceRegularizationWeight() float64 { return c.weight }

func (c *ContactPoint) MotionTask() tasks.TaskMotion { return c.task }

// MotionConstraint returns the last motion constraint, nil before the first
// ComputeMotionConstraint.
func (c *ContactPoint) MotionConstraint() constraint.Base {
	if c.motion == nil {
		return nil
	}
	return c.motion
}

func (c *ContactPoint) ForceConstraint() *constraint.Inequality { return c.force }

func (c *ContactPoint) ForceRegularizationTask() *constraint.Equality { return c.reg }

func (c *ContactPoint) NormalForce(f mat.Vector) float64 {
	c.checkForce(f, 3)
	return c.normal.X*f.AtVec(0) + c.normal.Y*f.AtVec(1) + c.normal.Z*f.AtVec(2)
}

// WrenchJacobian is the world aligned frame Jacobian.
func (c *ContactPoint) WrenchJacobian(data *robot.Data) *mat.Dense {
	return c.robot.FrameJacobian(data, c.task.FrameID(), robot.LocalWorldAligned)
}

func (c *ContactPoint) String() string {
	return fmt.Sprintf("ContactPoint(%s, n=%v, mu=%v, f in [%v, %v])", c.name, c.normal, c.mu, c.minNormalForce, c.maxNormalForce)
}
