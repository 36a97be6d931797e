package contacts

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/tasks"
	"gonum.org/v1/gonum/mat"
)

// ContactNormal is a frictionless unilateral point contact. Its single force
// variable is the magnitude of the force along the contact normal, bounded by
// [min, max].
type ContactNormal struct {
	Base
	task      *tasks.SE3Equality
	normal    r3.Vector
	weight    float64
	fRef      float64
	generator *mat.Dense

	motion *constraint.Equality
	force  *constraint.Inequality
	reg    *constraint.Equality
}

// NewContactNormal returns a unilateral contact on config.Frame. The friction
// coefficient of config is ignored.
func NewContactNormal(name string, model *robot.Model, config PointConfig) (*ContactNormal, error) {
	base, err := newBase(name, model, config.MinNormalForce, config.MaxNormalForce)
	if err != nil {
		return nil, err
	}
	normal, err := checkNormal(name, config.Normal)
	if err != nil {
		return nil, err
	}
	if err := checkWeight(name, config.RegularizationWeight); err != nil {
		return nil, err
	}
	task, err := newPointTask(name, model, config.Frame, config.Kp, config.Kd)
	if err != nil {
		return nil, err
	}
	return &ContactNormal{
		Base:      base,
		task:      task,
		normal:    normal,
		weight:    config.RegularizationWeight,
		generator: mat.NewDense(6, 1, []float64{normal.X, normal.Y, normal.Z, 0, 0, 0}),
	}, nil
}

func (c *ContactNormal) NMotion() int { return 3 }

func (c *ContactNormal) NForce() int { return 1 }

// Normal returns the unit contact normal in world axes.
func (c *ContactNormal) Normal() r3.Vector { return c.normal }

// SetForceReference sets the normal force the regularization pulls towards.
func (c *ContactNormal) SetForceReference(f float64) { c.fRef = f }

// SetRegularizationWeight changes the weight of the regularization task.
func (c *ContactNormal) SetRegularizationWeight(w float64) error {
	if err := checkWeight(c.name, w); err != nil {
		return err
	}
	c.weight = w
	return nil
}

func (c *ContactNormal) ComputeMotionConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	c.motion = c.task.Compute(t, q, v, data)
	return c.motion
}

func (c *ContactNormal) ComputeForceConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Inequality {
	c.checkState(q, v, data)
	c.force = constraint.NewInequality(c.name+"_force",
		mat.NewDense(1, 1, []float64{1}),
		mat.NewVecDense(1, []float64{c.minNormalForce}),
		mat.NewVecDense(1, []float64{c.maxNormalForce}))
	return c.force
}

func (c *ContactNormal) ForceGeneratorMatrix() mat.Matrix { return c.generator }

func (c *ContactNormal) ComputeForceRegularizationTask(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	c.reg = constraint.NewEquality(c.name+"_force_reg",
		mat.NewDense(1, 1, []float64{1}),
		mat.NewVecDense(1, []float64{c.fRef}))
	return c.reg
}

func (c *ContactNormal) ForceRegularizationWeight() float64 { return c.weight }

func (c *ContactNormal) MotionTask() tasks.TaskMotion { return c.task }

func (c *ContactNormal) MotionConstraint() constraint.Base {
	if c.motion == nil {
		return nil
	}
	return c.motion
}

func (c *ContactNormal) ForceConstraint() *constraint.Inequality { return c.force }

func (c *ContactNormal) ForceRegularizationTask() *constraint.Equality { return c.reg }

// NormalForce returns the single force variable.
func (c *ContactNormal) NormalForce(f mat.Vector) float64 {
	c.checkForce(f, 1)
	return f.AtVec(0)
}

func (c *ContactNormal) WrenchJacobian(data *robot.Data) *mat.Dense {
	return c.robot.FrameJacobian(data, c.task.FrameID(), robot.LocalWorldAligned)
}

func (c *ContactNormal) String() string {
	return fmt.Sprintf("ContactNormal(%s, n=%v, f in [%v, %v])", c.name, c.normal, c.minNormalForce, c.maxNormalForce)
}
