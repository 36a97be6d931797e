package contacts

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/gonumExtensions"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/spatial"
	"github.com/hammal/invdyn/tasks"
	"gonum.org/v1/gonum/mat"
)

// Contact6d is a rigid planar contact through four corner points. The 12
// force variables are the 3D forces at the corners, expressed in the contact
// frame. The force constraint stacks the friction pyramid of every corner
// (16 rows) and bounds the summed normal force by [min, max] (last row).
type Contact6d struct {
	Base
	task    *tasks.SE3Equality
	corners [4]r3.Vector
	normal  r3.Vector
	mu      float64
	weight  float64
	wrenchW *mat.DiagDense
	wRef    *mat.VecDense

	generator *mat.Dense
	pyramid   *mat.Dense

	motion *constraint.Equality
	force  *constraint.Inequality
	reg    *constraint.Equality
}

const nCorners = 4

// NewContact6d returns a planar contact on config.Frame.
func NewContact6d(name string, model *robot.Model, config Contact6dConfig) (*Contact6d, error) {
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
	if err := checkPatch(name, config.Corners); err != nil {
		return nil, err
	}
	for _, w := range config.WrenchWeights {
		if err := checkWeight(name, w); err != nil {
			return nil, err
		}
	}

	task, err := tasks.NewSE3Equality(name+"_motion", model, config.Frame)
	if err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}
	if err := task.SetKp(gonumExtensions.FullVec(6, config.Kp)); err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}
	if err := task.SetKd(gonumExtensions.FullVec(6, config.Kd)); err != nil {
		return nil, fmt.Errorf("contact %q: %w", name, err)
	}

	generator := mat.NewDense(6, 3*nCorners, nil)
	for i, p := range config.Corners {
		gonumExtensions.SetBlock(generator, 0, 3*i, gonumExtensions.Eye(3, 3, 0))
		gonumExtensions.SetBlock(generator, 3, 3*i, spatial.Skew(p))
	}
	return &Contact6d{
		Base:      base,
		task:      task,
		corners:   config.Corners,
		normal:    normal,
		mu:        config.FrictionCoefficient,
		weight:    config.RegularizationWeight,
		wrenchW:   mat.NewDiagDense(6, config.WrenchWeights[:]),
		wRef:      mat.NewVecDense(6, nil),
		generator: generator,
		pyramid:   frictionPyramid(normal, config.FrictionCoefficient),
	}, nil
}

// checkPatch rejects patches whose corners are all on a line.
func checkPatch(name string, corners [4]r3.Vector) error {
	largest := 0.
	for i := 0; i < nCorners; i++ {
		for j := i + 1; j < nCorners; j++ {
			for k := j + 1; k < nCorners; k++ {
				a := corners[j].Sub(corners[i]).Cross(corners[k].Sub(corners[i])).Norm()
				largest = math.Max(largest, a)
			}
		}
	}
	if !(largest > 1e-9) {
		return fmt.Errorf("contact %q: degenerate contact patch %v", name, corners)
	}
	return nil
}

func (c *Contact6d) NMotion() int { return 6 }

func (c *Contact6d) NForce() int { return 3 * nCorners }

// Corners returns the patch corners in the contact frame.
func (c *Contact6d) Corners() [4]r3.Vector { return c.corners }

// SetWrenchReference sets the wrench the regularization pulls towards.
func (c *Contact6d) SetWrenchReference(w spatial.Force) {
	c.wRef = w.Vector()
}

// SetRegularizationWeight changes the weight of the regularization task.
func (c *Contact6d) SetRegularizationWeight(w float64) error {
	if err := checkWeight(c.name, w); err != nil {
		return err
	}
	c.weight = w
	return nil
}

func (c *Contact6d) ComputeMotionConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	c.motion = c.task.Compute(t, q, v, data)
	return c.motion
}

func (c *Contact6d) ComputeForceConstraint(t float64, q, v mat.Vector, data *robot.Data) *constraint.Inequality {
	c.checkState(q, v, data)
	rows := 4*nCorners + 1
	A := mat.NewDense(rows, 3*nCorners, nil)
	lb := mat.NewVecDense(rows, nil)
	ub := mat.NewVecDense(rows, nil)
	for i := 0; i < nCorners; i++ {
		gonumExtensions.SetBlock(A, 4*i, 3*i, c.pyramid)
		A.Set(rows-1, 3*i, c.normal.X)
		A.Set(rows-1, 3*i+1, c.normal.Y)
		A.Set(rows-1, 3*i+2, c.normal.Z)
	}
	for row := 0; row < rows-1; row++ {
		lb.SetVec(row, math.Inf(-1))
	}
	lb.SetVec(rows-1, c.minNormalForce)
	ub.SetVec(rows-1, c.maxNormalForce)
	c.force = constraint.NewInequality(c.name+"_force", A, lb, ub)
	return c.force
}

func (c *Contact6d) ForceGeneratorMatrix() mat.Matrix { return c.generator }

// ComputeForceRegularizationTask returns W G f = W w_ref, a weighted pull
// of the resulting wrench towards the reference wrench.
func (c *Contact6d) ComputeForceRegularizationTask(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	c.checkState(q, v, data)
	var A mat.Dense
	A.Mul(c.wrenchW, c.generator)
	var b mat.VecDense
	b.MulVec(c.wrenchW, c.wRef)
	c.reg = constraint.NewEquality(c.name+"_force_reg", &A, &b)
	return c.reg
}

func (c *Contact6d) ForceRegularizationWeight() float64 { return c.weight }

func (c *Contact6d) MotionTask() tasks.TaskMotion { return c.task }

func (c *Contact6d) MotionConstraint() constraint.Base {
	if c.motion == nil {
		return nil
	}
	return c.motion
}

func (c *Contact6d) ForceConstraint() *constraint.Inequality { return c.force }

func (c *Contact6d) ForceRegularizationTask() *constraint.Equality { return c.reg }

// NormalForce returns the summed normal force of the corners.
func (c *Contact6d) NormalForce(f mat.Vector) float64 {
	c.checkForce(f, 3*nCorners)
	sum := 0.
	for i := 0; i < nCorners; i++ {
		sum += c.normal.X*f.AtVec(3*i) + c.normal.Y*f.AtVec(3*i+1) + c.normal.Z*f.AtVec(3*i+2)
	}
	return sum
}

// WrenchJacobian is the local frame Jacobian, matching forces expressed in
// the contact frame.
func (c *Contact6d) WrenchJacobian(data *robot.Data) *mat.Dense {
	return c.robot.FrameJacobian(data, c.task.FrameID(), robot.Local)
}

func (c *Contact6d) String() string {
	return fmt.Sprintf("Contact6d(%s, %d corners, mu=%v, f in [%v, %v])", c.name, nCorners, c.mu, c.minNormalForce, c.maxNormalForce)
}
