package tasks

import (
	"errors"
	"fmt"

	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/gonumExtensions"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/spatial"
	"gonum.org/v1/gonum/mat"
)

// SE3Equality drives a frame to a reference placement with the PD law
//
// a_des = a_ref - Kp e - Kd e'
//
// where e = [p - p_ref; log(R R_ref^T)] and all quantities are world aligned
// at the frame origin. The constraint is J dv = a_des - drift, restricted to
// the rows selected by the mask (linear rows first).
type SE3Equality struct {
	name    string
	model   *robot.Model
	frameID int
	kp, kd  *mat.VecDense
	mask    []int

	ref    spatial.SE3
	refVel spatial.Motion
	refAcc spatial.Motion
	hasRef bool

	posError, velError *mat.VecDense
	constraint         *constraint.Equality
}

// NewSE3Equality returns a task on the named frame with zero gains and all
// six rows active.
func NewSE3Equality(name string, model *robot.Model, frame string) (*SE3Equality, error) {
	id, err := model.FrameID(frame)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", name, err)
	}
	return &SE3Equality{
		name:    name,
		model:   model,
		frameID: id,
		kp:      mat.NewVecDense(6, nil),
		kd:      mat.NewVecDense(6, nil),
		mask:    []int{0, 1, 2, 3, 4, 5},
	}, nil
}

func (task *SE3Equality) Name() string { return task.name }

func (task *SE3Equality) Dim() int { return len(task.mask) }

// FrameID returns the index of the tracked frame.
func (task *SE3Equality) FrameID() int { return task.frameID }

// SetKp sets the proportional gains, one per row of [linear; angular].
func (task *SE3Equality) SetKp(kp mat.Vector) error {
	if err := checkGains(kp); err != nil {
		return fmt.Errorf("task %q: Kp %w", task.name, err)
	}
	task.kp = mat.VecDenseCopyOf(kp)
	return nil
}

// SetKd sets the derivative gains, one per row of [linear; angular].
func (task *SE3Equality) SetKd(kd mat.Vector) error {
	if err := checkGains(kd); err != nil {
		return fmt.Errorf("task %q: Kd %w", task.name, err)
	}
	task.kd = mat.VecDenseCopyOf(kd)
	return nil
}

func (task *SE3Equality) Kp() mat.Vector { return task.kp }

func (task *SE3Equality) Kd() mat.Vector { return task.kd }

func checkGains(g mat.Vector) error {
	if g.Len() != 6 {
		return errors.New("needs six gains")
	}
	for i := 0; i < 6; i++ {
		if !(g.AtVec(i) >= 0) {
			return errors.New("gains must be non negative")
		}
	}
	return nil
}

// SetMask selects the active rows. The mask has six entries for
// [linear; angular] and must select at least one row.
func (task *SE3Equality) SetMask(mask []bool) error {
	if len(mask) != 6 {
		return fmt.Errorf("task %q: mask needs six entries, got %d", task.name, len(mask))
	}
	var rows []int
	for i, active := range mask {
		if active {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("task %q: mask selects no rows", task.name)
	}
	task.mask = rows
	return nil
}

// SetReference sets the reference placement, velocity and acceleration.
func (task *SE3Equality) SetReference(ref spatial.SE3, vel, acc spatial.Motion) {
	task.ref, task.refVel, task.refAcc = ref, vel, acc
	task.hasRef = true
}

// Reference returns the reference placement and whether one is set.
func (task *SE3Equality) Reference() (spatial.SE3, bool) {
	return task.ref, task.hasRef
}

// Compute returns the task constraint at (q, v). Without a reference the task
// holds the frame at the placement it has in this first call.
func (task *SE3Equality) Compute(t float64, q, v mat.Vector, data *robot.Data) *constraint.Equality {
	if !data.Matches(q, v) {
		panic(errors.New("data was not computed from (q, v)"))
	}
	oMf := task.model.FramePlacement(data, task.frameID)
	if !task.hasRef {
		task.SetReference(oMf, spatial.Motion{}, spatial.Motion{})
	}

	vel := task.model.FrameVelocity(data, task.frameID, robot.LocalWorldAligned)
	drift := task.model.FrameClassicAcceleration(data, task.frameID, robot.LocalWorldAligned)
	J := task.model.FrameJacobian(data, task.frameID, robot.LocalWorldAligned)

	e := spatial.Motion{
		Linear:  oMf.Translation.Sub(task.ref.Translation),
		Angular: spatial.Log3(oMf.Compose(task.ref.Inverse()).Rotation),
	}
	task.posError = e.Vector()
	task.velError = vel.Sub(task.refVel).Vector()

	// a_des - drift
	b := task.refAcc.Sub(drift).Vector()
	var tmp mat.VecDense
	tmp.MulElemVec(task.kp, task.posError)
	b.SubVec(b, &tmp)
	tmp.MulElemVec(task.kd, task.velError)
	b.SubVec(b, &tmp)

	task.constraint = constraint.NewEquality(task.name,
		gonumExtensions.SelectRows(J, task.mask),
		gonumExtensions.SelectVec(b, task.mask))
	return task.constraint
}

func (task *SE3Equality) Constraint() *constraint.Equality { return task.constraint }

// PositionError returns the last computed placement error [linear; angular].
func (task *SE3Equality) PositionError() mat.Vector { return task.posError }

// VelocityError returns the last computed velocity error [linear; angular].
func (task *SE3Equality) VelocityError() mat.Vector { return task.velError }
