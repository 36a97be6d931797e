package robot

import (
	"errors"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/gonumExtensions"
	"github.com/hammal/invdyn/spatial"
	"gonum.org/v1/gonum/mat"
)

// ReferenceFrame selects the axes and reference point frame quantities are
// expressed in.
type ReferenceFrame int

const (
	// LocalWorldAligned quantities are taken at the frame origin and expressed
	// in world axes.
	LocalWorldAligned ReferenceFrame = iota
	// Local quantities are taken at the frame origin and expressed in the frame
	// axes.
	Local
)

// Data is the kinematic snapshot of a Model for one (q, v). All joint
// quantities are world aligned and taken at the joint origin.
type Data struct {
	q, v *mat.VecDense
	// Joint placements
	oMi []spatial.SE3
	// Joint axes in world
	axes []r3.Vector
	// Velocities and bias (zero joint acceleration) accelerations
	vel []spatial.Motion
	acc []spatial.Motion
	// Frame placements
	oMf []spatial.SE3
}

// NewData allocates a snapshot for m. It is invalid until ComputeKinematics.
func (m *Model) NewData() *Data {
	return &Data{
		oMi:  make([]spatial.SE3, len(m.joints)),
		axes: make([]r3.Vector, len(m.joints)),
		vel:  make([]spatial.Motion, len(m.joints)),
		acc:  make([]spatial.Motion, len(m.joints)),
		oMf:  make([]spatial.SE3, len(m.frames)),
	}
}

// Matches reports whether data was computed from exactly q and v.
func (d *Data) Matches(q, v mat.Vector) bool {
	if d.q == nil || d.v == nil {
		return false
	}
	return gonumExtensions.VecEqual(d.q, q) && gonumExtensions.VecEqual(d.v, v)
}

// ComputeKinematics fills data with the placements, velocities and bias
// accelerations of every joint and frame of m at (q, v).
func (m *Model) ComputeKinematics(data *Data, q, v mat.Vector) {
	if q.Len() != m.NQ() || v.Len() != m.NV() {
		panic(errors.New("configuration or velocity doesn't match the model"))
	}
	if len(data.oMi) != len(m.joints) || len(data.oMf) != len(m.frames) {
		panic(errors.New("data was not allocated for this model"))
	}

	for id, joint := range m.joints {
		var (
			parent             spatial.SE3
			parentVel, parentA spatial.Motion
		)
		// The world is at rest at the origin.
		parent = spatial.Identity()
		if joint.Parent != World {
			parent = data.oMi[joint.Parent]
			parentVel = data.vel[joint.Parent]
			parentA = data.acc[joint.Parent]
		}

		qi, vi := q.AtVec(joint.Index), v.AtVec(joint.Index)
		oMj := parent.Compose(joint.Placement)
		switch joint.Type {
		case Revolute:
			data.oMi[id] = oMj.Compose(spatial.NewSE3(spatial.AxisAngle(joint.Axis, qi), r3.Vector{}))
		case Prismatic:
			data.oMi[id] = oMj.Compose(spatial.Translation(joint.Axis.Mul(qi)))
		}
		axis := oMj.Rotate(joint.Axis)
		data.axes[id] = axis

		omega, alpha := parentVel.Angular, parentA.Angular
		d := data.oMi[id].Translation.Sub(parent.Translation)
		lin := parentVel.Linear.Add(omega.Cross(d))
		acc := parentA.Linear.Add(alpha.Cross(d)).Add(omega.Cross(omega.Cross(d)))
		switch joint.Type {
		case Revolute:
			data.vel[id] = spatial.Motion{Linear: lin, Angular: omega.Add(axis.Mul(vi))}
			data.acc[id] = spatial.Motion{Linear: acc, Angular: alpha.Add(omega.Cross(axis).Mul(vi))}
		case Prismatic:
			data.vel[id] = spatial.Motion{Linear: lin.Add(axis.Mul(vi)), Angular: omega}
			data.acc[id] = spatial.Motion{Linear: acc.Add(omega.Cross(axis).Mul(2 * vi)), Angular: alpha}
		}
	}

	for id, frame := range m.frames {
		data.oMf[id] = data.oMi[frame.Joint].Compose(frame.Placement)
	}

	data.q = mat.VecDenseCopyOf(q)
	data.v = mat.VecDenseCopyOf(v)
}

// FramePlacement returns the world placement of frame id.
func (m *Model) FramePlacement(data *Data, id int) spatial.SE3 {
	m.checkFrame(id)
	return data.oMf[id]
}

// FrameVelocity returns the spatial velocity of frame id at its origin.
func (m *Model) FrameVelocity(data *Data, id int, ref ReferenceFrame) spatial.Motion {
	m.checkFrame(id)
	joint := m.frames[id].Joint
	r := data.oMf[id].Translation.Sub(data.oMi[joint].Translation)
	vel := data.vel[joint]
	res := spatial.Motion{Linear: vel.Linear.Add(vel.Angular.Cross(r)), Angular: vel.Angular}
	return express(res, data.oMf[id], ref)
}

// FrameClassicAcceleration returns the acceleration of the origin of frame id
// (and its angular acceleration) for a zero joint acceleration, i.e. the term
// a such that the frame acceleration is J dv + a.
func (m *Model) FrameClassicAcceleration(data *Data, id int, ref ReferenceFrame) spatial.Motion {
	m.checkFrame(id)
	joint := m.frames[id].Joint
	r := data.oMf[id].Translation.Sub(data.oMi[joint].Translation)
	vel, acc := data.vel[joint], data.acc[joint]
	omega := vel.Angular
	res := spatial.Motion{
		Linear:  acc.Linear.Add(acc.Angular.Cross(r)).Add(omega.Cross(omega.Cross(r))),
		Angular: acc.Angular,
	}
	return express(res, data.oMf[id], ref)
}

// FrameJacobian returns the 6 x nv Jacobian of frame id, linear rows first.
func (m *Model) FrameJacobian(data *Data, id int, ref ReferenceFrame) *mat.Dense {
	m.checkFrame(id)
	joint := m.frames[id].Joint
	oMf := data.oMf[id]
	J := mat.NewDense(6, m.NV(), nil)
	for _, j := range m.support[joint] {
		axis := data.axes[j]
		var col spatial.Motion
		switch m.joints[j].Type {
		case Revolute:
			col = spatial.Motion{Linear: axis.Cross(oMf.Translation.Sub(data.oMi[j].Translation)), Angular: axis}
		case Prismatic:
			col = spatial.Motion{Linear: axis}
		}
		J.SetCol(m.joints[j].Index, express(col, oMf, ref).Vector().RawVector().Data)
	}
	return J
}

func express(m spatial.Motion, oMf spatial.SE3, ref ReferenceFrame) spatial.Motion {
	switch ref {
	case LocalWorldAligned:
		return m
	case Local:
		return m.RotateInverse(oMf)
	default:
		panic(errors.New("unknown reference frame"))
	}
}
