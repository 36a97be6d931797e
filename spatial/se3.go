// Package spatial holds the rigid body algebra shared by the robot model, the
// motion tasks and the contacts: placements (SE3), spatial motions and spatial
// forces. Rotations are unit quaternions, points and directions are r3 vectors.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// SE3 is a rigid placement x -> R x + p.
type SE3 struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// Identity returns the identity placement.
func Identity() SE3 {
	return SE3{Rotation: quat.Number{Real: 1}}
}

// NewSE3 returns the placement with rotation rot (normalized) and translation p.
func NewSE3(rot quat.Number, p r3.Vector) SE3 {
	return SE3{Rotation: normalize(rot), Translation: p}
}

// Translation returns a pure translation.
func Translation(p r3.Vector) SE3 {
	return SE3{Rotation: quat.Number{Real: 1}, Translation: p}
}

// AxisAngle returns the unit quaternion rotating by angle around axis.
func AxisAngle(axis r3.Vector, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(angle/2) / n
	return quat.Number{Real: math.Cos(angle / 2), Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the rotation q to p.
func Rotate(q quat.Number, p r3.Vector) r3.Vector {
	v := quat.Mul(quat.Mul(q, quat.Number{Imag: p.X, Jmag: p.Y, Kmag: p.Z}), quat.Conj(q))
	return r3.Vector{X: v.Imag, Y: v.Jmag, Z: v.Kmag}
}

// Act returns R p + t.
func (m SE3) Act(p r3.Vector) r3.Vector {
	return Rotate(m.Rotation, p).Add(m.Translation)
}

// Rotate returns R p.
func (m SE3) Rotate(p r3.Vector) r3.Vector {
	return Rotate(m.Rotation, p)
}

// RotateInverse returns R^T p.
func (m SE3) RotateInverse(p r3.Vector) r3.Vector {
	return Rotate(quat.Conj(m.Rotation), p)
}

// Compose returns m * n, i.e. n expressed in the frame of m.
func (m SE3) Compose(n SE3) SE3 {
	return SE3{
		Rotation:    normalize(quat.Mul(m.Rotation, n.Rotation)),
		Translation: m.Act(n.Translation),
	}
}

// Inverse returns the inverse placement.
func (m SE3) Inverse() SE3 {
	inv := quat.Conj(m.Rotation)
	return SE3{Rotation: inv, Translation: Rotate(inv, m.Translation).Mul(-1)}
}

// RotationMatrix returns R as a 3x3 matrix.
func (m SE3) RotationMatrix() *mat.Dense {
	res := mat.NewDense(3, 3, nil)
	for col, e := range []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}} {
		c := m.Rotate(e)
		res.Set(0, col, c.X)
		res.Set(1, col, c.Y)
		res.Set(2, col, c.Z)
	}
	return res
}

// Log3 returns the rotation vector (axis times angle, angle in [0, pi]) of q.
func Log3(q quat.Number) r3.Vector {
	q = normalize(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := v.Norm()
	if s == 0 {
		return r3.Vector{}
	}
	return v.Mul(2 * math.Atan2(s, q.Real) / s)
}

// Skew returns the matrix [p]x such that [p]x y = p x y.
func Skew(p r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -p.Z, p.Y,
		p.Z, 0, -p.X,
		-p.Y, p.X, 0,
	})
}
