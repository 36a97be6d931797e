package spatial

import (
	"errors"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Motion is a spatial velocity or acceleration. Linear is the velocity (or
// acceleration) of a given reference point, Angular the angular part.
type Motion struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// Force is a spatial force: a force and the moment about a reference point.
type Force struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// Vector returns [linear; angular] as a 6-vector.
func (m Motion) Vector() *mat.VecDense {
	return stack(m.Linear, m.Angular)
}

// Sub returns m - n.
func (m Motion) Sub(n Motion) Motion {
	return Motion{Linear: m.Linear.Sub(n.Linear), Angular: m.Angular.Sub(n.Angular)}
}

// RotateInverse expresses m in the axes of the rotation of x.
func (m Motion) RotateInverse(x SE3) Motion {
	return Motion{Linear: x.RotateInverse(m.Linear), Angular: x.RotateInverse(m.Angular)}
}

// Vector returns [linear; angular] as a 6-vector.
func (f Force) Vector() *mat.VecDense {
	return stack(f.Linear, f.Angular)
}

// ForceFromVector reads a 6-vector [force; moment].
func ForceFromVector(v mat.Vector) Force {
	if v.Len() != 6 {
		panic(errors.New("a spatial force has six components"))
	}
	return Force{
		Linear:  r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)},
		Angular: r3.Vector{X: v.AtVec(3), Y: v.AtVec(4), Z: v.AtVec(5)},
	}
}

func stack(a, b r3.Vector) *mat.VecDense {
	return mat.NewVecDense(6, []float64{a.X, a.Y, a.Z, b.X, b.Y, b.Z})
}
