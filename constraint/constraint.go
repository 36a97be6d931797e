// Package constraint holds the linear constraint containers exchanged between
// the contacts, the motion tasks and the solver.
//
// Equality:   A x = b
//
// Inequality: lb <= A x <= ub
//
// Bound:      lb <= x <= ub
//
// Containers are immutable once built: constructors copy their inputs and the
// accessors return read-only views.
package constraint

import (
	"errors"
	"fmt"
	"math"

	"github.com/hammal/invdyn/gonumExtensions"
	"gonum.org/v1/gonum/mat"
)

// Kind tells the solver how to consume a constraint.
type Kind int

const (
	KindEquality Kind = iota
	KindInequality
	KindBound
)

func (k Kind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindInequality:
		return "inequality"
	case KindBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Base is the interface every constraint satisfies.
type Base interface {
	Name() string
	Kind() Kind
	// Rows is the number of scalar constraints
	Rows() int
	// Cols is the size of the constrained variable
	Cols() int
	Matrix() mat.Matrix
	// Residual returns the per-row violation at x, zero when the row holds.
	Residual(x mat.Vector) *mat.VecDense
}

// Satisfied reports whether every row of c holds at x within tol.
func Satisfied(c Base, x mat.Vector, tol float64) bool {
	if c.Rows() == 0 {
		return true
	}
	return mat.Norm(c.Residual(x), math.Inf(1)) <= tol
}

// Equality is the constraint A x = b.
type Equality struct {
	name string
	a    *mat.Dense
	b    *mat.VecDense
}

// NewEquality returns A x = b. A and b are copied.
func NewEquality(name string, A mat.Matrix, b mat.Vector) *Equality {
	m, _ := A.Dims()
	if m != b.Len() {
		panic(errors.New("equality matrix and vector dimensions don't match"))
	}
	if gonumExtensions.NotFinite(A) || gonumExtensions.NotFinite(b) {
		panic(fmt.Errorf("equality %q has NaN or infinite entries", name))
	}
	return &Equality{name: name, a: mat.DenseCopyOf(A), b: mat.VecDenseCopyOf(b)}
}

func (e *Equality) Name() string { return e.name }

func (e *Equality) Kind() Kind { return KindEquality }

func (e *Equality) Rows() int {
	m, _ := e.a.Dims()
	return m
}

func (e *Equality) Cols() int {
	_, n := e.a.Dims()
	return n
}

func (e *Equality) Matrix() mat.Matrix { return e.a }

// Vector returns b.
func (e *Equality) Vector() mat.Vector { return e.b }

// Residual returns |A x - b| per row.
func (e *Equality) Residual(x mat.Vector) *mat.VecDense {
	checkVariable(e, x)
	var res mat.VecDense
	res.MulVec(e.a, x)
	res.SubVec(&res, e.b)
	for i := 0; i < res.Len(); i++ {
		res.SetVec(i, math.Abs(res.AtVec(i)))
	}
	return &res
}

// Inequality is the constraint lb <= A x <= ub. Infinite bounds are allowed.
type Inequality struct {
	name   string
	a      *mat.Dense
	lb, ub *mat.VecDense
}

// NewInequality returns lb <= A x <= ub. Inputs are copied.
func NewInequality(name string, A mat.Matrix, lb, ub mat.Vector) *Inequality {
	m, _ := A.Dims()
	if m != lb.Len() || m != ub.Len() {
		panic(errors.New("inequality matrix and bound dimensions don't match"))
	}
	if gonumExtensions.NotFinite(A) {
		panic(fmt.Errorf("inequality %q has NaN or infinite matrix entries", name))
	}
	checkBounds(lb, ub)
	return &Inequality{name: name, a: mat.DenseCopyOf(A), lb: mat.VecDenseCopyOf(lb), ub: mat.VecDenseCopyOf(ub)}
}

func (c *Inequality) Name() string { return c.name }

func (c *Inequality) Kind() Kind { return KindInequality }

func (c *Inequality) Rows() int {
	m, _ := c.a.Dims()
	return m
}

func (c *Inequality) Cols() int {
	_, n := c.a.Dims()
	return n
}

func (c *Inequality) Matrix() mat.Matrix { return c.a }

func (c *Inequality) LowerBound() mat.Vector { return c.lb }

func (c *Inequality) UpperBound() mat.Vector { return c.ub }

// Residual returns the distance of A x to [lb, ub] per row.
func (c *Inequality) Residual(x mat.Vector) *mat.VecDense {
	checkVariable(c, x)
	var ax mat.VecDense
	ax.MulVec(c.a, x)
	return violation(&ax, c.lb, c.ub)
}

// Bound is the constraint lb <= x <= ub.
type Bound struct {
	name   string
	lb, ub *mat.VecDense
}

// NewBound returns lb <= x <= ub. Inputs are copied.
func NewBound(name string, lb, ub mat.Vector) *Bound {
	if lb.Len() != ub.Len() {
		panic(errors.New("bound dimensions don't match"))
	}
	checkBounds(lb, ub)
	return &Bound{name: name, lb: mat.VecDenseCopyOf(lb), ub: mat.VecDenseCopyOf(ub)}
}

func (c *Bound) Name() string { return c.name }

func (c *Bound) Kind() Kind { return KindBound }

func (c *Bound) Rows() int { return c.lb.Len() }

func (c *Bound) Cols() int { return c.lb.Len() }

// Matrix returns the identity.
func (c *Bound) Matrix() mat.Matrix {
	ones := make([]float64, c.lb.Len())
	for i := range ones {
		ones[i] = 1
	}
	return mat.NewDiagDense(len(ones), ones)
}

func (c *Bound) LowerBound() mat.Vector { return c.lb }

func (c *Bound) UpperBound() mat.Vector { return c.ub }

func (c *Bound) Residual(x mat.Vector) *mat.VecDense {
	checkVariable(c, x)
	return violation(x, c.lb, c.ub)
}

func violation(ax, lb, ub mat.Vector) *mat.VecDense {
	res := mat.NewVecDense(ax.Len(), nil)
	for i := 0; i < ax.Len(); i++ {
		switch v := ax.AtVec(i); {
		case v < lb.AtVec(i):
			res.SetVec(i, lb.AtVec(i)-v)
		case v > ub.AtVec(i):
			res.SetVec(i, v-ub.AtVec(i))
		}
	}
	return res
}

func checkVariable(c Base, x mat.Vector) {
	if x.Len() != c.Cols() {
		panic(errors.New("variable doesn't match the constraint size"))
	}
}

func checkBounds(lb, ub mat.Vector) {
	for i := 0; i < lb.Len(); i++ {
		if math.IsNaN(lb.AtVec(i)) || math.IsNaN(ub.AtVec(i)) || lb.AtVec(i) > ub.AtVec(i) {
			panic(errors.New("lower bound above upper bound"))
		}
	}
}
