// Package ode integrates ordinary differential equations with explicit
// Runge-Kutta methods https://en.wikipedia.org/wiki/Runge–Kutta_methods.
// It is used to roll the robot state forward under the accelerations chosen
// from the contact constraints.
package ode

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// DifferentiableSystem is x'(t) = f(t, x).
type DifferentiableSystem interface {
	Derivative(t float64, state mat.Vector) mat.Vector
}

// SystemFunc adapts a function to a DifferentiableSystem.
type SystemFunc func(t float64, state mat.Vector) mat.Vector

func (f SystemFunc) Derivative(t float64, state mat.Vector) mat.Vector {
	return f(t, state)
}

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// Step advances value from t = from to t = to in a single step. The result is
// written back into value.
func (rk RungeKutta) Step(from, to float64, value *mat.VecDense, system DifferentiableSystem) {
	h := to - from
	K := make([]mat.Vector, rk.Description.stages)
	var stage mat.VecDense
	for index := range K {
		// Intermediate state from the previous derivative points
		stage.CloneFromVec(value)
		for previous, a := range rk.Description.rungeKuttaMatrix[index] {
			if a != 0 {
				stage.AddScaledVec(&stage, h*a, K[previous])
			}
		}
		K[index] = system.Derivative(from+h*rk.Description.nodes[index], &stage)
		if K[index].Len() != value.Len() {
			panic(errors.New("derivative doesn't match the state dimension"))
		}
	}
	for index, k := range K {
		value.AddScaledVec(value, h*rk.Description.weights[index], k)
	}
}

// Integrate advances value from t = from to t = to in steps equal steps.
func (rk RungeKutta) Integrate(from, to float64, steps int, value *mat.VecDense, system DifferentiableSystem) {
	if steps <= 0 {
		panic(errors.New("number of steps must be positive"))
	}
	h := (to - from) / float64(steps)
	for step := 0; step < steps; step++ {
		t0 := from + float64(step)*h
		rk.Step(t0, t0+h, value, system)
	}
}

// Stages returns the number of stages.
func (rk RungeKutta) Stages() int {
	return rk.Description.stages
}

// butcherTableau which describes the approximate solution, see https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          []float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	return &RungeKutta{butcherTableau{
		stages:  4,
		nodes:   []float64{0, 1. / 2., 1. / 2., 1},
		weights: []float64{1. / 6., 1. / 3., 1. / 3., 1. / 6.},
		rungeKuttaMatrix: [][]float64{
			nil,
			{1. / 2.},
			{0, 1. / 2.},
			{0, 0, 1.},
		},
	}}
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	return &RungeKutta{butcherTableau{
		stages:           1,
		nodes:            []float64{0},
		weights:          []float64{1},
		rungeKuttaMatrix: [][]float64{nil},
	}}
}

// NewHeun returns the second order Heun method.
func NewHeun() *RungeKutta {
	return &RungeKutta{butcherTableau{
		stages:           2,
		nodes:            []float64{0, 1},
		weights:          []float64{1. / 2., 1. / 2.},
		rungeKuttaMatrix: [][]float64{nil, {1}},
	}}
}
