package gonumExtensions

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Full returns a (m by n) matrix filled with value
func Full(m, n int, value float64) *mat.Dense {
	data := make([]float64, m*n)
	for index := range data {
		data[index] = value
	}
	return mat.NewDense(m, n, data)
}

// FullVec returns a vector of length n filled with value
func FullVec(n int, value float64) *mat.VecDense {
	data := make([]float64, n)
	for index := range data {
		data[index] = value
	}
	return mat.NewVecDense(n, data)
}

// Eye returns a (m by n) matrix with ones on the k-th diagonal. k = 0 is the
// main diagonal, k > 0 above and k < 0 below it.
func Eye(m, n, k int) *mat.Dense {
	res := mat.NewDense(m, n, nil)
	for row := 0; row < m; row++ {
		col := row + k
		if col >= 0 && col < n {
			res.Set(row, col, 1)
		}
	}
	return res
}

// SetBlock copies src into dst with its upper left corner at (i, j).
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	m, n := dst.Dims()
	if i < 0 || j < 0 || i+r > m || j+c > n {
		panic(errors.New("block does not fit into destination matrix"))
	}
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// SelectRows returns a new matrix made of the given rows of m, in order.
func SelectRows(m mat.Matrix, rows []int) *mat.Dense {
	_, n := m.Dims()
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	res := mat.NewDense(len(rows), n, nil)
	for index, row := range rows {
		for col := 0; col < n; col++ {
			res.Set(index, col, m.At(row, col))
		}
	}
	return res
}

// SelectVec is SelectRows for vectors.
func SelectVec(v mat.Vector, rows []int) *mat.VecDense {
	if len(rows) == 0 {
		return &mat.VecDense{}
	}
	res := mat.NewVecDense(len(rows), nil)
	for index, row := range rows {
		res.SetVec(index, v.AtVec(row))
	}
	return res
}

// NotFinite reports whether any entry of m is NaN or infinite. Vectors
// are matrices too, so it covers both.
func NotFinite(m mat.Matrix) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if x := m.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return true
			}
		}
	}
	return false
}

// VecEqual reports whether a and b have the same length and identical entries.
func VecEqual(a, b mat.Vector) bool {
	if a.Len() != b.Len() {
		return false
	}
	for index := 0; index < a.Len(); index++ {
		if a.AtVec(index) != b.AtVec(index) {
			return false
		}
	}
	return true
}
