package linalg

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major matrix of T.
//
// A Matrix is treated as immutable once the function that built it has
// returned. Set is only meant for the builder.
type Matrix[T Float] struct {
	rows, cols int
	data       []T
}

// NewMatrix creates a rows×cols matrix backed by data. If data is nil a
// zeroed backing slice is allocated. NewMatrix panics if the length of
// data does not match the dimensions.
func NewMatrix[T Float](rows, cols int, data []T) Matrix[T] {
	if rows < 0 || cols < 0 {
		panic(ErrShape)
	}
	if data == nil {
		data = make([]T, rows*cols)
	}
	if len(data) != rows*cols {
		panic(ErrShape)
	}
	return Matrix[T]{rows: rows, cols: cols, data: data}
}

// Dims returns the number of rows and columns
func (m Matrix[T]) Dims() (int, int) { return m.rows, m.cols }

// IsEmpty reports whether the matrix has zero rows or columns
func (m Matrix[T]) IsEmpty() bool { return m.rows == 0 || m.cols == 0 }

// At returns the element at row i, column j
func (m Matrix[T]) At(i, j int) T { return m.data[i*m.cols+j] }

// Set sets the element at row i, column j
func (m Matrix[T]) Set(i, j int, v T) { m.data[i*m.cols+j] = v }

// RawRow returns row i as a slice sharing the matrix storage
func (m Matrix[T]) RawRow(i int) []T { return m.data[i*m.cols : (i+1)*m.cols] }

// Row returns a copy of row i
func (m Matrix[T]) Row(i int) []T {
	row := make([]T, m.cols)
	copy(row, m.RawRow(i))
	return row
}

// Clone returns a deep copy of the matrix
func (m Matrix[T]) Clone() Matrix[T] {
	data := make([]T, len(m.data))
	copy(data, m.data)
	return Matrix[T]{rows: m.rows, cols: m.cols, data: data}
}

// Dense converts the matrix to a float64 gonum matrix.
// An empty matrix converts to an empty *mat.Dense.
func (m Matrix[T]) Dense() *mat.Dense {
	if m.IsEmpty() {
		return &mat.Dense{}
	}
	data := make([]float64, len(m.data))
	for i, v := range m.data {
		data[i] = float64(v)
	}
	return mat.NewDense(m.rows, m.cols, data)
}

// FromDense rounds a gonum matrix into a Matrix of T
func FromDense[T Float](a mat.Matrix) Matrix[T] {
	r, c := a.Dims()
	m := NewMatrix[T](r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.data[i*c+j] = T(a.At(i, j))
		}
	}
	return m
}

// Mul returns the matrix product a·b
func Mul[T Float](a, b Matrix[T]) Matrix[T] {
	if a.cols != b.rows {
		panic(ErrShape)
	}
	if a.IsEmpty() || b.IsEmpty() {
		return NewMatrix[T](a.rows, b.cols, nil)
	}
	var c mat.Dense
	c.Mul(a.Dense(), b.Dense())
	return FromDense[T](&c)
}

// Sub returns a-b
func Sub[T Float](a, b Matrix[T]) Matrix[T] {
	if a.rows != b.rows || a.cols != b.cols {
		panic(ErrShape)
	}
	out := NewMatrix[T](a.rows, a.cols, nil)
	for i := range a.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return out
}

// Format writes the matrix in a squeezed, human readable layout
func (m Matrix[T]) Format(w io.Writer) error {
	if m.IsEmpty() {
		_, err := fmt.Fprintf(w, "[](%dx%d)\n", m.rows, m.cols)
		return err
	}
	_, err := fmt.Fprintf(w, "%v\n", mat.Formatted(m.Dense(), mat.Squeeze()))
	return err
}
