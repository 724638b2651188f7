// Package linalg provides the dense matrix type used by the reconstruction
// pipeline and the Moore-Penrose pseudoinverse engine.
//
// Matrices are generic over the working floating-point type so the pipeline
// can run in single or double precision. Products and factorizations are
// delegated to gonum in float64 and rounded into the working type when stored.
package linalg

import "golang.org/x/exp/constraints"

// Float is the set of working precisions supported by the pipeline
type Float interface {
	constraints.Float
}

// referenceTolerance is the singular value cut-off at single precision
const referenceTolerance = 1e-6

// Epsilon returns the machine epsilon of T: the distance from 1.0 to the
// next representable value
func Epsilon[T Float]() T {
	one := T(1)
	eps := T(1)
	for T(one+eps/2) != one {
		eps /= 2
	}
	return eps
}

// SVDTolerance returns the default singular value threshold for T.
// At float32 this is exactly 1e-6; other precisions scale it by the ratio
// of their epsilon to the float32 epsilon.
func SVDTolerance[T Float]() float64 {
	return referenceTolerance * float64(Epsilon[T]()) / float64(Epsilon[float32]())
}

// PrecisionName returns "float32" or "float64" depending on the size of T
func PrecisionName[T Float]() string {
	if float64(Epsilon[T]()) > float64(Epsilon[float64]()) {
		return "float32"
	}
	return "float64"
}
