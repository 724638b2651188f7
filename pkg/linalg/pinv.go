package linalg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned or panicked with on dimension mismatches
	ErrShape = errors.New("linalg: dimension mismatch")

	// ErrSingular is returned when the normal equations cannot be inverted
	ErrSingular = errors.New("linalg: matrix is singular")

	// ErrFactorization is returned when the SVD does not converge
	ErrFactorization = errors.New("linalg: factorization failed")
)

// Mode selects the pseudoinverse algorithm
type Mode int

const (
	// ModeFullSVD computes the pseudoinverse from full orthogonal factors
	ModeFullSVD Mode = iota
	// ModeNormalEquations inverts the smaller Gram matrix
	ModeNormalEquations
	// ModeThinSVD computes the pseudoinverse from economy-size factors
	ModeThinSVD
)

// String returns the name of the mode
func (m Mode) String() string {
	switch m {
	case ModeFullSVD:
		return "full-svd"
	case ModeNormalEquations:
		return "normal-equations"
	case ModeThinSVD:
		return "thin-svd"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m names one of the three algorithms
func (m Mode) Valid() bool {
	return m >= ModeFullSVD && m <= ModeThinSVD
}

// ParseMode accepts either the numeric index or the mode name
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		m := Mode(n)
		if !m.Valid() {
			return m, fmt.Errorf("unknown pseudoinverse mode %d", n)
		}
		return m, nil
	}
	for _, m := range []Mode{ModeFullSVD, ModeNormalEquations, ModeThinSVD} {
		if m.String() == s {
			return m, nil
		}
	}
	return ModeFullSVD, fmt.Errorf("unknown pseudoinverse mode %q", s)
}

// Options tunes the pseudoinverse computation
type Options struct {
	// Tolerance is the singular value at or below which a value is treated
	// as zero. Zero selects the float64 default, SVDTolerance[float64]().
	Tolerance float64
}

func (o *Options) tolerance() float64 {
	if o == nil || o.Tolerance <= 0 {
		return SVDTolerance[float64]()
	}
	return o.Tolerance
}

// Pseudoinverse computes the Moore-Penrose pseudoinverse of a (m×n), returning
// an n×m matrix. Unknown modes fall back to ModeFullSVD.
func Pseudoinverse(a mat.Matrix, mode Mode, opts *Options) (*mat.Dense, error) {
	r, c := a.Dims()
	if r == 0 || c == 0 {
		return nil, ErrShape
	}
	switch mode {
	case ModeNormalEquations:
		return pinvNormalEquations(a)
	case ModeThinSVD:
		return pinvSVD(a, mat.SVDThin, opts.tolerance())
	default:
		return pinvSVD(a, mat.SVDFull, opts.tolerance())
	}
}

// PinvOf computes the pseudoinverse of a Matrix of T
func PinvOf[T Float](a Matrix[T], mode Mode, opts *Options) (Matrix[T], error) {
	if opts == nil {
		opts = &Options{Tolerance: SVDTolerance[T]()}
	}
	inv, err := Pseudoinverse(a.Dense(), mode, opts)
	if err != nil {
		return Matrix[T]{}, err
	}
	return FromDense[T](inv), nil
}

// pinvNormalEquations uses A⁻¹ for square input, otherwise (AᵀA)⁻¹Aᵀ when
// m > n and Aᵀ(AAᵀ)⁻¹ when m < n.
func pinvNormalEquations(a mat.Matrix) (*mat.Dense, error) {
	m, n := a.Dims()

	if m == n {
		var inv mat.Dense
		if err := inv.Inverse(a); err != nil {
			if isExactlySingular(err) {
				return nil, fmt.Errorf("%w: %v", ErrSingular, err)
			}
		}
		return &inv, nil
	}

	var gram mat.Dense
	if m > n {
		gram.Mul(a.T(), a)
	} else {
		gram.Mul(a, a.T())
	}

	gramInv, err := invertQR(&gram)
	if err != nil {
		return nil, err
	}

	var out mat.Dense
	if m > n {
		out.Mul(gramInv, a.T())
	} else {
		out.Mul(a.T(), gramInv)
	}
	return &out, nil
}

// invertQR inverts a square matrix by solving G·X = I with a QR factorization
func invertQR(g *mat.Dense) (*mat.Dense, error) {
	k, _ := g.Dims()
	eye := mat.NewDiagDense(k, nil)
	for i := 0; i < k; i++ {
		eye.SetDiag(i, 1)
	}

	var qr mat.QR
	qr.Factorize(g)

	var inv mat.Dense
	if err := qr.SolveTo(&inv, false, eye); err != nil {
		if isExactlySingular(err) {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	return &inv, nil
}

// isExactlySingular distinguishes a singular matrix from a merely
// ill-conditioned one; gonum reports both as mat.Condition.
func isExactlySingular(err error) bool {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return math.IsInf(float64(cond), 1)
	}
	return true
}

// pinvSVD assembles V·Σ⁺·Uᵀ, zeroing singular values at or below tol
func pinvSVD(a mat.Matrix, kind mat.SVDKind, tol float64) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, kind); !ok {
		return nil, ErrFactorization
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	_, uc := u.Dims()
	_, vc := v.Dims()

	// Σ⁺ is vc×uc: n×m for full factors, k×k for thin ones
	sigmaInv := mat.NewDense(vc, uc, nil)
	for i, s := range values {
		if s > tol {
			sigmaInv.Set(i, i, 1/s)
		}
	}

	var vs, out mat.Dense
	vs.Mul(&v, sigmaInv)
	out.Mul(&vs, u.T())
	return &out, nil
}
