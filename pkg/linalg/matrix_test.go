package linalg

import (
	"bytes"
	"strings"
	"testing"
)

// TestMatrixMulSub verifies products and differences against hand computed values
func TestMatrixMulSub(t *testing.T) {
	a := NewMatrix[float32](2, 3, []float32{1, 2, 3, 4, 5, 6})
	b := NewMatrix[float32](3, 2, []float32{7, 8, 9, 10, 11, 12})

	c := Mul(a, b)
	want := []float32{58, 64, 139, 154}
	if r, cc := c.Dims(); r != 2 || cc != 2 {
		t.Fatalf("Expected 2x2 product, got %dx%d", r, cc)
	}
	for i, w := range want {
		if got := c.At(i/2, i%2); got != w {
			t.Errorf("Expected product element %d to be %g, got %g", i, w, got)
		}
	}

	d := Sub(c, c)
	for i := 0; i < 2; i++ {
		for _, v := range d.RawRow(i) {
			if v != 0 {
				t.Errorf("Expected zero difference, got %g", v)
			}
		}
	}
}

// TestMatrixRowIsCopy verifies Row does not alias storage while RawRow does
func TestMatrixRowIsCopy(t *testing.T) {
	m := NewMatrix[float64](2, 2, []float64{1, 2, 3, 4})
	row := m.Row(1)
	row[0] = 99
	if m.At(1, 0) != 3 {
		t.Errorf("Row should return a copy")
	}
	m.RawRow(1)[0] = 42
	if m.At(1, 0) != 42 {
		t.Errorf("RawRow should share storage")
	}

	clone := m.Clone()
	clone.Set(0, 0, -1)
	if m.At(0, 0) != 1 {
		t.Errorf("Clone should not share storage")
	}
}

// TestMatrixDenseRoundTrip converts to gonum and back
func TestMatrixDenseRoundTrip(t *testing.T) {
	m := NewMatrix[float32](2, 2, []float32{0.5, -1, 2, 8})
	back := FromDense[float32](m.Dense())
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if back.At(i, j) != m.At(i, j) {
				t.Errorf("Element (%d,%d) changed: %g vs %g", i, j, back.At(i, j), m.At(i, j))
			}
		}
	}

	empty := NewMatrix[float64](0, 3, nil)
	if !empty.IsEmpty() || !empty.Dense().IsEmpty() {
		t.Errorf("Expected empty matrix to convert to empty dense")
	}
}

// TestMatrixShapePanics verifies mismatched data length panics
func TestMatrixShapePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic on data length mismatch")
		}
	}()
	NewMatrix[float64](2, 2, []float64{1, 2, 3})
}

// TestMatrixFormat checks the squeezed output contains every value
func TestMatrixFormat(t *testing.T) {
	var buf bytes.Buffer
	m := NewMatrix[float64](2, 2, []float64{1, 2, 3, 4})
	if err := m.Format(&buf); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"1", "2", "3", "4"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("Formatted output %q is missing %s", buf.String(), s)
		}
	}
}
