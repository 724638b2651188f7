package models

// PixelIndexSet is the ordered list of pixels selected by a mask.
// Indices are row-major (y*Width + x), unique and strictly increasing.
type PixelIndexSet struct {
	Indices []int
	Width   int
	Height  int
}

// Len returns the number of selected pixels
func (s PixelIndexSet) Len() int { return len(s.Indices) }

// XY recovers the pixel coordinates of a row-major index
func XY(index, width int) (x, y int) {
	return index % width, index / width
}

// Index returns the row-major index of (x, y)
func Index(x, y, width int) int {
	return y*width + x
}
