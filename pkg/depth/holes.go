package depth

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"photostereo/internal/models"
)

// pixelPoint is a defined pixel position stored in the k-d tree
type pixelPoint struct {
	X, Y  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p pixelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(pixelPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p pixelPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p pixelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(pixelPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// pixelPoints is a collection of pixelPoint that satisfies kdtree.Interface
type pixelPoints []pixelPoint

func (p pixelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p pixelPoints) Len() int                              { return len(p) }
func (p pixelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p pixelPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pixelPlane{pixelPoints: p, Dim: d}, kdtree.MedianOfRandoms(pixelPlane{pixelPoints: p, Dim: d}, 100))
}

// pixelPlane implements sort.Interface and kdtree.SortSlicer for pixelPoints
type pixelPlane struct {
	pixelPoints
	kdtree.Dim
}

func (p pixelPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.pixelPoints[i].X < p.pixelPoints[j].X
	case 1:
		return p.pixelPoints[i].Y < p.pixelPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p pixelPlane) Slice(start, end int) kdtree.SortSlicer {
	return pixelPlane{pixelPoints: p.pixelPoints[start:end], Dim: p.Dim}
}

func (p pixelPlane) Swap(i, j int) {
	p.pixelPoints[i], p.pixelPoints[j] = p.pixelPoints[j], p.pixelPoints[i]
}

// FillHoles returns a copy of f where every masked pixel with an undefined
// normal takes the normalised mean of its k nearest defined neighbours, and
// the number of pixels filled. Pixels outside the mask are left untouched.
func FillHoles(f *NormalField, k int) (*NormalField, int) {
	out := &NormalField{
		Width:   f.Width,
		Height:  f.Height,
		Normals: append([]models.Vec3(nil), f.Normals...),
		Mask:    append([]bool(nil), f.Mask...),
	}
	if k < 1 {
		k = 1
	}

	var points pixelPoints
	var holes []int
	for i := range f.Normals {
		x, y := models.XY(i, f.Width)
		switch {
		case f.Defined(i):
			points = append(points, pixelPoint{X: float64(x), Y: float64(y), Index: i})
		case f.Mask[i]:
			holes = append(holes, i)
		}
	}
	if len(points) == 0 || len(holes) == 0 {
		return out, 0
	}

	tree := kdtree.New(points, true)

	filled := 0
	for _, i := range holes {
		x, y := models.XY(i, f.Width)
		keeper := kdtree.NewNKeeper(k)
		tree.NearestSet(keeper, pixelPoint{X: float64(x), Y: float64(y)})

		var sum models.Vec3
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			n := f.Normals[item.Comparable.(pixelPoint).Index]
			n = n.Scale(1 / n.Norm())
			sum = models.Vec3{sum[0] + n[0], sum[1] + n[1], sum[2] + n[2]}
		}
		if norm := sum.Norm(); norm > 0 {
			out.Normals[i] = sum.Scale(1 / norm)
			filled++
		}
	}
	return out, filled
}
