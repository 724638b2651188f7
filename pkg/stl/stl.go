// Package stl triangulates height maps and writes binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Triangle is one facet of a mesh
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// HeightMesher turns a masked height map into a triangle surface
type HeightMesher struct {
	z      []float64
	mask   []bool
	width  int
	height int

	xScale, yScale, zScale float32
}

// NewHeightMesher creates a mesher for a row-major width×height height map.
// A nil mask selects every pixel.
func NewHeightMesher(z []float64, mask []bool, width, height int) *HeightMesher {
	return &HeightMesher{
		z:      z,
		mask:   mask,
		width:  width,
		height: height,
		xScale: 1,
		yScale: 1,
		zScale: 1,
	}
}

// SetScale sets the size of one pixel along x and y and the height multiplier
func (m *HeightMesher) SetScale(x, y, z float32) {
	m.xScale, m.yScale, m.zScale = x, y, z
}

func (m *HeightMesher) selected(x, y int) bool {
	return m.mask == nil || m.mask[y*m.width+x]
}

func (m *HeightMesher) vertex(x, y int) [3]float32 {
	return [3]float32{
		float32(x) * m.xScale,
		float32(y) * m.yScale,
		float32(m.z[y*m.width+x]) * m.zScale,
	}
}

// GenerateTriangles emits two triangles for every 2×2 block of pixels whose
// four corners are all selected. Facets are wound so a flat map faces +z.
func (m *HeightMesher) GenerateTriangles() []Triangle {
	var triangles []Triangle
	for y := 0; y+1 < m.height; y++ {
		for x := 0; x+1 < m.width; x++ {
			if !m.selected(x, y) || !m.selected(x+1, y) || !m.selected(x, y+1) || !m.selected(x+1, y+1) {
				continue
			}
			a := m.vertex(x, y)
			b := m.vertex(x+1, y)
			c := m.vertex(x, y+1)
			d := m.vertex(x+1, y+1)
			triangles = append(triangles, newTriangle(a, b, c), newTriangle(b, d, c))
		}
	}
	return triangles
}

// newTriangle computes the unit facet normal (v2-v1)×(v3-v1); degenerate
// facets get a zero normal
func newTriangle(v1, v2, v3 [3]float32) Triangle {
	e1 := [3]float64{float64(v2[0] - v1[0]), float64(v2[1] - v1[1]), float64(v2[2] - v1[2])}
	e2 := [3]float64{float64(v3[0] - v1[0]), float64(v3[1] - v1[1]), float64(v3[2] - v1[2])}
	n := [3]float64{
		e1[1]*e2[2] - e1[2]*e2[1],
		e1[2]*e2[0] - e1[0]*e2[2],
		e1[0]*e2[1] - e1[1]*e2[0],
	}
	t := Triangle{Vertex1: v1, Vertex2: v2, Vertex3: v3}
	if l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]); l > 0 {
		t.Normal = [3]float32{float32(n[0] / l), float32(n[1] / l), float32(n[2] / l)}
	}
	return t
}

// SaveToSTL writes triangles as a binary STL file: an 80 byte header, a
// little-endian triangle count and 50 bytes per triangle
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	var header [80]byte
	copy(header[:], "photostereo height map")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	for _, t := range triangles {
		record := struct {
			Normal, V1, V2, V3 [3]float32
			Attribute          uint16
		}{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3, 0}
		if err := binary.Write(w, binary.LittleEndian, record); err != nil {
			return fmt.Errorf("failed to write triangle: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
