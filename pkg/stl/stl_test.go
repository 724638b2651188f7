package stl

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestGenerateTrianglesFlat verifies triangle count and normals on a flat map
func TestGenerateTrianglesFlat(t *testing.T) {
	width, height := 4, 3
	z := make([]float64, width*height)

	mesher := NewHeightMesher(z, nil, width, height)
	triangles := mesher.GenerateTriangles()

	want := 2 * (width - 1) * (height - 1)
	if len(triangles) != want {
		t.Fatalf("Expected %d triangles, got %d", want, len(triangles))
	}
	for i, tri := range triangles {
		if tri.Normal != [3]float32{0, 0, 1} {
			t.Errorf("Triangle %d: expected normal (0,0,1), got %v", i, tri.Normal)
		}
	}
}

// TestGenerateTrianglesMask verifies blocks touching an unselected pixel are skipped
func TestGenerateTrianglesMask(t *testing.T) {
	width, height := 3, 3
	z := make([]float64, width*height)
	mask := []bool{
		true, true, true,
		true, true, true,
		true, true, false,
	}

	triangles := NewHeightMesher(z, mask, width, height).GenerateTriangles()

	// 4 blocks, the bottom right one touches the unselected corner
	if len(triangles) != 6 {
		t.Errorf("Expected 6 triangles, got %d", len(triangles))
	}
}

// TestSetScale verifies that the scaling functionality works
func TestSetScale(t *testing.T) {
	z := []float64{
		0, 0,
		0, 2,
	}
	mesher := NewHeightMesher(z, nil, 2, 2)
	mesher.SetScale(2.5, 1.5, 3.0)
	triangles := mesher.GenerateTriangles()

	if len(triangles) != 2 {
		t.Fatalf("Expected 2 triangles, got %d", len(triangles))
	}
	// second triangle is (1,0) (1,1) (0,1)
	v := triangles[1].Vertex2
	if v != [3]float32{2.5, 1.5, 6.0} {
		t.Errorf("Expected scaled vertex (2.5, 1.5, 6), got %v", v)
	}

	n := triangles[1].Normal
	length := math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
	if math.Abs(length-1) > 1e-5 {
		t.Errorf("Expected unit normal, got length %f", length)
	}
	if n[2] <= 0 {
		t.Errorf("Expected upward facing normal, got %v", n)
	}
}

// TestSaveToSTL verifies that the STL file can be written
func TestSaveToSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{1, 0, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{1, 0, 0},
			Vertex2: [3]float32{1, 1, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
	}

	filename := filepath.Join(t.TempDir(), "test.stl")
	if err := SaveToSTL(filename, triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	// STL header: 80 bytes, count: 4 bytes, 50 bytes per triangle
	if want := 80 + 4 + 50*len(triangles); len(data) != want {
		t.Errorf("Expected %d bytes, got %d", want, len(data))
	}
	if count := binary.LittleEndian.Uint32(data[80:84]); count != uint32(len(triangles)) {
		t.Errorf("Expected triangle count %d, got %d", len(triangles), count)
	}
	// x of the second vertex of the first triangle
	x := math.Float32frombits(binary.LittleEndian.Uint32(data[84+24 : 84+28]))
	if x != 1 {
		t.Errorf("Expected vertex x 1, got %f", x)
	}
}

// BenchmarkGenerateTriangles benchmarks meshing of a 256x256 height map
func BenchmarkGenerateTriangles(b *testing.B) {
	width, height := 256, 256
	z := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			z[y*width+x] = math.Sin(float64(x)/10) * math.Cos(float64(y)/10)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewHeightMesher(z, nil, width, height).GenerateTriangles()
	}
}
