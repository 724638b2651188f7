package models

import "math"

// Vec3 is a 3-component vector, used for light directions
type Vec3 [3]float64

// Norm returns the Euclidean length of the vector
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Scale returns the vector multiplied by s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Observation represents a single captured image together with the
// calibrated light that illuminated the scene when it was taken
type Observation struct {
	// Image is the path of the image file
	Image string

	// LightDirection is the direction towards the light source.
	// It is expected to be unit length; it is never renormalized.
	LightDirection Vec3

	// LightIntensity scales the light direction
	LightIntensity float64
}

// Light returns the column of the light source matrix for this observation
func (o Observation) Light() Vec3 {
	return o.LightDirection.Scale(o.LightIntensity)
}
