package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
)

// Plane returns a square patch of side 2*halfSize centred on center, lying
// in the z = center.Z plane with its outward normal along +z. divisions is
// the number of cells per side and is clamped to at least 1.
func Plane(center geom.Point3, halfSize float64, divisions int) *Mesh {
	if divisions < 1 {
		divisions = 1
	}
	step := 2 * halfSize / float64(divisions)
	at := func(i, j int) geom.Point3 {
		return r3.Vec{
			X: center.X - halfSize + float64(i)*step,
			Y: center.Y - halfSize + float64(j)*step,
			Z: center.Z,
		}
	}
	tris := make([]Triangle, 0, 2*divisions*divisions)
	for i := 0; i < divisions; i++ {
		for j := 0; j < divisions; j++ {
			tris = append(tris,
				Triangle{A: at(i, j), B: at(i+1, j), C: at(i+1, j+1)},
				Triangle{A: at(i, j), B: at(i+1, j+1), C: at(i, j+1)},
			)
		}
	}
	return New(tris)
}

// Sphere returns a UV sphere with outward-facing triangles. Used as a
// stand-in head surface by the CLI and tests.
func Sphere(center geom.Point3, radius float64, rings, segments int) *Mesh {
	if rings < 2 {
		rings = 2
	}
	if segments < 3 {
		segments = 3
	}
	at := func(i, j int) geom.Point3 {
		theta := math.Pi * float64(i) / float64(rings)
		phi := 2 * math.Pi * float64(j%segments) / float64(segments)
		st, ct := math.Sincos(theta)
		sp, cp := math.Sincos(phi)
		return r3.Add(center, r3.Vec{X: radius * st * cp, Y: radius * st * sp, Z: radius * ct})
	}
	minArea := 1e-9 * radius * radius
	var tris []Triangle
	for i := 0; i < rings; i++ {
		for j := 0; j < segments; j++ {
			for _, t := range []Triangle{
				{A: at(i, j), B: at(i+1, j), C: at(i+1, j+1)},
				{A: at(i, j), B: at(i+1, j+1), C: at(i, j+1)},
			} {
				// Pole rows collapse one triangle of each quad.
				if r3.Norm(r3.Cross(r3.Sub(t.B, t.A), r3.Sub(t.C, t.A))) > minArea {
					tris = append(tris, t)
				}
			}
		}
	}
	return New(tris)
}
