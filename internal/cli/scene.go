package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/mesh"
	"github.com/banshee-data/tmsnav/internal/navsvc"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/registration"
)

// Mesh resolution of the stand-in head.
const (
	sceneRings    = 24
	sceneSegments = 48
)

// SceneOptions describes the stand-in head the offline tools and the
// service plan against: a spherical skin and a concentric cortex.
type SceneOptions struct {
	HeadCenter    string
	HeadRadiusMm  float64
	CortexDepthMm float64
}

func (s *SceneOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.HeadCenter, "head-center", "0,0,0", "head centre in the planning frame (mm, x,y,z)")
	cmd.Flags().Float64Var(&s.HeadRadiusMm, "head-radius", 80, "skin radius (mm)")
	cmd.Flags().Float64Var(&s.CortexDepthMm, "cortex-depth", 15, "cortex depth below the skin (mm)")
}

// Build returns the skin mesh and the cortex surface. The cortex mesh is
// built around its own origin and placed at the head centre.
func (s SceneOptions) Build() (*mesh.Mesh, plan.Surface, error) {
	c, err := navsvc.ParseVector(s.HeadCenter)
	if err != nil {
		return nil, nil, err
	}
	if s.HeadRadiusMm <= 0 {
		return nil, nil, fmt.Errorf("head radius must be positive, got %g", s.HeadRadiusMm)
	}
	brainRadius := s.HeadRadiusMm - s.CortexDepthMm
	if s.CortexDepthMm < 0 || brainRadius <= 0 {
		return nil, nil, fmt.Errorf("cortex depth must be in [0, %g), got %g", s.HeadRadiusMm, s.CortexDepthMm)
	}
	center := geom.Point3{X: c[0], Y: c[1], Z: c[2]}
	skin := mesh.Sphere(center, s.HeadRadiusMm, sceneRings, sceneSegments)
	brain := plan.OffsetSurface{
		Surface: mesh.Sphere(geom.Point3{}, brainRadius, sceneRings, sceneSegments),
		Offset:  geom.Translation(center),
	}
	return skin, brain, nil
}

// landmarkInput reads landmarks from a digitized log or an inline list.
type landmarkInput struct {
	File   string
	Inline string
}

func (l *landmarkInput) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.File, "landmarks-file", "", "digitized landmark log (YAML, metres)")
	cmd.Flags().StringVar(&l.Inline, "landmarks", "", `landmarks in mm: "x,y,z;x,y,z;..."`)
}

func (l landmarkInput) load() ([]geom.Point3, error) {
	switch {
	case l.File != "" && l.Inline != "":
		return nil, fmt.Errorf("use either --landmarks or --landmarks-file")
	case l.File != "":
		return registration.LoadLandmarks(l.File)
	case l.Inline != "":
		return navsvc.ParsePoints(l.Inline)
	}
	return nil, fmt.Errorf("no landmarks given")
}
