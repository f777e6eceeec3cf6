package monitoring

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/tmsnav/internal/plan"
)

var (
	baseColor     = color.RGBA{R: 0, G: 200, B: 200, A: 255}
	waypointColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	currentColor  = color.RGBA{R: 220, G: 0, B: 0, A: 255}
)

// GridLayout returns each waypoint's position in the base waypoint's frame,
// in mm. Z is the height off the base plane after re-projection.
func GridLayout(g *plan.GridPlan) (plotter.XYs, []float64, error) {
	if g == nil || g.Len() == 0 {
		return nil, nil, errors.New("empty grid plan")
	}
	inv := g.Waypoints[0].Inverse()
	xys := make(plotter.XYs, g.Len())
	heights := make([]float64, g.Len())
	for i, w := range g.Waypoints {
		local := inv.Apply(w.Origin)
		xys[i] = plotter.XY{X: local.X, Y: local.Y}
		heights[i] = local.Z
	}
	return xys, heights, nil
}

// PlotGridPlan writes a PNG of the grid waypoints laid out in the base
// waypoint's XY plane, numbered in visiting order. The base is cyan and the
// current waypoint red.
func PlotGridPlan(g *plan.GridPlan, path string) error {
	xys, heights, err := GridLayout(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Grid plan %s (%d waypoints, %.2f mm)", g.ID, g.Len(), g.Spacing)
	p.X.Label.Text = "x (mm)"
	p.Y.Label.Text = "y (mm)"
	p.Add(plotter.NewGrid())

	route, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("grid path: %w", err)
	}
	route.Width = vg.Points(1)
	route.Color = color.Gray{Y: 160}
	p.Add(route)

	points, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("grid points: %w", err)
	}
	points.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		s := points.GlyphStyle
		s.Radius = vg.Points(4)
		switch i {
		case g.Current:
			s.Color = currentColor
		case 0:
			s.Color = baseColor
		default:
			s.Color = waypointColor
		}
		return s
	}
	p.Add(points)
	p.Legend.Add("waypoints", points)

	labels := make([]string, len(xys))
	for i := range labels {
		labels[i] = fmt.Sprintf("%d (%+.1f)", i, heights[i])
	}
	text, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("grid labels: %w", err)
	}
	text.Offset = vg.Point{X: vg.Points(6), Y: vg.Points(4)}
	p.Add(text)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save grid plot: %w", err)
	}
	Logf("Saved grid plot: %s", path)
	return nil
}
