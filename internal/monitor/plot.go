package monitor

import (
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/markerpose/internal/markers"
)

// SavePosePlot writes a top-down plot of poses to path. Poses of the same
// marker are joined in the order given. The image format follows the file
// extension (.png, .svg, .pdf).
func SavePosePlot(path, title string, poses []markers.Marker) error {
	if len(poses) == 0 {
		return fmt.Errorf("no poses to plot")
	}

	byID := make(map[int]plotter.XYs)
	for _, m := range poses {
		byID[m.ID] = append(byID[m.ID], plotter.XY{X: m.Position.X, Y: m.Position.Y})
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	for i, id := range ids {
		pts := byID[id]
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("marker %d scatter: %w", id, err)
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("marker %d", id), scatter)

		if len(pts) > 1 {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("marker %d trace: %w", id, err)
			}
			line.Color = plotutil.Color(i)
			line.Width = vg.Points(0.5)
			p.Add(line)
		}
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
