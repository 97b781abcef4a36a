// Package monitor renders finalized marker poses as interactive HTML charts
// and static plot images.
package monitor

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/markerpose/internal/db"
)

// minChartExtent keeps a single pose from collapsing the axes to a point.
const minChartExtent = 0.05

// RenderPoseChart writes a top-down (X/Y) scatter of records to w with one
// series per marker id.
func RenderPoseChart(w io.Writer, records []db.PoseRecord, subtitle string) error {
	byID := make(map[int][]opts.ScatterData)
	extent := minChartExtent
	for _, r := range records {
		p := r.Marker.Position
		byID[r.Marker.ID] = append(byID[r.Marker.ID], opts.ScatterData{
			Value: []interface{}{p.X, p.Y, p.Z, r.Cycle},
		})
		extent = math.Max(extent, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	pad := math.Ceil(extent*110) / 100

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Marker Poses", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Finalized Marker Poses", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		scatter.AddSeries("marker "+strconv.Itoa(id), byID[id], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render pose chart: %w", err)
	}
	return nil
}
