package monitoring

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/security"
)

// PathPlotter writes a top-down PNG of each completed path into a directory.
type PathPlotter struct {
	outputDir string
}

// NewPathPlotter creates a plotter writing into outputDir.
func NewPathPlotter(outputDir string) *PathPlotter {
	return &PathPlotter{outputDir: outputDir}
}

// Save renders the waypoints of one run to <outputDir>/<name>.png and returns
// the written path. name is sanitized first. An empty path produces no file.
func (pp *PathPlotter) Save(name, frameID string, poses []geom.Pose) (string, error) {
	if len(poses) == 0 {
		return "", nil
	}
	out, err := security.Join(pp.outputDir, name+".png")
	if err != nil {
		return "", fmt.Errorf("plot path: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Path %s (%d waypoints)", name, len(poses))
	p.X.Label.Text = fmt.Sprintf("X [%s] (m)", frameID)
	p.Y.Label.Text = fmt.Sprintf("Y [%s] (m)", frameID)

	pts := make(plotter.XYs, len(poses))
	for i, pose := range poses {
		pts[i] = plotter.XY{X: pose.Position.X, Y: pose.Position.Y}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("path line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return "", fmt.Errorf("path points: %w", err)
	}
	scatter.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}

	p.Add(plotter.NewGrid(), line, scatter)
	p.Legend.Add("route", line)
	p.Legend.Add("waypoint", scatter)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, out); err != nil {
		return "", fmt.Errorf("save path plot: %w", err)
	}
	return out, nil
}

// RenderPathChart writes an HTML scatter of the pose array, one point per
// waypoint labelled with its index and heading.
func RenderPathChart(w io.Writer, arr geom.PoseArray) error {
	data := make([]opts.ScatterData, 0, len(arr.Poses))
	for i, pose := range arr.Poses {
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("#%d yaw=%.2f", i, pose.Orientation.Yaw()),
			Value: []interface{}{pose.Position.X, pose.Position.Y},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Waypoints", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recorded waypoints", Subtitle: fmt.Sprintf("frame=%s count=%d", arr.FrameID, len(arr.Poses))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("waypoints", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
