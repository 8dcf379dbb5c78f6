package sim

import (
	"image/color"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePath renders the travelled path and the waypoints to file. The image format follows
// the file extension.
func SavePath(file string, path, waypoints []r2.Point) error {
	p := plot.New()
	p.Title.Text = "LOS guidance"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	if len(path) > 0 {
		line, err := plotter.NewLine(toXYs(path))
		if err != nil {
			return errors.Wrap(err, "cannot plot path")
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{B: 200, A: 255}
		p.Add(line)
		p.Legend.Add("path", line)
	}
	if len(waypoints) > 0 {
		scatter, err := plotter.NewScatter(toXYs(waypoints))
		if err != nil {
			return errors.Wrap(err, "cannot plot waypoints")
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
		p.Add(scatter)
		p.Legend.Add("waypoints", scatter)
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, file)
}

func toXYs(points []r2.Point) plotter.XYs {
	xys := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		xys = append(xys, plotter.XY{X: pt.X, Y: pt.Y})
	}
	return xys
}
