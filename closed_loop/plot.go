package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const rad2deg = 180 / math.Pi

// writePlot renders the run as a PNG with an attitude panel over a
// speed/altitude panel. Mode is drawn as a step trace on the attitude panel.
func writePlot(path, title string, trace []tracePoint) error {
	if len(trace) == 0 {
		return fmt.Errorf("no samples to plot")
	}
	if ext := filepath.Ext(path); ext != ".png" {
		return fmt.Errorf("plot must be a .png file, got %q", ext)
	}

	series := func(f func(tracePoint) float64) plotter.XYs {
		pts := make(plotter.XYs, len(trace))
		for i, p := range trace {
			pts[i] = plotter.XY{X: p.t, Y: f(p)}
		}
		return pts
	}

	att := plot.New()
	att.Title.Text = title
	att.Y.Label.Text = "deg"
	att.Legend.Top = true
	if err := plotutil.AddLines(att,
		"pitch sp", series(func(p tracePoint) float64 { return p.pitchSp * rad2deg }),
		"pitch", series(func(p tracePoint) float64 { return p.pitch * rad2deg }),
		"mode x30", series(func(p tracePoint) float64 { return 30 * float64(p.mode) }),
	); err != nil {
		return err
	}

	motion := plot.New()
	motion.X.Label.Text = "t (s)"
	motion.Legend.Top = true
	if err := plotutil.AddLines(motion,
		"airspeed (m/s)", series(func(p tracePoint) float64 { return p.airspeed }),
		"altitude (m)", series(func(p tracePoint) float64 { return p.altitude }),
		"thrust x10", series(func(p tracePoint) float64 { return 10 * p.thrust }),
	); err != nil {
		return err
	}

	const rows, cols = 2, 1
	plots := [][]*plot.Plot{{att}, {motion}}
	img := vgimg.New(12*vg.Inch, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadX: vg.Millimeter,
		PadY: 2 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
