// Package report renders simulation runs as PNG time-series plots.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"balance-ng/internal/replay"
)

var (
	colorRef  = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 255}
	colorMeas = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255}
	colorReal = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	colorCom  = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255}
)

// Plotter accumulates samples and writes one plot per horizontal axis plus a
// balance plot.
type Plotter struct {
	outputDir string
	title     string

	zmpRef  [2]plotter.XYs
	zmp     [2]plotter.XYs
	realZmp [2]plotter.XYs
	com     [2]plotter.XYs
	balance [2]plotter.XYs
}

// NewPlotter returns a plotter writing into outputDir, which is created if
// missing.
func NewPlotter(outputDir, title string) *Plotter {
	return &Plotter{outputDir: outputDir, title: title}
}

// Add appends the sample taken at offset at.
func (p *Plotter) Add(at time.Duration, s replay.Sample) {
	t := at.Seconds()
	add := func(dst *[2]plotter.XYs, v r3.Vec) {
		dst[0] = append(dst[0], plotter.XY{X: t, Y: v.X})
		dst[1] = append(dst[1], plotter.XY{X: t, Y: v.Y})
	}
	add(&p.zmpRef, s.ZmpRef)
	add(&p.zmp, s.Zmp)
	add(&p.realZmp, s.RealZmp)
	add(&p.com, s.Com)
	for side := range p.balance {
		p.balance[side] = append(p.balance[side], plotter.XY{X: t, Y: s.Balance[side]})
	}
}

// Save writes the plots and returns the file paths.
func (p *Plotter) Save() ([]string, error) {
	if len(p.com[0]) == 0 {
		return nil, errors.New("no samples")
	}
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, err
	}

	var files []string
	for axis, name := range []string{"x", "y"} {
		pl := newPlot(fmt.Sprintf("%s - %s axis", p.title, name), "Position (m)")
		for _, s := range []struct {
			label string
			pts   plotter.XYs
			c     color.Color
		}{
			{"zmp ref", p.zmpRef[axis], colorRef},
			{"zmp measured", p.zmp[axis], colorMeas},
			{"zmp realized", p.realZmp[axis], colorReal},
			{"com", p.com[axis], colorCom},
		} {
			if err := addLine(pl, s.label, s.pts, s.c); err != nil {
				return nil, err
			}
		}
		file := filepath.Join(p.outputDir, fmt.Sprintf("zmp_%s.png", name))
		if err := pl.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return nil, fmt.Errorf("save %s: %w", file, err)
		}
		files = append(files, file)
	}

	pl := newPlot(p.title+" - balance", "Share")
	if err := addLine(pl, "right", p.balance[0], colorMeas); err != nil {
		return nil, err
	}
	if err := addLine(pl, "left", p.balance[1], colorReal); err != nil {
		return nil, err
	}
	file := filepath.Join(p.outputDir, "balance.png")
	if err := pl.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return nil, fmt.Errorf("save %s: %w", file, err)
	}
	files = append(files, file)

	return files, nil
}

func newPlot(title, ylabel string) *plot.Plot {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Time (s)"
	pl.Y.Label.Text = ylabel
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl
}

func addLine(pl *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", label, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	pl.Add(line)
	pl.Legend.Add(label, line)
	return nil
}
