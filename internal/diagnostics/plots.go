package diagnostics

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// GeneratePlots writes one interval plot per producer plus a combined plot
// into dir and returns the number of files written. Producers without
// intervals are skipped.
func (r *PacingRecorder) GeneratePlots(dir string) (int, error) {
	if dir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	summaries := r.Summaries()
	colors := generateColors(len(summaries))

	all := plot.New()
	all.Title.Text = "Reading interval by producer"
	all.X.Label.Text = "Reading"
	all.Y.Label.Text = "Interval (ms)"

	written := 0
	for i, s := range summaries {
		pts := intervalPoints(r.intervalsOf(s.Name))
		if len(pts) == 0 {
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s - reading interval", s.Name)
		p.X.Label.Text = "Reading"
		p.Y.Label.Text = "Interval (ms)"

		line, err := plotter.NewLine(pts)
		if err != nil {
			return written, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("measured", line)

		if s.TargetHz > 0 {
			targetMs := 1000 / s.TargetHz
			target := plotter.NewFunction(func(float64) float64 { return targetMs })
			target.Color = color.Gray{Y: 96}
			target.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(target)
			p.Legend.Add("target", target)
		}
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		file := filepath.Join(dir, fmt.Sprintf("pacing_%s.png", fileSafe(s.Name)))
		if err := p.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s plot: %w", s.Name, err)
		}
		written++

		combined, err := plotter.NewLine(pts)
		if err != nil {
			return written, err
		}
		combined.Color = colors[i]
		combined.Width = vg.Points(1)
		all.Add(combined)
		all.Legend.Add(s.Name, combined)
	}

	if written == 0 {
		return 0, nil
	}
	all.Legend.Top = true
	all.Legend.Left = false
	all.Legend.XOffs = -10
	all.Legend.YOffs = -10
	if err := all.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, "pacing_all.png")); err != nil {
		return written, fmt.Errorf("save combined plot: %w", err)
	}
	return written + 1, nil
}

func intervalPoints(iv []float64) plotter.XYs {
	pts := make(plotter.XYs, len(iv))
	for i, v := range iv {
		pts[i] = plotter.XY{X: float64(i + 1), Y: v * 1000}
	}
	return pts
}

// fileSafe replaces path separators and spaces in producer names.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, name)
}

// generateColors creates a palette of distinct colors for producer lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
