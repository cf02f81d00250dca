package chart

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PNG draws figures with gonum/plot.
type PNG struct{}

func (PNG) Ext() string { return ".png" }

func (PNG) Export(f *Figure, path string) error {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel

	switch f.Kind {
	case KindHistogram:
		h, err := plotter.NewHist(plotter.Values(f.Values), f.Bins)
		if err != nil {
			return err
		}
		p.Add(h)
	case KindBar:
		bars, err := plotter.NewBarChart(plotter.Values(f.Counts), vg.Points(18))
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(0)
		p.Add(bars)
		p.NominalX(f.Labels...)
	case KindScatter:
		for i, s := range f.Series {
			xys := make(plotter.XYs, len(s.X))
			for j := range s.X {
				xys[j].X, xys[j].Y = s.X[j], s.Y[j]
			}
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return err
			}
			sc.GlyphStyle.Color = plotutil.Color(i)
			sc.GlyphStyle.Shape = plotutil.Shape(i)
			p.Add(sc)
			if len(f.Series) > 1 {
				p.Legend.Add(s.Name, sc)
			}
		}
	default:
		return fmt.Errorf("unknown chart kind %q", f.Kind)
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
