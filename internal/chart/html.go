package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTML writes interactive go-echarts documents.
type HTML struct{}

func (HTML) Ext() string { return ".html" }

type renderer interface {
	Render(w io.Writer) error
}

func (HTML) Export(f *Figure, path string) error {
	title := charts.WithTitleOpts(opts.Title{Title: f.Title})
	page := charts.WithInitializationOpts(opts.Initialization{PageTitle: f.Title})
	xAxis := charts.WithXAxisOpts(opts.XAxis{Name: f.XLabel})
	yAxis := charts.WithYAxisOpts(opts.YAxis{Name: f.YLabel})

	var chart renderer
	switch f.Kind {
	case KindHistogram:
		bins := Bin(f.Values, f.Bins)
		labels := make([]string, len(bins))
		data := make([]opts.BarData, len(bins))
		for i, b := range bins {
			labels[i] = strconv.FormatFloat(b.Lo, 'g', 4, 64) + " to " + strconv.FormatFloat(b.Hi, 'g', 4, 64)
			data[i] = opts.BarData{Value: b.Count}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(page, title, xAxis, yAxis)
		bar.SetXAxis(labels).AddSeries("count", data)
		chart = bar
	case KindBar:
		data := make([]opts.BarData, len(f.Counts))
		for i, c := range f.Counts {
			data[i] = opts.BarData{Value: c}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(page, title, xAxis, yAxis)
		bar.SetXAxis(f.Labels).AddSeries("count", data)
		chart = bar
	case KindScatter:
		sc := charts.NewScatter()
		sc.SetGlobalOptions(page, title,
			charts.WithXAxisOpts(opts.XAxis{Name: f.XLabel, Type: "value"}),
			charts.WithYAxisOpts(opts.YAxis{Name: f.YLabel, Type: "value"}),
		)
		for _, s := range f.Series {
			data := make([]opts.ScatterData, len(s.X))
			for j := range s.X {
				data[j] = opts.ScatterData{Value: []interface{}{s.X[j], s.Y[j]}}
			}
			sc.AddSeries(s.Name, data)
		}
		chart = sc
	default:
		return fmt.Errorf("unknown chart kind %q", f.Kind)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chart.Render(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// HistBin is one histogram bucket covering [Lo, Hi); the last bucket also
// includes Hi.
type HistBin struct {
	Lo, Hi float64
	Count  int
}

// Bin splits values into n equal-width buckets between their min and max.
// Non-finite values are skipped.
func Bin(values []float64, n int) []HistBin {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			kept = append(kept, v)
		}
	}
	values = kept
	if len(values) == 0 {
		return nil
	}
	if n <= 0 {
		n = DefaultBins
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if hi == lo {
		return []HistBin{{Lo: lo, Hi: hi, Count: len(values)}}
	}
	width := (hi - lo) / float64(n)
	bins := make([]HistBin, n)
	for i := range bins {
		bins[i].Lo = lo + float64(i)*width
		bins[i].Hi = lo + float64(i+1)*width
	}
	bins[n-1].Hi = hi
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		bins[i].Count++
	}
	return bins
}
