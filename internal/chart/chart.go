// Package chart renders evaluation charts to PNG with gonum/plot.
package chart

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Artifact names under which charts are logged.
const (
	FeatureImportanceName = "chart_feat_importance.png"
	CorrelationName       = "chart_var_correlation.png"
)

const (
	width  = 8 * vg.Inch
	height = 6 * vg.Inch
)

var (
	barColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineColor = color.RGBA{B: 255, A: 255}
)

// Point is one plotted (x, y) pair.
type Point struct {
	X, Y float64
}

// Chart is a rendered figure plus the data drawn on it.
type Chart struct {
	Name   string
	Title  string
	Labels []string  // bar labels, bottom to top
	Values []float64 // bar lengths, aligned with Labels
	Points []Point   // line/scatter points in draw order
	PNG    []byte
}

// WriteFile saves the PNG into dir under the chart's name and returns the path.
func (c *Chart) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create chart dir: %w", err)
	}
	path := filepath.Join(dir, c.Name)
	if err := os.WriteFile(path, c.PNG, 0o644); err != nil {
		return "", fmt.Errorf("write chart %s: %w", c.Name, err)
	}
	return path, nil
}

// FeatureImportance draws one horizontal bar per feature, sorted ascending by
// score so the most important feature is at the top.
func FeatureImportance(features []string, scores []float64) (*Chart, error) {
	if len(features) == 0 || len(features) != len(scores) {
		return nil, errors.New("feature importance chart: need one score per feature")
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(scores[a], scores[b]) })

	c := &Chart{
		Name:   FeatureImportanceName,
		Title:  "Feature importance",
		Labels: make([]string, len(order)),
		Values: make([]float64, len(order)),
	}
	for i, idx := range order {
		c.Labels[i] = features[idx]
		c.Values[i] = scores[idx]
	}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = "Feature importance (gain)"

	bars, err := plotter.NewBarChart(plotter.Values(c.Values), vg.Points(12))
	if err != nil {
		return nil, fmt.Errorf("feature importance bars: %w", err)
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalY(c.Labels...)

	c.PNG, err = render(p)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Correlation plots ys against xs as points joined in ascending x order.
// Pairs with a NaN coordinate are left out.
func Correlation(xs, ys []float64, xLabel, yLabel string) (*Chart, error) {
	if len(xs) != len(ys) {
		return nil, errors.New("correlation chart: xs and ys differ in length")
	}

	c := &Chart{Name: CorrelationName, Title: "Correlation"}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		c.Points = append(c.Points, Point{X: xs[i], Y: ys[i]})
	}
	if len(c.Points) == 0 {
		return nil, errors.New("correlation chart: no finite points")
	}
	slices.SortStableFunc(c.Points, func(a, b Point) int { return cmp.Compare(a.X, b.X) })

	xys := make(plotter.XYs, len(c.Points))
	for i, pt := range c.Points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("correlation line: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(1)

	points, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("correlation points: %w", err)
	}
	points.GlyphStyle.Color = lineColor
	points.GlyphStyle.Radius = vg.Points(2)

	p.Add(plotter.NewGrid(), line, points)

	c.PNG, err = render(p)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func render(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
