// Package report renders explanation and exploratory charts with gonum/plot.
// The output format follows the file extension (png, svg, pdf, ...).
package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

var (
	churnColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	retainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

const barWidth = 12

// ExplanationChart draws contribs as horizontal bars, strongest on top.
// Bars pushing towards churn are red, the others blue.
func ExplanationChart(contribs []model.Contribution, title, path string) error {
	if len(contribs) == 0 {
		return errors.NewValueError("ExplanationChart", "no contributions to draw")
	}
	n := len(contribs)
	pos := make(plotter.Values, n)
	neg := make(plotter.Values, n)
	labels := make([]string, n)
	for i, c := range contribs {
		// plot rows grow upwards
		row := n - 1 - i
		labels[row] = c.Feature
		if c.Weight >= 0 {
			pos[row] = c.Weight
		} else {
			neg[row] = c.Weight
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "contribution to churn probability"

	for _, series := range []struct {
		values plotter.Values
		color  color.Color
	}{
		{pos, churnColor},
		{neg, retainColor},
	} {
		bars, err := plotter.NewBarChart(series.values, vg.Points(barWidth))
		if err != nil {
			return errors.Wrap(err, "build bar chart")
		}
		bars.Horizontal = true
		bars.Color = series.color
		bars.LineStyle.Width = 0
		p.Add(bars)
	}
	p.Add(plotter.NewGrid())
	p.NominalY(labels...)

	height := vg.Length(n)*vg.Points(barWidth*2) + 1.5*vg.Inch
	return save(p, 6*vg.Inch, height, path)
}

// ChurnRateChart draws the churn rate of every category of column.
func ChurnRateChart(t *dataset.Table, labels []bool, column, path string) error {
	if t == nil || t.Len() == 0 {
		return errors.NewValueError("ChurnRateChart", "empty table")
	}
	if labels == nil {
		return errors.NewValidationError("labels", "must not be nil", nil)
	}
	s, err := dataset.Summarize(t, dataset.Schema{{Name: column, Kind: dataset.Categorical}}, labels)
	if err != nil {
		return err
	}
	cats := s.Categorical[column]

	rates := make(plotter.Values, len(cats))
	names := make([]string, len(cats))
	for i, c := range cats {
		rates[i] = c.Rate()
		names[i] = fmt.Sprintf("%s (n=%d)", c.Value, c.Count)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Churn rate by %s (overall %.1f%%)", column, 100*s.ChurnRate)
	p.Y.Label.Text = "churn rate"
	p.Y.Min = 0
	p.Y.Max = 1

	bars, err := plotter.NewBarChart(rates, vg.Points(30))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = churnColor
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)

	width := vg.Length(len(cats))*vg.Points(90) + 2*vg.Inch
	return save(p, width, 4*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	err := errors.SafeExecute("report.save", func() error {
		return p.Save(w, h, path)
	})
	if err != nil {
		return errors.Wrapf(err, "save chart %s", path)
	}
	log.GetLoggerWithName("report").Debug("Chart written", "path", path)
	return nil
}
