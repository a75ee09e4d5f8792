package dataset

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// NumericStats describes one numeric column.
type NumericStats struct {
	Min  float64
	Max  float64
	Mean float64
	Std  float64
}

// CategoryStats counts one category value and how many of those rows churned.
type CategoryStats struct {
	Value   string
	Count   int
	Churned int
}

// Rate returns the churn rate inside the category.
func (c CategoryStats) Rate() float64 {
	if c.Count == 0 {
		return 0
	}
	return float64(c.Churned) / float64(c.Count)
}

// Summary holds display statistics derived from the training table, so the
// original rows are not needed after construction.
type Summary struct {
	Rows        int
	ChurnRate   float64
	Numeric     map[string]NumericStats
	Categorical map[string][]CategoryStats // sorted by value
}

// Summarize computes per-column statistics for schema columns. labels may be
// nil, in which case churn counts stay zero.
func Summarize(t *Table, schema Schema, labels []bool) (Summary, error) {
	if labels != nil && len(labels) != t.Len() {
		return Summary{}, errors.NewValidationError("labels", "row count mismatch with data", len(labels))
	}
	if missing := t.Missing(schema.Names()); len(missing) > 0 {
		return Summary{}, errors.NewSchemaError("Summarize", missing...)
	}

	s := Summary{
		Rows:        t.Len(),
		Numeric:     make(map[string]NumericStats),
		Categorical: make(map[string][]CategoryStats),
	}
	churned := 0
	for _, l := range labels {
		if l {
			churned++
		}
	}
	if t.Len() > 0 && labels != nil {
		s.ChurnRate = float64(churned) / float64(t.Len())
	}

	for _, col := range schema {
		switch col.Kind {
		case Numeric:
			xs := make([]float64, 0, t.Len())
			for i, r := range t.Rows {
				v, ok := ParseNumeric(r[col.Name])
				if !ok {
					return Summary{}, errors.NewValueError("Summarize",
						"column '"+col.Name+"' row "+strconv.Itoa(i)+": "+strconv.Quote(r[col.Name])+" is not a finite number")
				}
				xs = append(xs, v)
			}
			s.Numeric[col.Name] = numericStats(xs)
		case Categorical:
			counts := make(map[string]*CategoryStats)
			for i, r := range t.Rows {
				v := r[col.Name]
				c, ok := counts[v]
				if !ok {
					c = &CategoryStats{Value: v}
					counts[v] = c
				}
				c.Count++
				if labels != nil && labels[i] {
					c.Churned++
				}
			}
			list := make([]CategoryStats, 0, len(counts))
			for _, c := range counts {
				list = append(list, *c)
			}
			sort.Slice(list, func(i, j int) bool { return list[i].Value < list[j].Value })
			s.Categorical[col.Name] = list
		}
	}
	return s, nil
}

func numericStats(xs []float64) NumericStats {
	if len(xs) == 0 {
		return NumericStats{}
	}
	ns := NumericStats{Min: xs[0], Max: xs[0]}
	for _, x := range xs {
		ns.Min = math.Min(ns.Min, x)
		ns.Max = math.Max(ns.Max, x)
	}
	ns.Mean, ns.Std = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		ns.Std = 0
	}
	return ns
}
