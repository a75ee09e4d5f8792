package dataset

import (
	"math/rand"
	"strings"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// DropIncomplete returns the rows whose every declared column holds a
// non-blank value. Whitespace-only counts as blank, so the label column is
// covered too. The second return value is the number of dropped rows.
func DropIncomplete(t *Table) (*Table, int) {
	kept := make([]Record, 0, len(t.Rows))
	for _, r := range t.Rows {
		complete := true
		for _, c := range t.Columns {
			if strings.TrimSpace(r[c]) == "" {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, r)
		}
	}
	return NewTable(t.Columns, kept), len(t.Rows) - len(kept)
}

// RecodeBinary rewrites a 1/0 column to the given labels in place. Values
// other than "1" and "0" are left untouched. This is caller-side cleaning;
// the encoder itself never rewrites values.
func RecodeBinary(t *Table, column, yes, no string) error {
	if !t.Has(column) {
		return errors.NewSchemaError("RecodeBinary", column)
	}
	for _, r := range t.Rows {
		switch strings.TrimSpace(r[column]) {
		case "1":
			r[column] = yes
		case "0":
			r[column] = no
		}
	}
	return nil
}

// Labels converts a label column to booleans: true where the trimmed value
// equals positive. Blank labels are an error; run DropIncomplete first.
func Labels(t *Table, column, positive string) ([]bool, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, errors.NewValidationError(column, "blank label", i)
		}
		out[i] = v == positive
	}
	return out, nil
}

// TrainTestSplit shuffles row indices with seed and splits the table and
// labels together, so row i of a part still matches label i of that part.
func TrainTestSplit(t *Table, labels []bool, testFraction float64, seed int64) (train, test *Table, trainY, testY []bool, err error) {
	if len(labels) != t.Len() {
		return nil, nil, nil, nil, errors.NewValidationError("labels", "row count mismatch with data", len(labels))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	n := t.Len()
	nTest := int(float64(n)*testFraction + 0.5)
	if nTest == 0 || nTest == n {
		return nil, nil, nil, nil, errors.NewValidationError("test_fraction", "leaves an empty split", testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testIdx, trainIdx := perm[:nTest], perm[nTest:]

	pick := func(idx []int) []bool {
		out := make([]bool, len(idx))
		for i, j := range idx {
			out[i] = labels[j]
		}
		return out
	}
	return t.Subset(trainIdx), t.Subset(testIdx), pick(trainIdx), pick(testIdx), nil
}
