// Package dataset holds the in-memory table, the closed column schema and the
// ingestion/cleaning helpers that run before encoding.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// Kind is the role of a column in the feature set.
type Kind int

const (
	// Categorical columns hold labels from a finite, unordered set.
	Categorical Kind = iota
	// Numeric columns are passed through to the model unchanged.
	Numeric
)

// String returns the lower-case kind name used in config files.
func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Numeric:
		return "numeric"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps "categorical" / "numeric" (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "categorical", "category", "cat":
		return Categorical, nil
	case "numeric", "number", "num":
		return Numeric, nil
	}
	return 0, errors.NewConfigurationError("kind", fmt.Sprintf("unknown column kind %q", s))
}

// Column is one entry of a Schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered feature column list. Its order is the column order
// of every coded matrix.
type Schema []Column

// Validate reports a ConfigurationError for an empty schema, an empty
// column name or a duplicated column name.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return errors.NewConfigurationError("schema", "no columns")
	}
	seen := make(map[string]struct{}, len(s))
	for i, c := range s {
		if strings.TrimSpace(c.Name) == "" {
			return errors.NewConfigurationError("schema", fmt.Sprintf("column %d has an empty name", i))
		}
		if c.Kind != Categorical && c.Kind != Numeric {
			return errors.NewConfigurationError("schema", fmt.Sprintf("column '%s' has unknown kind %d", c.Name, int(c.Kind)))
		}
		if _, dup := seen[c.Name]; dup {
			return errors.NewConfigurationError("schema", fmt.Sprintf("duplicate column '%s'", c.Name))
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Categorical returns the names of the categorical columns in schema order.
func (s Schema) Categorical() []string {
	var names []string
	for _, c := range s {
		if c.Kind == Categorical {
			names = append(names, c.Name)
		}
	}
	return names
}

// Clone returns a copy that does not share the backing array.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// ParseNumeric parses a numeric cell. Surrounding spaces are ignored; NaN
// and ±Inf are rejected along with anything strconv cannot parse.
func ParseNumeric(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
