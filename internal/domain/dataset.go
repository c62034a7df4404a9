package domain

import (
	"errors"
	"fmt"
	"slices"
)

// ErrEmptyDataset is returned when no record survives preparation.
var ErrEmptyDataset = errors.New("empty dataset")

// FeatureRow holds one cloud object's values, aligned with Dataset.Columns.
type FeatureRow []float64

// Part is the contribution of one source file to a dataset.
type Part struct {
	Source string
	Rows   []FeatureRow
}

// Dataset is an ordered table of feature rows. It is read-only once assembled.
type Dataset struct {
	Columns []string
	// Target names the column to predict; empty for raw preparation output.
	Target string
	Rows   []FeatureRow
}

// Assemble concatenates parts in order. An empty result is fatal: there is
// nothing to train on.
func Assemble(dir string, columns []string, target string, parts []Part) (Dataset, error) {
	n := 0
	for _, p := range parts {
		n += len(p.Rows)
	}
	if n == 0 {
		return Dataset{}, fmt.Errorf("no well-formed records found in %s: %w", dir, ErrEmptyDataset)
	}

	rows := make([]FeatureRow, 0, n)
	for _, p := range parts {
		rows = append(rows, p.Rows...)
	}
	return Dataset{
		Columns: slices.Clone(columns),
		Target:  target,
		Rows:    rows,
	}, nil
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Rows) }

// ColumnIndex returns the position of a column, or -1.
func (d Dataset) ColumnIndex(name string) int {
	return slices.Index(d.Columns, name)
}

// Column returns a copy of one column's values.
func (d Dataset) Column(name string) ([]float64, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in dataset", name)
	}
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r[idx]
	}
	return out, nil
}
