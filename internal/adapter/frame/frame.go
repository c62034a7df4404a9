// Package frame persists assembled datasets as CSV through gota dataframes.
package frame

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ToDataFrame converts a dataset into a dataframe with one float column per
// dataset column.
func ToDataFrame(ds domain.Dataset) dataframe.DataFrame {
	cols := make([]series.Series, len(ds.Columns))
	for j, name := range ds.Columns {
		values := make([]float64, ds.Len())
		for i, row := range ds.Rows {
			values[i] = row[j]
		}
		cols[j] = series.New(values, series.Float, name)
	}
	return dataframe.New(cols...)
}

// WriteCSV writes the dataset with a header row. Values are written in
// shortest round-trip form so a reload reproduces them exactly.
func WriteCSV(path string, ds domain.Dataset) error {
	if len(ds.Columns) == 0 {
		return fmt.Errorf("write %s: dataset has no columns", path)
	}
	cols := make([]series.Series, len(ds.Columns))
	for j, name := range ds.Columns {
		values := make([]string, ds.Len())
		for i, row := range ds.Rows {
			values[i] = strconv.FormatFloat(row[j], 'g', -1, 64)
		}
		cols[j] = series.New(values, series.String, name)
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return fmt.Errorf("build dataframe: %w", df.Err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV loads a dataset written by WriteCSV. Every column is read as a
// float; unparseable cells become NaN. The target is set when a
// pocket_ratio column is present.
func ReadCSV(path string) (domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
	)
	if df.Err != nil {
		return domain.Dataset{}, fmt.Errorf("read %s: %w", path, df.Err)
	}
	return FromDataFrame(df), nil
}

// FromDataFrame converts a dataframe into a dataset, reading every column as
// floats.
func FromDataFrame(df dataframe.DataFrame) domain.Dataset {
	names := df.Names()
	ds := domain.Dataset{Columns: names, Rows: make([]domain.FeatureRow, df.Nrow())}
	if slices.Contains(names, domain.TargetColumn) {
		ds.Target = domain.TargetColumn
	}
	for i := range ds.Rows {
		ds.Rows[i] = make(domain.FeatureRow, len(names))
	}
	for j, name := range names {
		for i, v := range df.Col(name).Float() {
			ds.Rows[i][j] = v
		}
	}
	return ds
}
