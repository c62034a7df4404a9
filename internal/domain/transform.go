package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RadiusScale converts effective radii from meters to micrometers.
const RadiusScale = 1e6

// TargetColumn is the name of the regression target.
const TargetColumn = "pocket_ratio"

// ErrBadTimestamp is returned when a date field cannot be decoded.
var ErrBadTimestamp = errors.New("bad timestamp")

// timestampLayout matches the YYYYMMDDHHmm encoding of the date column.
const timestampLayout = "200601021504"

// featureColumns are the primary-file columns kept for modelling.
var featureColumns = []string{"tau", "ctt", "perim", "re_liq", "re_ice", "tau_liq", "tau_ice", "lon", "lat"}

var thermoColumns = []string{"cape", "omega", "sst"}

// DateParts selects which calendar fields are derived from the timestamp.
type DateParts int

const (
	// DatePartsMonth keeps only the month.
	DatePartsMonth DateParts = iota
	// DatePartsFull keeps year, month, day, hour, and minute.
	DatePartsFull
)

// ParseDateParts accepts "month" or "full".
func ParseDateParts(s string) (DateParts, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month":
		return DatePartsMonth, nil
	case "full":
		return DatePartsFull, nil
	default:
		return 0, fmt.Errorf("unknown date parts %q (want month or full)", s)
	}
}

func (d DateParts) String() string {
	if d == DatePartsFull {
		return "full"
	}
	return "month"
}

// Columns returns the derived column names in output order.
func (d DateParts) Columns() []string {
	if d == DatePartsFull {
		return []string{"year", "month", "day", "hour", "minute"}
	}
	return []string{"month"}
}

func (d DateParts) values(t time.Time) []float64 {
	if d == DatePartsFull {
		return []float64{
			float64(t.Year()),
			float64(t.Month()),
			float64(t.Day()),
			float64(t.Hour()),
			float64(t.Minute()),
		}
	}
	return []float64{float64(t.Month())}
}

// TransformOptions configures a FeatureTransformer.
type TransformOptions struct {
	DateParts DateParts
	// DeriveTarget computes pocket_ratio and prunes to model features. When
	// false the raw numeric columns are kept for a later stage.
	DeriveTarget bool
	// WithThermo includes the secondary-file columns.
	WithThermo bool
}

// ConvertRadii scales both phase radii from meters to micrometers. It must be
// applied exactly once per record.
func ConvertRadii(r CloudRecord) CloudRecord {
	r.ReLiq *= RadiusScale
	r.ReIce *= RadiusScale
	return r
}

// PocketRatio returns nb_pocket_ice / area.
func PocketRatio(r CloudRecord) float64 {
	return r.NbPocketIce / r.Area
}

// ParseTimestamp decodes a YYYYMMDDHHmm value into a UTC time.
func ParseTimestamp(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, v)
	}
	s := strconv.FormatInt(int64(v), 10)
	t, err := time.ParseInLocation(timestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, s)
	}
	return t, nil
}

// FeatureTransformer turns filtered records into feature rows.
type FeatureTransformer struct {
	opts    TransformOptions
	source  []string
	columns []string
}

// NewFeatureTransformer builds a transformer and fixes its output columns.
func NewFeatureTransformer(opts TransformOptions) *FeatureTransformer {
	var source []string
	if opts.DeriveTarget {
		source = append(source, featureColumns...)
	} else {
		for _, c := range PrimaryColumns {
			if c == "date" || strings.HasPrefix(c, "off") {
				continue
			}
			source = append(source, c)
		}
	}
	if opts.WithThermo {
		source = append(source, thermoColumns...)
	}

	columns := append([]string{}, source...)
	columns = append(columns, opts.DateParts.Columns()...)
	if opts.DeriveTarget {
		columns = append(columns, TargetColumn)
	}
	return &FeatureTransformer{opts: opts, source: source, columns: columns}
}

// Columns returns the names of the values in each produced row.
func (t *FeatureTransformer) Columns() []string {
	return append([]string{}, t.columns...)
}

// Target returns the target column name, or "" when no target is derived.
func (t *FeatureTransformer) Target() string {
	if t.opts.DeriveTarget {
		return TargetColumn
	}
	return ""
}

// Transform converts one file's records. If any timestamp fails to decode the
// whole file is rejected with ErrBadTimestamp and no rows are returned.
func (t *FeatureTransformer) Transform(records []CloudRecord) ([]FeatureRow, error) {
	rows := make([]FeatureRow, 0, len(records))
	for i, rec := range records {
		ts, err := ParseTimestamp(rec.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec = ConvertRadii(rec)

		row := make(FeatureRow, 0, len(t.columns))
		for _, c := range t.source {
			row = append(row, recordColumn(rec, c))
		}
		row = append(row, t.opts.DateParts.values(ts)...)
		if t.opts.DeriveTarget {
			row = append(row, PocketRatio(rec))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
