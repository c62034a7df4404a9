package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = 200501151330.0

// validRecord passes every quality predicate under both thresholds.
func validRecord() CloudRecord {
	return CloudRecord{
		Date:          testTimestamp,
		Area:          60,
		Tau:           2.0,
		CTT:           260.5,
		Perim:         40,
		NbIce:         5,
		NbLiq:         5,
		ReLiq:         1.2e-5,
		ReIce:         1.0e-5,
		NbPocketIce:   3,
		SizePocketIce: 30,
		NbPocketLiq:   2,
		SizePocketLiq: 40,
		TauLiq:        1.5,
		TauIce:        2.5,
		Lon:           140.2,
		Lat:           -55.1,
	}
}

func TestParsePrimaryFields(t *testing.T) {
	t.Run("full line", func(t *testing.T) {
		rec := validRecord()
		fields := strings.Fields(FormatFields(rec.PrimaryFields()))
		require.Len(t, fields, len(PrimaryColumns))

		got := ParsePrimaryFields(fields)
		assert.Equal(t, rec, got)
	})

	t.Run("short line pads with NaN", func(t *testing.T) {
		got := ParsePrimaryFields([]string{"200501151330", "60"})
		assert.Equal(t, 60.0, got.Area)
		assert.True(t, math.IsNaN(got.Tau))
		assert.True(t, math.IsNaN(got.MaxCTT))
	})

	t.Run("malformed field becomes NaN", func(t *testing.T) {
		fields := strings.Fields(FormatFields(validRecord().PrimaryFields()))
		fields[13] = "nan"
		fields[14] = "garbage"
		got := ParsePrimaryFields(fields)
		assert.True(t, math.IsNaN(got.ReLiq))
		assert.True(t, math.IsNaN(got.ReIce))
	})

	t.Run("infinite field becomes NaN", func(t *testing.T) {
		fields := strings.Fields(FormatFields(validRecord().PrimaryFields()))
		fields[6] = "-inf"
		fields[24] = "+Infinity"
		got := ParsePrimaryFields(fields)
		assert.True(t, math.IsNaN(got.CTT))
		assert.True(t, math.IsNaN(got.Lon))
		assert.Equal(t, 60.0, got.Area)
	})
}

func TestParseSecondaryFields(t *testing.T) {
	got := ParseSecondaryFields([]string{"0", "120.5", "-0.2", "281.3", "0"})
	assert.Equal(t, Thermo{CAPE: 120.5, Omega: -0.2, SST: 281.3}, got)
}

func TestQualityFilter_Accepts(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		mutate  func(*CloudRecord)
		strict  bool
		nonzero bool
	}{
		{"valid record", func(*CloudRecord) {}, true, true},
		{"missing re_liq", func(r *CloudRecord) { r.ReLiq = nan }, false, false},
		{"missing re_ice", func(r *CloudRecord) { r.ReIce = nan }, false, false},
		{"zero ice pixels", func(r *CloudRecord) { r.NbIce = 0 }, false, false},
		{"zero liquid pixels", func(r *CloudRecord) { r.NbLiq = 0 }, false, false},
		{"three ice pixels", func(r *CloudRecord) { r.NbIce = 3 }, false, true},
		{"two liquid pixels", func(r *CloudRecord) { r.NbLiq = 2 }, false, true},
		{"missing ice pixel count", func(r *CloudRecord) { r.NbIce = nan }, false, false},
		{"area at limit", func(r *CloudRecord) { r.Area = 50 }, false, false},
		{"tau at limit", func(r *CloudRecord) { r.Tau = 1.0 }, false, false},
		{"missing area", func(r *CloudRecord) { r.Area = nan }, false, false},
		{"ice pocket equals area", func(r *CloudRecord) { r.SizePocketIce = 60 }, false, false},
		{"liquid pocket equals area", func(r *CloudRecord) { r.SizePocketLiq = 60 }, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			assert.Equal(t, tt.strict, QualityFilter{Threshold: PixelThresholdStrict}.Accepts(rec), "strict")
			assert.Equal(t, tt.nonzero, QualityFilter{Threshold: PixelThresholdNonZero}.Accepts(rec), "nonzero")
		})
	}
}

func TestQualityFilter_Apply(t *testing.T) {
	bad := validRecord()
	bad.Tau = 0.5
	second := validRecord()
	second.Lon = 150

	kept, dropped := QualityFilter{}.Apply([]CloudRecord{validRecord(), bad, second})
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, 140.2, kept[0].Lon)
	assert.Equal(t, 150.0, kept[1].Lon)

	for _, r := range kept {
		assert.False(t, math.IsNaN(r.ReLiq))
		assert.False(t, math.IsNaN(r.ReIce))
		assert.Greater(t, r.NbIce, 3.0)
		assert.Greater(t, r.NbLiq, 3.0)
		assert.Greater(t, r.Area, MinArea)
		assert.Greater(t, r.Tau, MinTau)
		assert.NotEqual(t, r.Area, r.SizePocketIce)
		assert.NotEqual(t, r.Area, r.SizePocketLiq)
	}
}

func TestParsePixelThreshold(t *testing.T) {
	got, err := ParsePixelThreshold("Strict")
	require.NoError(t, err)
	assert.Equal(t, PixelThresholdStrict, got)

	got, err = ParsePixelThreshold("nonzero")
	require.NoError(t, err)
	assert.Equal(t, PixelThresholdNonZero, got)

	_, err = ParsePixelThreshold("loose")
	assert.Error(t, err)
}

func TestConvertRadii(t *testing.T) {
	once := ConvertRadii(validRecord())
	assert.InDelta(t, 12.0, once.ReLiq, 1e-9)
	assert.InDelta(t, 10.0, once.ReIce, 1e-9)

	twice := ConvertRadii(once)
	assert.NotEqual(t, once.ReLiq, twice.ReLiq, "conversion must not be idempotent")
	assert.NotEqual(t, once.ReIce, twice.ReIce)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		want    time.Time
		wantErr bool
	}{
		{"integral", 200501151330, time.Date(2005, 1, 15, 13, 30, 0, 0, time.UTC), false},
		{"midnight", 201712310000, time.Date(2017, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"NaN", math.NaN(), time.Time{}, true},
		{"too short", 20050115, time.Time{}, true},
		{"invalid month", 200513151330, time.Time{}, true},
		{"negative", -1, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadTimestamp))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureTransformer_Columns(t *testing.T) {
	t.Run("training, month, single source", func(t *testing.T) {
		tr := NewFeatureTransformer(TransformOptions{DeriveTarget: true})
		assert.Equal(t, []string{
			"tau", "ctt", "perim", "re_liq", "re_ice", "tau_liq", "tau_ice", "lon", "lat",
			"month", TargetColumn,
		}, tr.Columns())
		assert.Equal(t, TargetColumn, tr.Target())
	})

	t.Run("training, full dates, two source", func(t *testing.T) {
		tr := NewFeatureTransformer(TransformOptions{DateParts: DatePartsFull, DeriveTarget: true, WithThermo: true})
		cols := tr.Columns()
		assert.Equal(t, []string{"cape", "omega", "sst", "year", "month", "day", "hour", "minute", TargetColumn}, cols[9:])
	})

	t.Run("raw preparation drops date and fillers only", func(t *testing.T) {
		tr := NewFeatureTransformer(TransformOptions{})
		cols := tr.Columns()
		assert.Empty(t, tr.Target())
		assert.Contains(t, cols, "area")
		assert.Contains(t, cols, "nb_pocket_ice")
		assert.NotContains(t, cols, "date")
		assert.NotContains(t, cols, "off1")
		assert.NotContains(t, cols, TargetColumn)
		assert.Len(t, cols, len(PrimaryColumns)-2+1)
	})
}

func TestFeatureTransformer_Transform(t *testing.T) {
	tr := NewFeatureTransformer(TransformOptions{DateParts: DatePartsFull, DeriveTarget: true, WithThermo: true})
	rec := validRecord()
	rec.Thermo = &Thermo{CAPE: 100, Omega: -0.1, SST: 280}

	rows, err := tr.Transform([]CloudRecord{rec})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	cols := tr.Columns()
	value := func(name string) float64 {
		for i, c := range cols {
			if c == name {
				return rows[0][i]
			}
		}
		t.Fatalf("column %s missing", name)
		return 0
	}

	assert.InDelta(t, 12.0, value("re_liq"), 1e-9)
	assert.InDelta(t, 10.0, value("re_ice"), 1e-9)
	assert.Equal(t, 100.0, value("cape"))
	assert.Equal(t, 2005.0, value("year"))
	assert.Equal(t, 1.0, value("month"))
	assert.Equal(t, 15.0, value("day"))
	assert.Equal(t, 13.0, value("hour"))
	assert.Equal(t, 30.0, value("minute"))
	assert.InDelta(t, 3.0/60.0, value(TargetColumn), 1e-12)
	assert.Len(t, rows[0], len(cols))
}

func TestFeatureTransformer_BadTimestampRejectsFile(t *testing.T) {
	tr := NewFeatureTransformer(TransformOptions{DeriveTarget: true})
	bad := validRecord()
	bad.Date = math.NaN()

	rows, err := tr.Transform([]CloudRecord{validRecord(), bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadTimestamp))
	assert.Nil(t, rows)
}

func TestPocketRatio(t *testing.T) {
	rec := validRecord()
	assert.InDelta(t, 0.05, PocketRatio(rec), 1e-12)
}
