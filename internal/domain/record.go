package domain

import (
	"math"
	"strconv"
	"strings"
)

// PrimaryColumns is the positional schema of a primary measurement file.
var PrimaryColumns = []string{
	"date",
	"area",
	"tau",
	"std_tau",
	"re",
	"std_re",
	"ctt",
	"std_ctt",
	"cth_mp",
	"std_cth",
	"perim",
	"nb_ice",
	"nb_liq",
	"re_liq",
	"re_ice",
	"off1",
	"nb_pocket_ice",
	"size_pocket_ice",
	"size_pocket_std_ice",
	"nb_pocket_liq",
	"size_pocket_liq",
	"size_pocket_std_liq",
	"tau_liq",
	"tau_ice",
	"lon",
	"lat",
	"min_ctt",
	"max_ctt",
}

// SecondaryColumns is the positional schema of a secondary thermodynamic file.
var SecondaryColumns = []string{"off2", "cape", "omega", "sst", "off3"}

// CloudRecord is one cloud object observed at one timestamp.
type CloudRecord struct {
	Date   float64 // YYYYMMDDHHmm
	Area   float64 // pixels
	Tau    float64 // cloud optical depth
	StdTau float64
	Re     float64 // hydrometeor effective radius
	StdRe  float64
	CTT    float64 // cloud top temperature
	StdCTT float64
	CTHMP  float64 // cloud top height
	StdCTH float64
	Perim  float64
	NbIce  float64 // ice pixels
	NbLiq  float64 // liquid pixels
	ReLiq  float64 // liquid droplet effective radius
	ReIce  float64 // ice crystal effective radius

	NbPocketIce      float64
	SizePocketIce    float64 // mean ice pocket size
	SizePocketStdIce float64
	NbPocketLiq      float64
	SizePocketLiq    float64 // mean liquid pocket size
	SizePocketStdLiq float64

	TauLiq float64 // mean optical thickness of liquid pixels
	TauIce float64 // mean optical thickness of ice pixels
	Lon    float64
	Lat    float64
	MinCTT float64
	MaxCTT float64

	// Thermo is set only when the record was joined with a secondary file.
	Thermo *Thermo
}

// Thermo holds reanalysis fields from the secondary file.
type Thermo struct {
	CAPE  float64 // convective available potential energy
	Omega float64 // vertical velocity at 500 hPa
	SST   float64 // sea surface temperature
}

// ParsePrimaryFields builds a CloudRecord from the whitespace-separated fields
// of one primary line. Missing or malformed fields become NaN.
func ParsePrimaryFields(fields []string) CloudRecord {
	v := parsePositional(fields, len(PrimaryColumns))
	return CloudRecord{
		Date:             v[0],
		Area:             v[1],
		Tau:              v[2],
		StdTau:           v[3],
		Re:               v[4],
		StdRe:            v[5],
		CTT:              v[6],
		StdCTT:           v[7],
		CTHMP:            v[8],
		StdCTH:           v[9],
		Perim:            v[10],
		NbIce:            v[11],
		NbLiq:            v[12],
		ReLiq:            v[13],
		ReIce:            v[14],
		NbPocketIce:      v[16],
		SizePocketIce:    v[17],
		SizePocketStdIce: v[18],
		NbPocketLiq:      v[19],
		SizePocketLiq:    v[20],
		SizePocketStdLiq: v[21],
		TauLiq:           v[22],
		TauIce:           v[23],
		Lon:              v[24],
		Lat:              v[25],
		MinCTT:           v[26],
		MaxCTT:           v[27],
	}
}

// ParseSecondaryFields builds Thermo from the fields of one secondary line.
func ParseSecondaryFields(fields []string) Thermo {
	v := parsePositional(fields, len(SecondaryColumns))
	return Thermo{CAPE: v[1], Omega: v[2], SST: v[3]}
}

// PrimaryFields returns the record in primary-file column order. Filler
// positions are zero. It is the inverse of ParsePrimaryFields and is used to
// write fixture files.
func (r CloudRecord) PrimaryFields() []float64 {
	return []float64{
		r.Date, r.Area, r.Tau, r.StdTau, r.Re, r.StdRe, r.CTT, r.StdCTT,
		r.CTHMP, r.StdCTH, r.Perim, r.NbIce, r.NbLiq, r.ReLiq, r.ReIce, 0,
		r.NbPocketIce, r.SizePocketIce, r.SizePocketStdIce,
		r.NbPocketLiq, r.SizePocketLiq, r.SizePocketStdLiq,
		r.TauLiq, r.TauIce, r.Lon, r.Lat, r.MinCTT, r.MaxCTT,
	}
}

// SecondaryFields returns the thermodynamic fields in secondary-file order.
func (t Thermo) SecondaryFields() []float64 {
	return []float64{0, t.CAPE, t.Omega, t.SST, 0}
}

// FormatFields renders values as one whitespace-delimited line.
func FormatFields(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parsePositional(fields []string, width int) []float64 {
	v := make([]float64, width)
	for i := range v {
		if i >= len(fields) {
			v[i] = math.NaN()
			continue
		}
		v[i] = parseFloatOrNaN(fields[i])
	}
	return v
}

// parseFloatOrNaN parses a string as float64, returning NaN on failure.
// Infinite values are treated as missing.
func parseFloatOrNaN(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// recordColumn maps a raw column name to its value in a record.
func recordColumn(r CloudRecord, name string) float64 {
	switch name {
	case "area":
		return r.Area
	case "tau":
		return r.Tau
	case "std_tau":
		return r.StdTau
	case "re":
		return r.Re
	case "std_re":
		return r.StdRe
	case "ctt":
		return r.CTT
	case "std_ctt":
		return r.StdCTT
	case "cth_mp":
		return r.CTHMP
	case "std_cth":
		return r.StdCTH
	case "perim":
		return r.Perim
	case "nb_ice":
		return r.NbIce
	case "nb_liq":
		return r.NbLiq
	case "re_liq":
		return r.ReLiq
	case "re_ice":
		return r.ReIce
	case "nb_pocket_ice":
		return r.NbPocketIce
	case "size_pocket_ice":
		return r.SizePocketIce
	case "size_pocket_std_ice":
		return r.SizePocketStdIce
	case "nb_pocket_liq":
		return r.NbPocketLiq
	case "size_pocket_liq":
		return r.SizePocketLiq
	case "size_pocket_std_liq":
		return r.SizePocketStdLiq
	case "tau_liq":
		return r.TauLiq
	case "tau_ice":
		return r.TauIce
	case "lon":
		return r.Lon
	case "lat":
		return r.Lat
	case "min_ctt":
		return r.MinCTT
	case "max_ctt":
		return r.MaxCTT
	}
	if r.Thermo != nil {
		switch name {
		case "cape":
			return r.Thermo.CAPE
		case "omega":
			return r.Thermo.Omega
		case "sst":
			return r.Thermo.SST
		}
	}
	return math.NaN()
}
