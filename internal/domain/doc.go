// Package domain models cloud-object measurements derived from geostationary
// satellite retrievals and the rules that turn them into a training dataset.
//
// # Data Source
//
// Each primary (MPS) file holds every cloud object detected over the Southern
// Ocean on one day between 2005 and 2017. A cloud object is a set of connected
// cloudy pixels from the CLAAS-2 dataset
// (https://doi.org/10.5676/EUM_SAF_CM/CLAAS/V002), one object per line.
// An optional secondary (ERA) file carries reanalysis thermodynamics for the
// same objects, line for line.
//
// # File Conventions
//
// Files are whitespace-delimited text with no header. Columns are positional:
//
//	primary:   28 columns, see [PrimaryColumns]
//	secondary:  5 columns, see [SecondaryColumns]
//
// The secondary file for "<dir>/20050101.txt" is "<secondary dir>/20050101_CAPE.txt".
// Fields "off1", "off2", and "off3" are positional fillers with no meaning.
// A field that is absent or does not parse as a number is stored as NaN.
//
// Timestamp format:
//
//	The "date" column holds YYYYMMDDHHmm as a number, e.g. 200501011315 = 2005-01-01 13:15 UTC.
//	It may be written in float notation (2.00501011315e+11).
//
// Units:
//
//	Effective radii (re_liq, re_ice) are stored in meters and converted to
//	micrometers (×1e6) exactly once by [ConvertRadii].
//	Area, perimeter, and pocket sizes are in pixels.
//
// # Quality Control
//
// A record is kept only when both phase radii are present, both phases have
// enough pixels (see [PixelThreshold]), the area exceeds 50 pixels, the optical
// depth exceeds 1, and neither phase's mean pocket size equals the cloud area.
// The last rule removes objects where a single pocket spans the whole cloud,
// an artifact of the clustering step.
//
// # Target
//
// The regression target is pocket_ratio = nb_pocket_ice / area, computed from
// the raw record before any column is pruned.
package domain
