// Command genmock writes synthetic primary and secondary measurement files for
// local runs and tests. Records are built with the domain package and written
// in the same positional layout the ingester reads, so every generated file
// parses back to the records it was written from.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/mock/raw \
//	  -secondary-dir data/mock/cape \
//	  -files 12 -rows 200 -seed 7
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/rawfile"
	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
)

var baseDate = time.Date(2005, time.January, 1, 0, 0, 0, 0, time.UTC)

// rejectEvery makes every n-th record fail the quality filter.
const rejectEvery = 7

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory for primary files")
	secondaryDir := flag.String("secondary-dir", "", "directory for secondary files (omit to skip them)")
	files := flag.Int("files", 12, "number of primary files, one per month")
	rows := flag.Int("rows", 100, "records per file")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out-dir")
	}
	if *files < 1 || *rows < 1 {
		return fmt.Errorf("-files and -rows must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x5eed))

	var kept, rejected int
	for i := range *files {
		month := baseDate.AddDate(0, i, 0)
		name := fmt.Sprintf("objects_%s.txt", month.Format("2006_01"))

		records := make([]domain.CloudRecord, *rows)
		for j := range records {
			records[j] = synthRecord(rng, month, j)
		}

		filter := domain.QualityFilter{Threshold: domain.PixelThresholdStrict}
		_, dropped := filter.Apply(records)
		kept += len(records) - dropped
		rejected += dropped

		primary := filepath.Join(*outDir, name)
		if err := writeLines(primary, records, func(r domain.CloudRecord) []float64 { return r.PrimaryFields() }); err != nil {
			return fmt.Errorf("writing %s: %w", primary, err)
		}

		if *secondaryDir != "" {
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			secondary := filepath.Join(*secondaryDir, stem+rawfile.DefaultSecondarySuffix)
			if err := writeLines(secondary, records, func(r domain.CloudRecord) []float64 { return r.Thermo.SecondaryFields() }); err != nil {
				return fmt.Errorf("writing %s: %w", secondary, err)
			}
		}
		log.Printf("%s: %d records", name, len(records))
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Files: %d\n", *files)
	fmt.Printf("Records: %d (pass filter=%d, rejected=%d)\n", kept+rejected, kept, rejected)
	return nil
}

// synthRecord draws one plausible cloud object. The pocket count loosely
// follows liquid radius and CAPE so a model has something to learn.
func synthRecord(rng *rand.Rand, month time.Time, i int) domain.CloudRecord {
	ts := month.Add(time.Duration(rng.IntN(28*24)) * time.Hour).Add(time.Duration(rng.IntN(4)*15) * time.Minute)
	date := float64(ts.Year())*1e8 + float64(ts.Month())*1e6 + float64(ts.Day())*1e4 + float64(ts.Hour())*1e2 + float64(ts.Minute())

	area := 60 + rng.Float64()*940
	reLiq := (6 + rng.Float64()*14) * 1e-6
	cape := rng.Float64() * 1500
	nbIce := 4 + float64(rng.IntN(int(area/4)))
	nbLiq := 4 + float64(rng.IntN(int(area/4)))
	pockets := float64(int(area * (0.002 + reLiq*1e3 + cape/1e6) * (0.5 + rng.Float64())))

	r := domain.CloudRecord{
		Date:             date,
		Area:             area,
		Tau:              1.5 + rng.Float64()*30,
		StdTau:           rng.Float64() * 5,
		Re:               (8 + rng.Float64()*20) * 1e-6,
		StdRe:            rng.Float64() * 3e-6,
		CTT:              220 + rng.Float64()*60,
		StdCTT:           rng.Float64() * 4,
		CTHMP:            500 + rng.Float64()*9500,
		StdCTH:           rng.Float64() * 300,
		Perim:            area * (0.3 + rng.Float64()),
		NbIce:            nbIce,
		NbLiq:            nbLiq,
		ReLiq:            reLiq,
		ReIce:            (15 + rng.Float64()*30) * 1e-6,
		NbPocketIce:      pockets,
		SizePocketIce:    1 + rng.Float64()*20,
		SizePocketStdIce: rng.Float64() * 5,
		NbPocketLiq:      float64(rng.IntN(10)),
		SizePocketLiq:    1 + rng.Float64()*20,
		SizePocketStdLiq: rng.Float64() * 5,
		TauLiq:           1 + rng.Float64()*20,
		TauIce:           1 + rng.Float64()*20,
		Lon:              120 + rng.Float64()*60,
		Lat:              -65 + rng.Float64()*25,
		MinCTT:           210 + rng.Float64()*20,
		MaxCTT:           260 + rng.Float64()*30,
		Thermo: &domain.Thermo{
			CAPE:  cape,
			Omega: rng.NormFloat64() * 0.2,
			SST:   271 + rng.Float64()*15,
		},
	}

	if i%rejectEvery == rejectEvery-1 {
		// Too small to be a plausible object.
		r.Area = 10 + rng.Float64()*30
	}
	return r
}

func writeLines(path string, records []domain.CloudRecord, fields func(domain.CloudRecord) []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, r := range records {
		if _, err := fmt.Fprintln(w, domain.FormatFields(fields(r))); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
