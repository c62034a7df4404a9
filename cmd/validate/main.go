// Command validate checks a directory of raw measurement files before a
// training run. It ingests every file the way the pipeline does and reports,
// per file, whether it was paired, skipped, how many rows it holds, and how
// many survive the quality filter. With -raw-out it also writes the untargeted
// feature table and prints a column summary of it.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw-dir data/mock/raw \
//	  -secondary-dir data/mock/cape \
//	  -raw-out data/mock/raw_features.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/frame"
	"github.com/couchcryptid/cloud-pocket-etl/internal/adapter/rawfile"
	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	rawDir       string
	secondaryDir string
	pattern      string
	threshold    domain.PixelThreshold
	rawOut       string
}

func main() {
	rawDir := flag.String("raw-dir", "", "directory containing primary files")
	secondaryDir := flag.String("secondary-dir", "", "directory containing secondary files (optional)")
	pattern := flag.String("pattern", rawfile.DefaultPattern, "glob for primary files")
	threshold := flag.String("threshold", "strict", "pixel threshold: strict or nonzero")
	rawOut := flag.String("raw-out", "", "write the untargeted feature table to this CSV")
	flag.Parse()

	if *rawDir == "" {
		flag.Usage()
		os.Exit(1)
	}
	th, err := domain.ParsePixelThreshold(*threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(options{
		rawDir:       *rawDir,
		secondaryDir: *secondaryDir,
		pattern:      *pattern,
		threshold:    th,
		rawOut:       *rawOut,
	}))
}

func run(opts options) int {
	fmt.Println("=== Cloud Object Data Validation ===")
	fmt.Println()

	ingester := rawfile.NewIngester(rawfile.Options{
		PrimaryDir:   opts.rawDir,
		SecondaryDir: opts.secondaryDir,
		Pattern:      opts.pattern,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := ingester.Ingest(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: ingest: %v\n", err)
		return 1
	}

	filter := domain.QualityFilter{Threshold: opts.threshold}
	phases := []*phase{
		validateIngest(res, ingester.Paired()),
		validateFilter(res, filter),
		validateTransform(res, filter, ingester.Paired()),
	}
	if opts.rawOut != "" {
		phases = append(phases, writeRawFeatures(res, filter, ingester, opts.rawOut))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Ingest ──
// Every discovered file must parse and, when paired, have a matching
// secondary file with the same number of rows.

func validateIngest(res domain.IngestResult, paired bool) *phase {
	p := &phase{name: "Phase 1: Ingest (files and pairing)"}

	if res.Discovered == 0 {
		p.errorf("no primary files discovered")
	}
	fmt.Printf("Discovered %d file(s), paired=%t\n", res.Discovered, paired)
	for _, f := range res.Files {
		fmt.Printf("  %-48s rows=%d\n", f.Path, len(f.Records))
	}
	for _, s := range res.Skipped {
		fmt.Printf("  %-48s SKIPPED (%s)\n", s.Path, s.Reason)
		p.errorf("%s: skipped: %s: %v", s.Path, s.Reason, s.Err)
	}
	return p
}

// ── Phase 2: Quality Filter ──
// Each file should keep at least one row.

func validateFilter(res domain.IngestResult, filter domain.QualityFilter) *phase {
	p := &phase{name: "Phase 2: Quality Filter (" + filter.Threshold.String() + ")"}

	var total, kept int
	for _, f := range res.Files {
		survivors, dropped := filter.Apply(f.Records)
		total += len(f.Records)
		kept += len(survivors)
		fmt.Printf("  %-48s surviving=%d dropped=%d\n", f.Path, len(survivors), dropped)
		if len(f.Records) > 0 && len(survivors) == 0 {
			p.errorf("%s: all %d rows rejected", f.Path, len(f.Records))
		}
	}
	fmt.Printf("Rows: %d parsed, %d surviving\n", total, kept)
	return p
}

// ── Phase 3: Transform ──
// Timestamps must decode and the derived target must be finite.

func validateTransform(res domain.IngestResult, filter domain.QualityFilter, paired bool) *phase {
	p := &phase{name: "Phase 3: Transform (timestamps, target)"}

	t := domain.NewFeatureTransformer(domain.TransformOptions{
		DateParts:    domain.DatePartsMonth,
		DeriveTarget: true,
		WithThermo:   paired,
	})
	for _, f := range res.Files {
		kept, _ := filter.Apply(f.Records)
		rows, err := t.Transform(kept)
		if err != nil {
			p.errorf("%s: %v", f.Path, err)
			continue
		}
		for i, row := range rows {
			if v := row[len(row)-1]; math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("%s row %d: %s is %v", f.Path, i, domain.TargetColumn, v)
			}
		}
	}
	return p
}

// ── Phase 4: Raw Features ──
// Writes every surviving row without a target and summarises each column.

func writeRawFeatures(res domain.IngestResult, filter domain.QualityFilter, in *rawfile.Ingester, out string) *phase {
	p := &phase{name: "Phase 4: Raw Features (" + out + ")"}

	t := domain.NewFeatureTransformer(domain.TransformOptions{
		DateParts:  domain.DatePartsFull,
		WithThermo: in.Paired(),
	})
	var parts []domain.Part
	for _, f := range res.Files {
		kept, _ := filter.Apply(f.Records)
		rows, err := t.Transform(kept)
		if err != nil {
			// Already reported by the transform phase.
			continue
		}
		parts = append(parts, domain.Part{Source: f.Path, Rows: rows})
	}

	ds, err := domain.Assemble(in.Dir(), t.Columns(), t.Target(), parts)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if err := frame.WriteCSV(out, ds); err != nil {
		p.errorf("write: %v", err)
		return p
	}

	fmt.Printf("\nRaw feature table: %d rows x %d columns\n", ds.Len(), len(ds.Columns))
	fmt.Println(frame.ToDataFrame(ds).Describe())
	return p
}
