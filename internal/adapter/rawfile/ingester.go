// Package rawfile discovers and parses whitespace-delimited measurement files.
package rawfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/cloud-pocket-etl/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPattern         = "*.txt"
	DefaultSecondarySuffix = "_CAPE.txt"
)

// Options configures an Ingester. SecondaryDir empty means single-source mode.
type Options struct {
	PrimaryDir      string
	SecondaryDir    string
	Pattern         string
	SecondarySuffix string
	Workers         int
}

// Ingester reads primary files and, in two-source mode, joins each with its
// secondary file row by row.
type Ingester struct {
	opts   Options
	logger *slog.Logger
}

// NewIngester creates an Ingester, filling unset options with defaults.
func NewIngester(opts Options, logger *slog.Logger) *Ingester {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.SecondarySuffix == "" {
		opts.SecondarySuffix = DefaultSecondarySuffix
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Ingester{opts: opts, logger: logger}
}

// Paired reports whether primary files are joined with secondary files.
func (in *Ingester) Paired() bool {
	return in.opts.SecondaryDir != ""
}

// Dir returns the primary directory.
func (in *Ingester) Dir() string {
	return in.opts.PrimaryDir
}

// Discover returns the primary files matching the pattern in sorted order.
// When both sources share a directory, secondary files are not treated as
// primaries.
func (in *Ingester) Discover() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(in.opts.PrimaryDir, in.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", in.opts.Pattern, err)
	}
	if in.Paired() && filepath.Clean(in.opts.SecondaryDir) == filepath.Clean(in.opts.PrimaryDir) {
		paths = slices.DeleteFunc(paths, func(p string) bool {
			return strings.HasSuffix(p, in.opts.SecondarySuffix)
		})
	}
	slices.Sort(paths)
	return paths, nil
}

// SecondaryPath maps a primary file to its secondary counterpart: the
// extension is replaced by the suffix and the primary directory by the
// secondary one.
func (in *Ingester) SecondaryPath(primary string) string {
	rel, err := filepath.Rel(in.opts.PrimaryDir, primary)
	if err != nil {
		rel = filepath.Base(primary)
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(in.opts.SecondaryDir, stem+in.opts.SecondarySuffix)
}

// outcome is the result for one discovered file: exactly one field is set.
type outcome struct {
	file *domain.SourceFile
	skip *domain.Skip
}

// Ingest parses every discovered file with a bounded worker pool. Files that
// cannot be read or paired are reported in Skipped; the returned error is
// reserved for discovery failures and cancellation.
func (in *Ingester) Ingest(ctx context.Context) (domain.IngestResult, error) {
	paths, err := in.Discover()
	if err != nil {
		return domain.IngestResult{}, err
	}
	in.logger.Info("files discovered",
		"dir", in.opts.PrimaryDir,
		"pattern", in.opts.Pattern,
		"count", len(paths),
		"paired", in.Paired(),
	)

	results := make([]outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Workers)
	for idx, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[idx] = in.ingestFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("ingest %s: %w", in.opts.PrimaryDir, err)
	}

	res := domain.IngestResult{Discovered: len(paths)}
	for _, o := range results {
		if o.skip != nil {
			in.logger.Warn("skipping file", "path", o.skip.Path, "reason", o.skip.Reason, "error", o.skip.Err)
			res.Skipped = append(res.Skipped, *o.skip)
			continue
		}
		res.Files = append(res.Files, *o.file)
	}
	return res, nil
}

func (in *Ingester) ingestFile(path string) outcome {
	primary, err := readFields(path)
	if err != nil {
		return skipped(path, domain.SkipReadError, err)
	}

	records := make([]domain.CloudRecord, len(primary))
	for i, fields := range primary {
		records[i] = domain.ParsePrimaryFields(fields)
	}
	if !in.Paired() {
		return outcome{file: &domain.SourceFile{Path: path, Records: records}}
	}

	secPath := in.SecondaryPath(path)
	secondary, err := readFields(secPath)
	if errors.Is(err, fs.ErrNotExist) {
		return skipped(path, domain.SkipMissingSecondary, fmt.Errorf("no secondary file %s", secPath))
	}
	if err != nil {
		return skipped(path, domain.SkipReadError, err)
	}
	if len(secondary) != len(primary) {
		return skipped(path, domain.SkipRowCountMismatch,
			fmt.Errorf("%d primary rows, %d secondary rows in %s", len(primary), len(secondary), secPath))
	}

	for i, fields := range secondary {
		thermo := domain.ParseSecondaryFields(fields)
		records[i].Thermo = &thermo
	}
	return outcome{file: &domain.SourceFile{Path: path, Records: records}}
}

func skipped(path string, reason domain.SkipReason, err error) outcome {
	return outcome{skip: &domain.Skip{Path: path, Reason: reason, Err: err}}
}

// readFields returns the whitespace-separated fields of every non-blank line.
func readFields(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
