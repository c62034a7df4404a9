package domain

// SkipReason explains why a source file contributed nothing.
type SkipReason string

const (
	SkipMissingSecondary SkipReason = "missing_secondary"
	SkipRowCountMismatch SkipReason = "row_count_mismatch"
	SkipReadError        SkipReason = "read_error"
	SkipBadTimestamp     SkipReason = "bad_timestamp"
)

// SourceFile is one parsed primary file, joined with its secondary when paired.
type SourceFile struct {
	Path    string
	Records []CloudRecord
}

// Skip records a file excluded from the dataset.
type Skip struct {
	Path   string
	Reason SkipReason
	Err    error
}

// IngestResult is the output of file discovery and parsing.
type IngestResult struct {
	Discovered int
	Files      []SourceFile
	Skipped    []Skip
}
