package bqship

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"
)

// Config controls one run.
type Config struct {
	// Project is the GCP project owning the staging bucket and, unless the
	// table pattern carries its own, the destination tables.
	Project string

	// TablePattern is the destination table as [project:]dataset.table,
	// with an optional {} placeholder.
	TablePattern string

	// SourcePattern is the source file glob, with an optional {}
	// placeholder linked to the table pattern's.
	SourcePattern string

	// Bucket is the staging bucket. Derived as "{project}-bqship" when
	// empty.
	Bucket string

	// Location is the geographic location for created datasets and
	// buckets. US or EU.
	Location string

	// Delimiter separates fields in source files and header lines.
	Delimiter string

	// Header provides the schema columns explicitly. When set, source
	// files are expected to carry no header row and the run must resolve
	// to a single table.
	Header string

	// Encoding optionally transcodes source files before processing.
	Encoding encoding.Encoding

	// Overwrite truncates destination tables instead of appending.
	Overwrite bool

	// DryRun plans and logs everything but skips every state-mutating
	// remote call.
	DryRun bool

	MaxChunkSize int64
	BlockSize    int64
}

// normalize fills defaults and rejects invalid combinations.
func (c *Config) normalize() error {
	if c.Project == "" {
		return xerrors.New("project is required")
	}
	if c.TablePattern == "" {
		return xerrors.New("table pattern is required")
	}
	if c.SourcePattern == "" {
		return xerrors.New("source pattern is required")
	}

	if c.Bucket == "" {
		c.Bucket = fmt.Sprintf("%s-bqship", c.Project)
	}
	if c.Location == "" {
		c.Location = "US"
	}
	if c.Location != "US" && c.Location != "EU" {
		return xerrors.Errorf("invalid location %q (want US or EU)", c.Location)
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}

	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.BlockSize > c.MaxChunkSize {
		return xerrors.Errorf("block size %d exceeds max chunk size %d", c.BlockSize, c.MaxChunkSize)
	}

	return nil
}
