package bqship

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compressor opens one compression stream per chunk. Streams are never
// reused across chunks because every chunk is a separately addressed object.
type Compressor interface {
	NewWriter(w io.Writer) io.WriteCloser
	Ext() string
}

// NewGzipCompressor returns the default gzip Compressor. BigQuery load jobs
// decompress .gz source objects transparently.
func NewGzipCompressor() Compressor { return gzipCompressor{} }

type gzipCompressor struct{}

func (gzipCompressor) NewWriter(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) }

func (gzipCompressor) Ext() string { return ".gz" }
