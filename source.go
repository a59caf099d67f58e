package bqship

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// FileSource produces the byte stream for one local file. The stream is
// finite, sequential and not restartable; it never materializes the whole
// file in memory.
type FileSource struct {
	Path string

	// Encoding optionally transcodes the file into UTF-8 before any other
	// transformation.
	Encoding encoding.Encoding

	// SkipHeader drops exactly the first newline-delimited line, as a
	// byte-stream transformation applied once at the start of the stream.
	SkipHeader bool
}

// Open returns the transformed byte stream and a release function.
func (s *FileSource) Open(ctx context.Context) (io.Reader, func(), error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open %s: %w", s.Path, err)
	}

	var r io.Reader = f
	if s.Encoding != nil {
		r = transform.NewReader(r, s.Encoding.NewDecoder())
	}
	if s.SkipHeader {
		r = skipFirstLine(r)
	}

	log.Ctx(ctx).Debug().Str("file", s.Path).Msg("source opened")

	return r, func() { f.Close() }, nil
}

// copyBlocks copies r into w in blocks of at most blockSize bytes. Unlike
// io.Copy it never delegates to a WriteTo implementation, so block sizes
// stay bounded no matter what reader backs the stream.
func copyBlocks(w io.Writer, r io.Reader, blockSize int64) (int64, error) {
	buf := make([]byte, blockSize)
	var written int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// skipFirstLine discards everything up to and including the first '\n' of r,
// regardless of how reads align with line boundaries. A stream without any
// newline is all header and yields no bytes.
func skipFirstLine(r io.Reader) io.Reader {
	return &headerSkipReader{r: r}
}

type headerSkipReader struct {
	r       io.Reader
	skipped bool
}

func (h *headerSkipReader) Read(p []byte) (int, error) {
	for !h.skipped {
		n, err := h.r.Read(p)
		if i := bytes.IndexByte(p[:n], '\n'); i >= 0 {
			h.skipped = true
			if rest := copy(p, p[i+1:n]); rest > 0 || err != nil {
				return rest, err
			}
			break
		}
		if err != nil {
			return 0, err
		}
	}

	return h.r.Read(p)
}
