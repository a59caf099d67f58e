package bqship

import (
	"context"
	"io"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxChunkSize bounds a chunk's pre-compression size. Remote
	// object stores and load jobs impose per-object size ceilings.
	DefaultMaxChunkSize = 4 * units.GiB

	// DefaultBlockSize is the read granularity of a file source.
	DefaultBlockSize = 8 * units.MiB
)

// Uploader splits one file's byte stream into size-bounded chunks,
// compresses each chunk and streams it into the sink. It implements
// io.Writer so a source can simply be copied into it.
//
// Writes are handed to a consumer goroutine over a bounded channel, so a
// slow transfer suspends the producer instead of growing a buffer. Sealing
// a chunk (closing its compression stream and waiting for the transfer
// acknowledgement) overlaps with writes to the next chunk, bounded to one
// pending seal at a time.
//
// An Uploader belongs to exactly one file. It must not be shared across
// concurrent pipelines.
type Uploader struct {
	sink ObjectSink
	comp Compressor
	name func(seq int) string
	max  int64

	ctx    context.Context
	group  *errgroup.Group
	blocks chan []byte
	sem    chan struct{}

	// objects is appended by the consumer goroutine only; Finish reads it
	// after the group has been waited on.
	objects  []string
	finished bool
}

// NewUploader starts the upload pipeline for one file. The name function
// maps a 0-based chunk sequence number to its object name.
func NewUploader(ctx context.Context, sink ObjectSink, comp Compressor, name func(seq int) string, maxChunkSize int64) *Uploader {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	g, gctx := errgroup.WithContext(ctx)

	u := &Uploader{
		sink:   sink,
		comp:   comp,
		name:   name,
		max:    maxChunkSize,
		ctx:    gctx,
		group:  g,
		blocks: make(chan []byte, 1),
		sem:    make(chan struct{}, 1),
	}

	g.Go(u.run)

	return u
}

// Write appends one block to the stream. It blocks while the pipeline is
// full. If a chunk transfer has already failed, Write returns the group's
// cancellation error; the failure itself surfaces from Finish.
func (u *Uploader) Write(p []byte) (int, error) {
	if u.finished {
		return 0, ErrFinished
	}

	b := make([]byte, len(p))
	copy(b, p)

	select {
	case u.blocks <- b:
		return len(p), nil
	case <-u.ctx.Done():
		return 0, u.ctx.Err()
	}
}

// Finish seals the trailing partial chunk, waits until every outstanding
// transfer is acknowledged and returns the object names in chunk order.
// It must be called exactly once, even after a failed Write, so that the
// pipeline's resources are released.
func (u *Uploader) Finish() ([]string, error) {
	if u.finished {
		return nil, ErrFinished
	}
	u.finished = true

	close(u.blocks)

	if err := u.group.Wait(); err != nil {
		return nil, err
	}

	return u.objects, nil
}

type chunk struct {
	seq    int
	object string
	size   int64
	zw     io.WriteCloser // compression stream
	ow     io.WriteCloser // sink object writer
}

// run is the consumer goroutine. It owns the chunk lifecycle: blocks are
// appended to the current chunk until the next block would push it past the
// size ceiling, at which point the chunk is sealed and a fresh one started.
func (u *Uploader) run() error {
	var cur *chunk
	seq := 0

	for b := range u.blocks {
		if cur != nil && cur.size+int64(len(b)) > u.max {
			if err := u.seal(cur); err != nil {
				return err
			}
			cur = nil
		}

		if cur == nil {
			cur = u.open(seq)
			seq++
		}

		if _, err := cur.zw.Write(b); err != nil {
			return &UploadError{Chunk: cur.seq, Err: err}
		}
		cur.size += int64(len(b))
	}

	if cur != nil {
		return u.seal(cur)
	}

	return nil
}

func (u *Uploader) open(seq int) *chunk {
	object := u.name(seq)
	ow := u.sink.NewWriter(u.ctx, object)
	u.objects = append(u.objects, object)

	return &chunk{seq: seq, object: object, zw: u.comp.NewWriter(ow), ow: ow}
}

// seal flushes the chunk in the background so the consumer can keep writing
// the next chunk while this one's transfer completes. The semaphore keeps at
// most one seal pending.
func (u *Uploader) seal(c *chunk) error {
	select {
	case u.sem <- struct{}{}:
	case <-u.ctx.Done():
		return u.ctx.Err()
	}

	u.group.Go(func() error {
		defer func() { <-u.sem }()

		if err := c.zw.Close(); err != nil {
			return &UploadError{Chunk: c.seq, Err: err}
		}
		if err := c.ow.Close(); err != nil {
			return &UploadError{Chunk: c.seq, Err: err}
		}

		log.Ctx(u.ctx).Info().
			Int("chunk", c.seq).
			Str("object", c.object).
			Str("size", units.BytesSize(float64(c.size))).
			Msg("chunk uploaded")

		return nil
	})

	return nil
}
