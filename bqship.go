package bqship

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Runner resolves table/file tasks and drives one streaming upload pipeline
// per file, sequentially, followed by one load job per table. It halts on
// the first fatal error.
type Runner struct {
	cfg      Config
	sink     ObjectSink
	wh       warehouse
	comp     Compressor
	notifier Notifier
}

// New builds a Runner. Unless replaced by options, the sink and warehouse
// are backed by Cloud Storage and BigQuery clients; a dry run builds no
// clients at all.
func New(ctx context.Context, cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg, comp: NewGzipCompressor()}

	for _, o := range opts {
		if err := o.apply(r); err != nil {
			return nil, err
		}
	}

	if !cfg.DryRun {
		if r.sink == nil {
			sink, err := newGCSSink(ctx, cfg.Bucket)
			if err != nil {
				return nil, err
			}
			r.sink = sink
		}
		if r.wh == nil {
			wh, err := newBQWarehouse(ctx, cfg.Project)
			if err != nil {
				return nil, err
			}
			r.wh = wh
		}
	}

	return r, nil
}

// Run executes the whole upload-and-load run.
func (r *Runner) Run(ctx context.Context) error {
	ctx = withStartedTime(ctx)
	l := log.Ctx(ctx)

	tasks, err := resolveTasks(r.cfg.TablePattern, r.cfg.SourcePattern, r.cfg.Project)
	if err != nil {
		return err
	}

	runs := groupTasks(tasks)
	if r.cfg.Header != "" && len(runs) > 1 {
		return xerrors.Errorf("explicit header cannot be combined with multiple destination tables (%d resolved)", len(runs))
	}

	l.Info().Int("tables", len(runs)).Int("files", len(tasks)).Bool("dry_run", r.cfg.DryRun).Msg("run planned")

	if r.cfg.DryRun {
		l.Info().Str("bucket", r.cfg.Bucket).Msg("dry run: skipping bucket check")
	} else if err := r.sink.EnsureBucket(ctx, r.cfg.Project, r.cfg.Location); err != nil {
		return err
	}

	for _, tr := range runs {
		err := r.runTable(ctx, tr)
		r.notify(ctx, tr, err)
		if err != nil {
			return err
		}
	}

	if t, ok := startedTimeFrom(ctx); ok {
		l.Info().Dur("elapsed", time.Since(t)).Msg("run finished")
	}

	return nil
}

type tableRun struct {
	table Table
	files []string
}

// groupTasks aggregates tasks per destination table, preserving first-seen
// table order and per-table file order.
func groupTasks(tasks []Task) []*tableRun {
	idx := map[Table]*tableRun{}
	var runs []*tableRun

	for _, task := range tasks {
		tr, ok := idx[task.Table]
		if !ok {
			tr = &tableRun{table: task.Table}
			idx[task.Table] = tr
			runs = append(runs, tr)
		}
		tr.files = append(tr.files, task.Source)
	}

	return runs
}

func (r *Runner) runTable(ctx context.Context, tr *tableRun) error {
	l := log.Ctx(ctx)

	header := r.cfg.Header
	if header == "" {
		h, err := readHeader(tr.files[0], r.cfg.Encoding)
		if err != nil {
			return err
		}
		header = h
	}

	schema, err := schemaFromHeader(header, r.cfg.Delimiter)
	if err != nil {
		return xerrors.Errorf("failed to derive schema for %s: %w", tr.table, err)
	}

	if r.cfg.DryRun {
		for _, f := range tr.files {
			l.Info().
				Str("file", f).
				Str("object", objectName(tr.table, f, 0, r.comp.Ext())).
				Msg("dry run: would upload")
		}
		l.Info().Str("table", tr.table.String()).Int("columns", len(schema)).Msg("dry run: would load")
		return nil
	}

	if err := r.wh.EnsureDataset(ctx, tr.table, r.cfg.Location); err != nil {
		return err
	}

	var objects []string
	for _, f := range tr.files {
		objs, err := r.uploadFile(ctx, tr.table, f)
		if err != nil {
			return err
		}
		objects = append(objects, objs...)

		l.Info().Str("file", f).Int("chunks", len(objs)).Msg("file uploaded")
	}

	uris := make([]string, len(objects))
	for i, o := range objects {
		uris[i] = fmt.Sprintf("gs://%s/%s", r.cfg.Bucket, o)
	}

	if len(uris) == 0 {
		l.Warn().Str("table", tr.table.String()).Msg("no data rows, skipping load")
		return nil
	}

	if err := r.wh.Load(ctx, tr.table, uris, schema, r.cfg.Delimiter, r.cfg.Overwrite); err != nil {
		return err
	}

	// Staged objects are only kept until the load succeeds. A failed
	// delete leaves garbage behind but does not fail the run.
	for _, o := range objects {
		if err := r.sink.Delete(ctx, o); err != nil {
			l.Warn().Err(err).Str("object", o).Msg("failed to delete staged object")
		}
	}

	l.Info().Str("table", tr.table.String()).Int("objects", len(uris)).Msg("table loaded")

	return nil
}

// uploadFile streams one file through the chunked pipeline and returns the
// staged object names in chunk order.
func (r *Runner) uploadFile(ctx context.Context, t Table, path string) ([]string, error) {
	src := &FileSource{
		Path:       path,
		Encoding:   r.cfg.Encoding,
		SkipHeader: r.cfg.Header == "",
	}

	reader, release, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	name := func(seq int) string { return objectName(t, path, seq, r.comp.Ext()) }
	u := NewUploader(ctx, r.sink, r.comp, name, r.cfg.MaxChunkSize)

	_, copyErr := copyBlocks(u, reader, r.cfg.BlockSize)

	// Finish must run even after a failed read so the pipeline's resources
	// are released.
	objects, finErr := u.Finish()
	if finErr != nil {
		return nil, xerrors.Errorf("failed to upload %s: %w", path, finErr)
	}
	if copyErr != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, copyErr)
	}

	return objects, nil
}

func (r *Runner) notify(ctx context.Context, tr *tableRun, runErr error) {
	if r.notifier == nil {
		return
	}

	res := &Result{Table: tr.table, Files: tr.files, Err: runErr}
	if err := r.notifier.Notify(ctx, res); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to notify")
	}
}
