package bqship

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"google.golang.org/api/googleapi"
)

// warehouse abstracts dataset creation and the load job, so the pipeline is
// testable without BigQuery.
type warehouse interface {
	EnsureDataset(ctx context.Context, t Table, location string) error
	Load(ctx context.Context, t Table, uris []string, schema bigquery.Schema, delimiter string, overwrite bool) error
}

type bqWarehouse struct {
	client *bigquery.Client
}

func newBQWarehouse(ctx context.Context, project string) (warehouse, error) {
	c, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, xerrors.Errorf("failed to build bigquery client for %s: %w", project, err)
	}

	return &bqWarehouse{client: c}, nil
}

// EnsureDataset creates the destination dataset in the configured location
// if it does not exist. A concurrent creation racing us is fine.
func (w *bqWarehouse) EnsureDataset(ctx context.Context, t Table, location string) error {
	ds := w.client.DatasetInProject(t.Project, t.Dataset)

	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !hasStatusCode(err, http.StatusNotFound) {
		return xerrors.Errorf("failed to get metadata of dataset %s: %w", t.Dataset, err)
	}

	log.Ctx(ctx).Info().Str("dataset", t.Dataset).Str("location", location).Msg("creating dataset")

	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
		if hasStatusCode(err, http.StatusConflict) {
			return nil
		}
		return xerrors.Errorf("failed to create dataset %s: %w", t.Dataset, err)
	}

	return nil
}

// Load runs one load job ingesting every staged object into the table. The
// destination table is created by the job when missing. BigQuery treats the
// URI set as unordered row sources, so chunk order does not affect the load.
func (w *bqWarehouse) Load(ctx context.Context, t Table, uris []string, schema bigquery.Schema, delimiter string, overwrite bool) error {
	ref := bigquery.NewGCSReference(uris...)
	ref.SourceFormat = bigquery.CSV
	ref.FieldDelimiter = delimiter
	ref.Schema = schema

	loader := w.client.DatasetInProject(t.Project, t.Dataset).Table(t.Table).LoaderFrom(ref)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	if overwrite {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return xerrors.Errorf("failed to run load job for %s: %w", t, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("failed to wait for load job for %s: %w", t, err)
	}
	if err := status.Err(); err != nil {
		return xerrors.Errorf("load job for %s failed: %w", t, err)
	}

	return nil
}

func hasStatusCode(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
