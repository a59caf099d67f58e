/*

Package bqship uploads local CSV/text files to Cloud Storage as gzip
compressed, size-bounded chunks and loads them into BigQuery tables.

A run is described by a Config mapping source files to destination tables
through a {} placeholder shared by both patterns:

	cfg := bqship.Config{
		Project:       "my-project",
		TablePattern:  "warehouse.{}",
		SourcePattern: "exports/{}.csv",
		Location:      "US",
	}

	r, err := bqship.New(ctx, cfg)
	if err != nil {
		// ...
	}
	if err := r.Run(ctx); err != nil {
		// ...
	}

Every matched file is streamed through one pipeline: its header line is
skipped, the remaining bytes are split into chunks of at most
Config.MaxChunkSize, each chunk is gzipped and uploaded as its own object
while the file is still being read. After all of a table's files are staged,
one load job ingests every object; the destination schema maps each header
column to STRING. Staged objects are deleted once the load succeeds.

The command line interface lives in cmd/bqship.

*/
package bqship
