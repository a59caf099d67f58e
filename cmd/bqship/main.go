package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/xerrors"

	"github.com/bqship/bqship"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "bqship",
		Usage: "upload CSV files to Cloud Storage in gzip chunks and load them into BigQuery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "project",
				Usage:    "GCP project id",
				EnvVars:  []string{"BQSHIP_PROJECT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "table",
				Usage:    "destination table pattern, [project:]dataset.table with optional {}",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "source",
				Usage:    "source file glob with optional {}",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "bucket",
				Usage:   "staging bucket (derived from the project when empty)",
				EnvVars: []string{"BQSHIP_BUCKET"},
			},
			&cli.StringFlag{
				Name:    "location",
				Usage:   "location for created datasets and buckets (US or EU)",
				Value:   "US",
				EnvVars: []string{"BQSHIP_LOCATION"},
			},
			&cli.StringFlag{
				Name:  "delimiter",
				Usage: "field delimiter",
				Value: ",",
			},
			&cli.StringFlag{
				Name:  "header",
				Usage: "explicit header line; files are treated as headerless (single table only)",
			},
			&cli.StringFlag{
				Name:  "encoding",
				Usage: "source file encoding by IANA name, e.g. Shift_JIS",
			},
			&cli.StringFlag{
				Name:  "max-chunk-size",
				Usage: "per-object size ceiling before compression",
				Value: "4GiB",
			},
			&cli.StringFlag{
				Name:  "block-size",
				Usage: "file read granularity",
				Value: "8MiB",
			},
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "truncate destination tables instead of appending",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "plan and log without touching remote state",
			},
			&cli.StringFlag{
				Name:    "slack-token",
				Usage:   "notify per-table results to Slack",
				EnvVars: []string{"BQSHIP_SLACK_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "slack-channel",
				EnvVars: []string{"BQSHIP_SLACK_CHANNEL"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "human friendly log output",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bqship: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"), c.Bool("pretty"))
	if err != nil {
		return err
	}
	ctx := logger.WithContext(context.Background())

	enc, err := lookupEncoding(c.String("encoding"))
	if err != nil {
		return err
	}

	maxChunkSize, err := units.RAMInBytes(c.String("max-chunk-size"))
	if err != nil {
		return xerrors.Errorf("invalid max-chunk-size: %w", err)
	}
	blockSize, err := units.RAMInBytes(c.String("block-size"))
	if err != nil {
		return xerrors.Errorf("invalid block-size: %w", err)
	}

	cfg := bqship.Config{
		Project:       c.String("project"),
		TablePattern:  c.String("table"),
		SourcePattern: c.String("source"),
		Bucket:        c.String("bucket"),
		Location:      c.String("location"),
		Delimiter:     c.String("delimiter"),
		Header:        c.String("header"),
		Encoding:      enc,
		Overwrite:     c.Bool("replace"),
		DryRun:        c.Bool("dry-run"),
		MaxChunkSize:  maxChunkSize,
		BlockSize:     blockSize,
	}

	var opts []bqship.Option
	if token := c.String("slack-token"); token != "" {
		opts = append(opts, bqship.WithNotifier(&bqship.SlackNotifier{
			Token:   token,
			Channel: c.String("slack-channel"),
		}))
	}

	r, err := bqship.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	return r.Run(ctx)
}

func newLogger(level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, xerrors.Errorf("invalid log level %q: %w", level, err)
	}

	var w = os.Stderr
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w})
	}

	return logger, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, xerrors.Errorf("unknown encoding %q", name)
	}

	return enc, nil
}
