package main

import (
	"fmt"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/database/postgres"
	"jobs-etl/internal/database/schema"
	"jobs-etl/internal/events"
	"jobs-etl/internal/extract"
	"jobs-etl/internal/infrastructure/cache"
	"jobs-etl/internal/load"
	"jobs-etl/internal/pipeline"
	"jobs-etl/internal/pkg/jwt"
	"jobs-etl/internal/scheduler"
	"jobs-etl/internal/telemetry"
	"jobs-etl/internal/transform"

	"github.com/spf13/cobra"
)

type runOptions struct {
	source  string
	staging string
	noRetry bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once under the retry policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			log := root.logger(cfg)
			defer func() { _ = log.Sync() }()

			shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
			if err != nil {
				return err
			}
			defer shutdown()

			if opts.source != "" {
				cfg.Pipeline.SourcePath = opts.source
			}
			if opts.staging != "" {
				cfg.Pipeline.StagingDir = opts.staging
			}

			pub, err := events.NewPublisher(cfg.NATS, log)
			if err != nil {
				return err
			}
			defer pub.Close()

			redis := cache.NewRedis(cfg.Redis, log)
			defer func() { _ = redis.Close() }()

			policy := scheduler.RetryPolicyFromConfig(cfg.Retry)
			if opts.noRetry {
				policy.MaxRetries = 0
			}

			p := pipeline.NewPipeline(pipeline.Options{
				SourcePath: cfg.Pipeline.SourcePath,
				StagingDir: cfg.Pipeline.StagingDir,
				Delimiter:  cfg.Pipeline.Delimiter,
			}, postgres.Connector(cfg.Database), log)

			sched := scheduler.New(p,
				scheduler.NewRunLock(redis, cfg.Redis.LockTTL, log),
				scheduler.Options{Policy: policy},
				log,
				scheduler.NewCacheReporter(redis),
				scheduler.NewEventReporter(pub, cfg.NATS.Subject),
			)

			rep, err := sched.RunOnce(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(rep); err != nil {
				return err
			}

			switch rep.Status {
			case scheduler.StatusFailed:
				return withCode(exitFailure, fmt.Errorf("run %s failed: %s", rep.ID, rep.Error))
			case scheduler.StatusPartial:
				return withCode(exitPartial, fmt.Errorf("run %s: records %v failed to load", rep.ID, rep.Result.FailedIndices()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Source CSV file (default: ETL_SOURCE_PATH)")
	cmd.Flags().StringVar(&opts.staging, "staging", "", "Staging directory (default: ETL_STAGING_DIR)")
	cmd.Flags().BoolVar(&opts.noRetry, "no-retry", false, "Make a single attempt regardless of ETL_MAX_RETRIES")
	return cmd
}

func newSchemaCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the destination tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			log := root.logger(cfg)
			defer func() { _ = log.Sync() }()

			db, err := postgres.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := schema.NewManager(db, log).EnsureSchema(ctx); err != nil {
				return err
			}
			names := make([]string, 0, len(schema.Tables()))
			for _, t := range schema.Tables() {
				names = append(names, t.Name)
			}
			return writeJSON(map[string]any{"tables": names, "checksum": schema.Checksum()})
		},
	}
}

type extractOptions struct {
	staging   string
	delimiter string
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	var opts extractOptions

	cmd := &cobra.Command{
		Use:   "extract <source.csv>",
		Short: "Convert a source CSV into the tab-delimited intermediate file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return withCode(exitUsage, err)
			}
			log := root.logger(cfg)
			defer func() { _ = log.Sync() }()

			xopts := extract.Options{StagingDir: cfg.Pipeline.StagingDir, Delimiter: cfg.Pipeline.Delimiter}
			if opts.staging != "" {
				xopts.StagingDir = opts.staging
			}
			if opts.delimiter != "" {
				r := []rune(opts.delimiter)
				if len(r) != 1 {
					return withCode(exitUsage, fmt.Errorf("invalid --delimiter %q", opts.delimiter))
				}
				xopts.Delimiter = r[0]
			}

			res, err := extract.NewExtractor(xopts, log).Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"path": res.Path, "rows": res.Rows, "columns": res.Columns})
		},
	}

	cmd.Flags().StringVar(&opts.staging, "staging", "", "Staging directory (default: ETL_STAGING_DIR)")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "", "Source delimiter (default: ETL_SOURCE_DELIMITER)")
	return cmd
}

func newTransformCmd(root *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "transform <extracted.tsv>",
		Short: "Group intermediate rows into structured records written as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return withCode(exitUsage, err)
			}
			log := root.logger(cfg)
			defer func() { _ = log.Sync() }()

			records, err := transform.NewTransformer(log).Transform(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = stagingPath(cfg.Pipeline.StagingDir, transform.RecordsFile)
			}
			n, err := transform.WriteJSONL(records, out)
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"path": out, "records": n})
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output file (default: <staging>/"+transform.RecordsFile+")")
	return cmd
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <transformed.jsonl>",
		Short: "Load structured records into the destination tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			log := root.logger(cfg)
			defer func() { _ = log.Sync() }()

			records, err := transform.ReadJSONL(args[0])
			if err != nil {
				return err
			}

			db, err := postgres.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rep, err := load.NewLoader(log).Load(ctx, records, db)
			if werr := writeJSON(rep); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return err
			}
			if len(rep.Failures) > 0 {
				return withCode(exitPartial, fmt.Errorf("records %v failed to load", rep.FailedIndices()))
			}
			return nil
		},
	}
}

type tokenOptions struct {
	subject string
	ttl     time.Duration
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return withCode(exitUsage, err)
			}
			if cfg.JWT.Secret == "" {
				return withCode(exitUsage, fmt.Errorf("JWT_SECRET is not set"))
			}
			ttl := cfg.JWT.ExpiresIn
			if opts.ttl > 0 {
				ttl = opts.ttl
			}

			token, err := jwt.NewHMACService(cfg.JWT.Secret, cfg.JWT.Issuer, ttl).GenerateServiceToken(opts.subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.subject, "subject", "", "Token subject, e.g. the calling service (required)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Token lifetime (default: JWT_EXPIRES_IN)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
