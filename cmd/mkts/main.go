package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basekick-labs/mkts/internal/config"
	"github.com/basekick-labs/mkts/internal/export"
	"github.com/basekick-labs/mkts/internal/logger"
	"github.com/basekick-labs/mkts/pkg/client"
	"github.com/basekick-labs/mkts/pkg/models"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

const usage = `usage: mkts <command> [flags]

commands:
  query     query one or more symbols
  write     write CSV rows to a dataset
  symbols   list symbols or dataset keys
  create    create a dataset bucket
  destroy   remove a dataset bucket
  version   print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "query":
		err = runQuery(ctx, cfg, args, os.Stdout)
	case "write":
		err = runWrite(ctx, cfg, args, os.Stdin)
	case "symbols":
		err = runSymbols(ctx, cfg, args, os.Stdout)
	case "create":
		err = runCreate(ctx, cfg, args)
	case "destroy":
		err = runDestroy(ctx, cfg, args)
	case "version":
		fmt.Println(Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("Command failed")
		os.Exit(1)
	}
}

// clientFlags registers the connection overrides shared by all commands
type clientFlags struct {
	endpoint *string
	protocol *string
}

func addClientFlags(fs *flag.FlagSet, cfg *config.Config) clientFlags {
	return clientFlags{
		endpoint: fs.String("endpoint", cfg.Client.Endpoint, "server base URL"),
		protocol: fs.String("protocol", cfg.Client.Protocol, "wire protocol (msgpack or json)"),
	}
}

func newClient(cfg *config.Config, cf clientFlags) (*client.Client, error) {
	c := cfg.Client
	c.Endpoint = *cf.endpoint
	c.Protocol = strings.ToLower(*cf.protocol)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return client.NewClient(&client.Config{
		Endpoint:        c.Endpoint,
		Protocol:        c.Protocol,
		Timeout:         time.Duration(c.Timeout) * time.Second,
		Compression:     c.Compression,
		MaxResponseSize: c.MaxResponseSize,
		TruncateStrings: c.TruncateStrings,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: time.Duration(c.BreakerCooldown) * time.Second,
		Logger:          logger.Get("client"),
	})
}

func runQuery(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	symbols := fs.String("symbols", "", "comma separated symbols (required)")
	timeframe := fs.String("timeframe", "1Min", "timeframe, e.g. 1Min or 1D")
	attrGroup := fs.String("attr", "OHLCV", "attribute group")
	start := fs.String("start", "", "start time (RFC3339 or epoch seconds)")
	end := fs.String("end", "", "end time (RFC3339 or epoch seconds)")
	limit := fs.Int("limit", 0, "maximum number of rows per symbol")
	fromStart := fs.Bool("from-start", false, "count the limit from the start instead of the end")
	columns := fs.String("columns", "", "comma separated columns to return")
	format := fs.String("format", "table", "output format: table, csv, arrow or parquet")
	outDir := fs.String("o", ".", "output for arrow and parquet files: a directory, s3://bucket/prefix or az://container/prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbols == "" {
		return fmt.Errorf("-symbols is required")
	}

	params, err := models.NewQueryParams(splitList(*symbols), *timeframe, *attrGroup)
	if err != nil {
		return err
	}
	if params.Start, err = parseTime(*start); err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if params.End, err = parseTime(*end); err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}
	params.Limit = *limit
	params.LimitFromStart = *fromStart
	params.Columns = splitList(*columns)

	c, err := newClient(cfg, cf)
	if err != nil {
		return err
	}
	reply, err := c.Query(ctx, params)
	if err != nil {
		return err
	}
	tables, err := reply.Tables()
	if err != nil && len(tables) == 0 {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Some query responses failed")
	}

	switch *format {
	case "table":
		return writeTables(stdout, tables, false)
	case "csv":
		return writeTables(stdout, tables, true)
	case "arrow", "parquet":
		sink, err := export.NewSink(ctx, *outDir, exportConfig(cfg), logger.Get("export"))
		if err != nil {
			return err
		}
		if *format == "arrow" {
			return exportFiles(ctx, sink, tables, exportArrow, ".arrow")
		}
		return exportFiles(ctx, sink, tables, exportParquet, ".parquet")
	default:
		return fmt.Errorf("unsupported -format %q", *format)
	}
}

func exportConfig(cfg *config.Config) export.Config {
	e := cfg.Export
	return export.Config{
		S3: export.S3Config{
			Region:    e.S3Region,
			Endpoint:  e.S3Endpoint,
			AccessKey: e.S3AccessKey,
			SecretKey: e.S3SecretKey,
			PathStyle: e.S3PathStyle,
		},
		Azure: export.AzureConfig{
			ConnectionString:   e.AzureConnection,
			AccountName:        e.AzureAccountName,
			AccountKey:         e.AzureAccountKey,
			SASToken:           e.AzureSASToken,
			UseManagedIdentity: e.AzureManagedIdentity,
			Endpoint:           e.AzureEndpoint,
		},
	}
}

func runWrite(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	key := fs.String("key", "", "dataset key, e.g. AAPL/1Min/OHLCV (required)")
	schema := fs.String("schema", cfg.Write.Schema, "column layout, e.g. Epoch:i8,Open:f4,Close:f4")
	file := fs.String("file", "-", "CSV file with a header row ('-' for stdin)")
	variable := fs.Bool("variable-length", cfg.Write.IsVariableLength, "write to a variable length bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dk, err := models.ParseDatasetKey(*key)
	if err != nil {
		return err
	}
	specs, err := config.ParseSchema(*schema)
	if err != nil {
		return fmt.Errorf("invalid -schema: %w", err)
	}

	in := stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	batch, err := readCSV(in, specs)
	if err != nil {
		return err
	}

	c, err := newClient(cfg, cf)
	if err != nil {
		return err
	}
	if err := c.Write(ctx, dk, batch, *variable); err != nil {
		return err
	}
	log.Info().Str("dataset", dk.String()).Int("rows", batch.Len()).Msg("Write completed")
	return nil
}

func runSymbols(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("symbols", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	keys := fs.Bool("keys", false, "list full dataset keys instead of symbols")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cfg, cf)
	if err != nil {
		return err
	}
	format := client.SymbolFormat
	if *keys {
		format = client.KeyFormat
	}
	names, err := c.ListSymbols(ctx, format)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return nil
}

func runCreate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	key := fs.String("key", "", "dataset key, e.g. AAPL/1Min/OHLCV (required)")
	schema := fs.String("schema", cfg.Write.Schema, "column layout, e.g. Epoch:i8,Open:f4,Close:f4")
	variable := fs.Bool("variable-length", cfg.Write.IsVariableLength, "create a variable length bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dk, err := models.ParseDatasetKey(*key)
	if err != nil {
		return err
	}
	specs, err := config.ParseSchema(*schema)
	if err != nil {
		return fmt.Errorf("invalid -schema: %w", err)
	}
	c, err := newClient(cfg, cf)
	if err != nil {
		return err
	}
	if err := c.Create(ctx, dk, specs, *variable); err != nil {
		return err
	}
	log.Info().Str("dataset", dk.String()).Msg("Bucket created")
	return nil
}

func runDestroy(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("destroy", flag.ContinueOnError)
	cf := addClientFlags(fs, cfg)
	key := fs.String("key", "", "dataset key, e.g. AAPL/1Min/OHLCV (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dk, err := models.ParseDatasetKey(*key)
	if err != nil {
		return err
	}
	c, err := newClient(cfg, cf)
	if err != nil {
		return err
	}
	if err := c.Destroy(ctx, dk); err != nil {
		return err
	}
	log.Info().Str("dataset", dk.String()).Msg("Bucket destroyed")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTime accepts RFC3339 or integer epoch seconds. Empty means unbounded.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var sec int64
	var trailing string
	if n, _ := fmt.Sscanf(s, "%d%s", &sec, &trailing); n == 1 {
		return time.Unix(sec, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}
