package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/api"
	"github.com/insightdelivered/metals-cost-ledger/internal/config"
	"github.com/insightdelivered/metals-cost-ledger/internal/ledger"
	"github.com/insightdelivered/metals-cost-ledger/internal/logger"
	"github.com/insightdelivered/metals-cost-ledger/internal/mailsource"
	"github.com/insightdelivered/metals-cost-ledger/internal/reconcile"
	"github.com/insightdelivered/metals-cost-ledger/internal/writer"
)

const version = "1.0.0"

type options struct {
	configPath string
	source     string
	dir        string
	ledgerPath string
	dryRun     bool
	serve      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (optional; METALS_* env vars always apply)")
	flag.StringVar(&opts.source, "source", "", "Message source: dir or gmail (overrides source.kind)")
	flag.StringVar(&opts.dir, "dir", "", "Directory of .json/.eml messages for the dir source")
	flag.StringVar(&opts.ledgerPath, "ledger", "", "Ledger CSV path (overrides ledger.path)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Reconcile and print rows without touching the ledger")
	flag.BoolVar(&opts.serve, "serve", false, "Run the HTTP API instead of a single pass")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Metals Cost Ledger
by Insight Delivered

Reads bullion dealer order emails, reconciles each order into one cost
row per metal and merges the rows into a deduplicated CSV ledger.

Usage:
  metals-cost-ledger [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Reconcile saved messages from ./mail into the default ledger
  metals-cost-ledger --dir=mail

  # Preview rows from Gmail without writing
  METALS_GMAIL_ACCESS_TOKEN=ya29... metals-cost-ledger --source=gmail --dry-run

  # Custom ledger path
  metals-cost-ledger --dir=mail --ledger=costs.csv

  # Serve the HTTP API
  metals-cost-ledger --config=metals.yaml --serve

Exit status:
  0  rows merged, or nothing to do
  1  messages found but no costs extracted, or a run failure
  2  invalid configuration
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("metals-cost-ledger v%s\n", version)
		os.Exit(0)
	}
	if *helpFlag {
		flag.Usage()
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		fatalf(2, "Unexpected arguments: %s\n", strings.Join(flag.Args(), " "))
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	applyOverrides(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logger: %v\n", err)
		return 2
	}
	defer log.Sync() //nolint:errcheck

	store, ledgerName, closeStore, err := openLedger(cfg.Ledger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	engine := reconcile.NewEngine(log)

	if opts.serve {
		return serve(cfg, engine, store, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, queries := openSource(cfg, log)
	fmt.Printf("Reading messages: %s source, %d query(ies)\n", cfg.Source.Kind, len(queries))

	out, err := engine.Run(ctx, src, reconcile.RunOptions{
		Queries:    queries,
		MaxPages:   cfg.Source.MaxPages,
		PageSize:   cfg.Source.PageSize,
		Ledger:     store,
		LedgerName: ledgerName,
		DryRun:     opts.dryRun,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("  Fetched %d message(s) from %d listed", out.Fetch.Fetched, out.Fetch.Listed)
	if n := out.Fetch.QueryErrors + out.Fetch.FetchErrors; n > 0 {
		fmt.Printf(", %d failure(s) skipped", n)
	}
	fmt.Println()
	if out.Messages > 0 {
		fmt.Printf("  Found %d order(s), %d skipped, %d cancelled\n", out.Orders, out.Skipped, out.Cancelled)
		fmt.Printf("  Built %d cost row(s)\n", len(out.Rows))
	}

	if opts.dryRun && len(out.Rows) > 0 {
		w := &writer.CSVWriter{IncludeHeader: true}
		if err := w.Write(os.Stdout, out.Rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Println(out.Line)
	return out.ExitCode
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.source != "" {
		cfg.Source.Kind = strings.ToLower(opts.source)
	}
	if opts.dir != "" {
		cfg.Source.Dir = opts.dir
		if opts.source == "" {
			cfg.Source.Kind = "dir"
		}
	}
	if opts.ledgerPath != "" {
		cfg.Ledger.Path = opts.ledgerPath
	}
}

// openLedger returns the configured store, the name used in report lines
// and a close func that is always safe to call.
func openLedger(cfg config.LedgerConfig) (ledger.Store, string, func(), error) {
	csvStore := &ledger.CSVStore{Path: cfg.Path}
	noop := func() {}

	switch {
	case cfg.Backend == "sqlite":
		db, err := ledger.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, "", noop, err
		}
		return db, cfg.SQLitePath, func() { db.Close() }, nil
	case cfg.MirrorSQLite:
		db, err := ledger.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, "", noop, err
		}
		return ledger.Mirror{csvStore, db}, cfg.Path, func() { db.Close() }, nil
	default:
		return csvStore, cfg.Path, noop, nil
	}
}

func openSource(cfg config.Config, log *zap.Logger) (mailsource.Source, []string) {
	queries := cfg.Source.Queries
	if cfg.Source.Kind == "gmail" {
		if len(queries) == 0 {
			queries = mailsource.DefaultGmailQueries
		}
		return mailsource.NewGmailSource(mailsource.GmailOptions{
			BaseURL:           cfg.Gmail.BaseURL,
			User:              cfg.Gmail.User,
			AccessToken:       cfg.Gmail.AccessToken,
			Timeout:           cfg.Gmail.Timeout,
			MaxRetries:        cfg.Gmail.MaxRetries,
			RequestsPerSecond: cfg.Gmail.RequestsPerSecond,
			CacheTTL:          cfg.Gmail.CacheTTL,
		}, log), queries
	}
	if len(queries) == 0 {
		queries = []string{"*"}
	}
	return mailsource.NewDirSource(cfg.Source.Dir, log), queries
}

func serve(cfg config.Config, engine *reconcile.Engine, store ledger.Store, log *zap.Logger) int {
	app := api.NewApp(api.NewHandler(engine, store, version, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}()

	fmt.Printf("Listening on %s\n", cfg.Server.Addr)
	if err := app.Listen(cfg.Server.Addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func fatalf(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}
