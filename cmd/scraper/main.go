package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/books-harvest/catalog"
	"github.com/aluiziolira/books-harvest/config"
	"github.com/aluiziolira/books-harvest/dataset"
	"github.com/aluiziolira/books-harvest/models"
	"github.com/aluiziolira/books-harvest/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		return 1
	}

	cfg, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	slog.Info("starting harvest",
		slog.String("start_url", cfg.StartURL()),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Duration("page_delay", cfg.PageDelay),
		slog.Duration("item_delay", cfg.ItemDelay),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer shutdownMetricsServer(metricsServer)

	startTime := time.Now()
	result, err := s.Run(ctx)
	if err != nil {
		logFatalRun(err)
		return 1
	}

	if cfg.Strict && result.Failed() > 0 {
		slog.Error("strict mode: refusing to publish a dataset with failed items",
			slog.Int("failed", result.Failed()),
			slog.String("output", cfg.OutputFile),
		)
		printSummary(os.Stdout, result, time.Since(startTime), "")
		return 1
	}

	if err := publish(cfg, result.Books); err != nil {
		if errors.Is(err, dataset.ErrNoRecords) {
			slog.Error("no records harvested, previous dataset left in place",
				slog.Int("failed", result.Failed()),
				slog.String("output", cfg.OutputFile),
			)
			printSummary(os.Stdout, result, time.Since(startTime), "")
			return 1
		}
		slog.Error("publishing dataset failed", slog.Any("error", err))
		return 1
	}

	printSummary(os.Stdout, result, time.Since(startTime), cfg.OutputFile)
	return 0
}

func parseFlags(args []string, output io.Writer) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL of the catalog site")
	fs.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum listing pages to walk (0 walks all)")
	pageDelayMs := fs.Int("page-delay", int(cfg.PageDelay/time.Millisecond), "Delay between listing pages (milliseconds)")
	itemDelayMs := fs.Int("item-delay", int(cfg.ItemDelay/time.Millisecond), "Delay between detail pages (milliseconds)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Attempts per URL, including the first")
	retryDelayMs := fs.Int("retry-delay", int(cfg.RetryDelay/time.Millisecond), "Fixed delay between attempts (milliseconds)")
	fs.BoolVar(&cfg.RetryClientErrors, "retry-client-errors", cfg.RetryClientErrors, "Retry 4xx responses as well")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Dataset file path")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	fs.BoolVar(&cfg.BestEffort, "best-effort", cfg.BestEffort, "Keep links collected before a catalog walk failure")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Do not publish when any item failed")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.PageDelay = time.Duration(*pageDelayMs) * time.Millisecond
	cfg.ItemDelay = time.Duration(*itemDelayMs) * time.Millisecond
	cfg.RetryDelay = time.Duration(*retryDelayMs) * time.Millisecond
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid SCRAPER_TIMEOUT: %w", err)
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvBool("SCRAPER_BEST_EFFORT"); err != nil {
		return fmt.Errorf("invalid SCRAPER_BEST_EFFORT: %w", err)
	} else if ok {
		cfg.BestEffort = value
	}
	return nil
}

func publish(cfg *config.Config, books []*models.Book) error {
	writer, err := dataset.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return err
	}
	if err := dataset.Publish(writer, books); err != nil {
		return err
	}
	slog.Info("dataset published",
		slog.String("output", cfg.OutputFile),
		slog.String("format", cfg.OutputFormat),
		slog.Int("records", len(books)),
	)

	if cfg.OutputFormat == dataset.FormatJSON {
		return nil
	}
	store, err := catalog.NewStore(cfg.OutputFile, 0)
	if err != nil {
		return err
	}
	if err := store.Load(); err != nil {
		return fmt.Errorf("reload published dataset: %w", err)
	}
	categories, err := store.Categories()
	if err != nil {
		return err
	}
	slog.Info("dataset verified",
		slog.Int("books", store.Len()),
		slog.Int("categories", len(categories)),
	)
	return nil
}

func logFatalRun(err error) {
	var walkErr *scraper.WalkError
	if errors.As(err, &walkErr) {
		slog.Error("catalog walk failed, nothing written",
			slog.String("url", walkErr.URL),
			slog.Int("page", walkErr.Page),
			slog.Any("error", walkErr.Err),
		)
		return
	}
	slog.Error("harvest failed, nothing written", slog.Any("error", err))
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, result *models.HarvestResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Harvest complete")
	fmt.Fprintf(w, "  Run:           %s\n", result.RunID)
	fmt.Fprintf(w, "  Pages walked:  %d\n", result.PageCount)
	fmt.Fprintf(w, "  Links found:   %d\n", result.LinkCount)
	fmt.Fprintf(w, "  Succeeded:     %d\n", result.Succeeded())
	fmt.Fprintf(w, "  Failed:        %d\n", result.Failed())
	if result.DuplicateCount > 0 {
		fmt.Fprintf(w, "  Duplicates:    %d\n", result.DuplicateCount)
	}
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(w, "    %s\n", failure.String())
	}
	if result.Partial {
		fmt.Fprintf(w, "  Partial:       %s\n", result.PartialReason)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	if outputFile != "" {
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
