package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cognicore/breachwatch/internal/feed"
	"github.com/cognicore/breachwatch/internal/htmltable"
	"github.com/cognicore/breachwatch/internal/logger"
	"github.com/cognicore/breachwatch/pkg/breachwatch"
	"github.com/cognicore/breachwatch/pkg/breachwatch/config"
	"github.com/cognicore/breachwatch/pkg/breachwatch/ingest"
	"github.com/cognicore/breachwatch/pkg/breachwatch/metrics"
	"github.com/cognicore/breachwatch/pkg/breachwatch/notify"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store/postgres"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store/sqlite"
)

func main() {
	var (
		dbPath        = flag.String("db", "", "SQLite database path")
		postgresDSN   = flag.String("postgres", "", "PostgreSQL DSN (instead of --db)")
		dataPath      = flag.String("data", "", "Input JSONL file")
		htmlPath      = flag.String("html", "", "Input HTML listing (instead of --data)")
		baseURL       = flag.String("base-url", "", "Base URL for relative links in --html")
		sourceID      = flag.Int("source", 0, "Source id of the batch (required)")
		sourcesPath   = flag.String("sources", "", "Sources file (optional)")
		taxonomyPath  = flag.String("taxonomy", "", "Taxonomy file (optional)")
		logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat     = flag.String("log-format", "text", "Log format: text or json")
		kafkaBrokers  = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers for change events (optional)")
		kafkaTopic    = flag.String("kafka-topic", "breach-events", "Kafka topic for change events")
		metricsAddr   = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address until interrupted (optional)")
		dryRun        = flag.Bool("dry-run", false, "Resolve records against the catalog without writing")
		showConflicts = flag.Bool("show-conflicts", false, "Print conflicts recorded for review after the run")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Format: *logFormat, Service: "breach-ingest"})

	if *sourceID <= 0 {
		log.Fatal("--source required")
	}
	if (*dbPath == "") == (*postgresDSN == "") {
		log.Fatal("exactly one of --db or --postgres required")
	}
	if (*dataPath == "") == (*htmlPath == "") {
		log.Fatal("exactly one of --data or --html required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration components
	loader := config.Loader{
		SourcesPath:  *sourcesPath,
		TaxonomyPath: *taxonomyPath,
		Logger:       log.Logger,
	}
	components, err := loader.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "error", err)
	}

	batch, err := loadBatch(*dataPath, *htmlPath, *baseURL, *sourceID, log)
	if err != nil {
		log.Fatal("failed to load extractions", "error", err)
	}
	log.Info("loaded extractions", "records", len(batch), "source_id", *sourceID)

	// Open catalog
	var st store.Store
	if *postgresDSN != "" {
		st, err = postgres.Open(ctx, *postgresDSN)
	} else {
		st, err = sqlite.OpenSQLite(ctx, *dbPath)
	}
	if err != nil {
		log.Fatal("failed to open catalog", "error", err)
	}

	reporter := metrics.NewReporter()
	opts := breachwatch.Options{
		Store:      st,
		Normalizer: components.Normalizer,
		Reporter:   reporter,
		Logger:     log.Logger,
	}

	var publisher *notify.Publisher
	if *kafkaBrokers != "" && !*dryRun {
		publisher, err = notify.NewPublisher(notify.Config{
			Brokers:      strings.Split(*kafkaBrokers, ","),
			Topic:        *kafkaTopic,
			BatchTimeout: 50 * time.Millisecond,
		}, log.Logger)
		if err != nil {
			log.Fatal("failed to create event publisher", "error", err)
		}
		defer publisher.Close()
		opts.Notifier = publisher
	}

	bw, err := breachwatch.New(opts)
	if err != nil {
		log.Fatal("failed to create pipeline", "error", err)
	}
	defer bw.Close()

	if *dryRun {
		preview(ctx, bw, batch, *sourceID)
		return
	}

	report, err := bw.Ingest(ctx, *sourceID, batch)
	fmt.Print(report.String())
	for _, e := range report.Errors {
		fmt.Printf("  ! %s\n", e.Error())
	}
	if err != nil {
		log.Error("run interrupted", "error", err)
	}

	if *showConflicts {
		printConflicts(ctx, bw, report)
	}

	if *metricsAddr != "" && err == nil {
		serveMetrics(ctx, *metricsAddr, reporter, log)
	}
}

func loadBatch(dataPath, htmlPath, base string, sourceID int, log *logger.Logger) ([]record.RawExtraction, error) {
	if dataPath != "" {
		return feed.LoadFromJSONL(dataPath, sourceID, log.Logger)
	}

	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("--base-url: %w", err)
		}
		baseURL = u
	}
	f, err := os.Open(htmlPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return htmltable.Parse(f, baseURL, sourceID)
}

func preview(ctx context.Context, bw *breachwatch.Breachwatch, batch []record.RawExtraction, sourceID int) {
	for i, raw := range batch {
		if raw.SourceID == 0 {
			raw.SourceID = sourceID
		}
		res, err := bw.Preview(ctx, raw)
		if err != nil {
			fmt.Printf("%4d  FAILED     %v\n", i, err)
			continue
		}
		fmt.Printf("%4d  %-9s  %s  %-6s  %s\n", i, res.Outcome, short(res.UID), res.Kind, res.Record.OrganizationName)
		if len(res.Changed) > 0 {
			fmt.Printf("      changed: %s\n", strings.Join(res.Changed, ", "))
		}
	}
}

func printConflicts(ctx context.Context, bw *breachwatch.Breachwatch, report *ingest.Report) {
	seen := make(map[string]bool)
	for _, c := range report.Conflicts {
		if seen[c.IncidentUID] {
			continue
		}
		seen[c.IncidentUID] = true

		stored, err := bw.Conflicts(ctx, c.IncidentUID)
		if err != nil {
			fmt.Printf("  conflicts for %s: %v\n", c.IncidentUID, err)
			continue
		}
		for _, sc := range stored {
			fmt.Printf("  [%s] %s %s: %q -> %q (run %s)\n",
				sc.Kind, short(sc.IncidentUID), sc.Field, sc.Existing, sc.Incoming, sc.RunID)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reporter *metrics.Reporter, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reporter.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", "error", err)
	}
}

func short(uid string) string {
	if len(uid) > 12 {
		return uid[:12]
	}
	return uid
}
