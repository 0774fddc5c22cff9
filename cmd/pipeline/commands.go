package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"arxiv_rag_go_backend/cmd/api/config"
	"arxiv_rag_go_backend/internal/arxiv"
	"arxiv_rag_go_backend/internal/database"
	"arxiv_rag_go_backend/internal/logging"
	"arxiv_rag_go_backend/internal/observability"
	"arxiv_rag_go_backend/internal/pipeline"
	"arxiv_rag_go_backend/internal/services"
	"arxiv_rag_go_backend/internal/utils/broker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// --- Flags ---
var (
	settings    = pipeline.DefaultSettings()
	healthURL   string
	databaseURL string

	category     string
	maxResults   int
	offset       int
	fromDate     string
	toDate       string
	downloadPDFs bool
	forcePDFs    bool
	skipChecks   bool

	cfg    *config.Config
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:          "pipeline",
		Short:        "Batch jobs for the arXiv RAG backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger = logging.Setup(cfg.ServiceName+"_pipeline", cfg.Debug)
			if databaseURL == "" {
				databaseURL = cfg.Postgres.DatabaseURL
			}
			return nil
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run hello_world >> check_services",
		RunE:  runServiceCheck,
	}

	helloCmd = &cobra.Command{
		Use:   "hello",
		Short: "Run only the hello_world task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), "hello_world", pipeline.NewHelloWorldTask(logger))
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check that the API and the database are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), "check_services",
				pipeline.NewCheckServicesTask(healthURL, databaseURL, logger))
		},
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Fetch papers from arXiv and store them",
		RunE:  runIngest,
	}
)

func init() {
	rootCmd.PersistentFlags().IntVar(&settings.Retries, "retries", settings.Retries, "extra attempts for a failing task")
	rootCmd.PersistentFlags().DurationVar(&settings.RetryDelay, "retry-delay", settings.RetryDelay, "wait between task attempts")
	rootCmd.PersistentFlags().StringVar(&healthURL, "health-url", "http://localhost:8000/api/v1/health", "API health endpoint")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database URL (default POSTGRES_DATABASE_URL)")

	ingestCmd.Flags().StringVar(&category, "category", "", "arXiv category (default ARXIV_SEARCH_CATEGORY)")
	ingestCmd.Flags().IntVar(&maxResults, "max-results", 0, "papers to fetch (default ARXIV_MAX_RESULTS)")
	ingestCmd.Flags().IntVar(&offset, "start", 0, "result offset")
	ingestCmd.Flags().StringVar(&fromDate, "from", "", "submitted on or after YYYYMMDD")
	ingestCmd.Flags().StringVar(&toDate, "to", "", "submitted on or before YYYYMMDD")
	ingestCmd.Flags().BoolVar(&downloadPDFs, "download-pdfs", false, "download PDFs into ARXIV_PDF_CACHE_DIR")
	ingestCmd.Flags().BoolVar(&forcePDFs, "force", false, "download PDFs even when cached")
	ingestCmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "do not run check_services first")

	rootCmd.AddCommand(runCmd, helloCmd, checkCmd, ingestCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runPipeline(parent context.Context, name string, tasks ...pipeline.Task) error {
	ctx, stop := signalContext(parent)
	defer stop()

	p := pipeline.New(name, settings, pipeline.WithLogger(logger))
	if err := p.Add(tasks...); err != nil {
		return err
	}
	results, err := p.Run(ctx)
	for _, r := range results {
		fmt.Printf("%-16s %-16s attempts=%d\n", r.Name, r.State, r.Attempts)
	}
	return err
}

func runServiceCheck(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd.Context(), "hello_world_check",
		pipeline.NewHelloWorldTask(logger),
		pipeline.NewCheckServicesTask(healthURL, databaseURL, logger, pipeline.HelloWorldTaskName),
	)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	pg := cfg.Postgres
	pg.DatabaseURL = databaseURL
	db := database.NewPostgresDatabase(pg, logging.Component(logger, "database"))
	defer db.Shutdown()

	metrics := observability.NewDefaultMetrics()
	client := arxiv.NewClient(cfg.Arxiv,
		arxiv.WithLogger(logger),
		arxiv.WithMetrics(metrics),
	)

	events := broker.NewBroker[services.IngestEvent](64)
	progress := events.Subscribe(services.IngestTopic)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range progress {
			printEvent(e)
		}
	}()

	// the database is opened by the ingest task, after check_services passed
	ingestion := &pipeline.LazyIngester{
		Open: func(ctx context.Context) (pipeline.Ingester, error) {
			if err := db.Startup(ctx); err != nil {
				return nil, fmt.Errorf("connect database: %w", err)
			}
			return services.NewIngestionService(client, db, logger,
				services.WithPDFInspector(services.NewPDFInspectionService()),
				services.WithEvents(events),
				services.WithIngestionMetrics(metrics),
			), nil
		},
	}
	ingestTask := pipeline.NewIngestPapersTask(ingestion, services.IngestOptions{
		Fetch: arxiv.FetchOptions{
			Category: category,
			PageSize: maxResults,
			Offset:   offset,
			FromDate: fromDate,
			ToDate:   toDate,
		},
		DownloadPDFs:  downloadPDFs,
		ForceDownload: forcePDFs,
	}, logger)

	tasks := []pipeline.Task{ingestTask}
	if !skipChecks {
		ingestTask.TaskDependencies = []string{pipeline.CheckServicesTaskName}
		tasks = append([]pipeline.Task{pipeline.NewCheckServicesTask(healthURL, databaseURL, logger)}, tasks...)
	}

	p := pipeline.New("ingest", settings, pipeline.WithLogger(logger))
	if err := p.Add(tasks...); err != nil {
		return err
	}
	_, err := p.Run(ctx)

	events.Unsubscribe(services.IngestTopic, progress)
	<-done

	r := ingestTask.Report
	fmt.Printf("fetched=%d stored=%d created=%d pdfs=%d failures=%d\n",
		r.Fetched, r.Stored, r.Created, r.PDFsDownloaded, r.Failures)
	return err
}

func printEvent(e services.IngestEvent) {
	switch {
	case e.Err != nil:
		fmt.Printf("  %-10s %-14s %v\n", e.Stage, e.ArxivID, e.Err)
	case e.Pages > 0:
		fmt.Printf("  %-10s %-14s %d pages\n", e.Stage, e.ArxivID, e.Pages)
	case e.ArxivID != "":
		fmt.Printf("  %-10s %s\n", e.Stage, e.ArxivID)
	}
}
