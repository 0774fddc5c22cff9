package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"arxiv_rag_go_backend/internal/services"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	HelloWorldTaskName    = "hello_world"
	CheckServicesTaskName = "check_services"
	IngestPapersTaskName  = "ingest_papers"
)

// BaseTask carries the name and dependencies of a task.
type BaseTask struct {
	TaskName         string
	TaskDependencies []string
}

func (t BaseTask) Name() string { return t.TaskName }

func (t BaseTask) Dependencies() []string {
	if t.TaskDependencies == nil {
		return []string{}
	}
	return t.TaskDependencies
}

// HelloWorldTask only proves that the runner works.
type HelloWorldTask struct {
	BaseTask
	Logger zerolog.Logger
}

func NewHelloWorldTask(logger zerolog.Logger) *HelloWorldTask {
	return &HelloWorldTask{BaseTask: BaseTask{TaskName: HelloWorldTaskName}, Logger: logger}
}

func (t *HelloWorldTask) Run(ctx context.Context) error {
	t.Logger.Info().Str("task", t.Name()).Msg("Hello from the pipeline")
	return ctx.Err()
}

// CheckServicesTask verifies that the API answers on its health URL and that
// the database accepts connections. Both checks run concurrently.
type CheckServicesTask struct {
	BaseTask
	HealthURL   string
	DatabaseURL string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      zerolog.Logger

	// connectDB defaults to a pgx connection and ping.
	connectDB func(ctx context.Context, url string) error
}

func NewCheckServicesTask(healthURL, databaseURL string, logger zerolog.Logger, deps ...string) *CheckServicesTask {
	return &CheckServicesTask{
		BaseTask:    BaseTask{TaskName: CheckServicesTaskName, TaskDependencies: deps},
		HealthURL:   healthURL,
		DatabaseURL: databaseURL,
		Timeout:     5 * time.Second,
		HTTPClient:  &http.Client{},
		Logger:      logger,
		connectDB:   pingPostgres,
	}
}

func (t *CheckServicesTask) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.checkAPI(ctx) })
	g.Go(func() error {
		if err := t.connectDB(ctx, t.DatabaseURL); err != nil {
			return fmt.Errorf("database check: %w", err)
		}
		t.Logger.Info().Msg("Database: Connected successfully")
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Logger.Error().Err(err).Msg("Service check failed")
		return err
	}
	return nil
}

// checkAPI only requires an HTTP answer; the status code is reported.
func (t *CheckServicesTask) checkAPI(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.HealthURL, nil)
	if err != nil {
		return fmt.Errorf("api check: %w", err)
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("api check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	t.Logger.Info().Int("status", resp.StatusCode).Str("url", t.HealthURL).Msg("API Health")
	return nil
}

func pingPostgres(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

type Ingester interface {
	Ingest(ctx context.Context, opts services.IngestOptions) (services.IngestReport, error)
}

// LazyIngester opens its Ingester on the first Ingest call, so the database
// behind it is only connected once upstream checks passed. A failed Open is
// tried again on the next call.
type LazyIngester struct {
	Open func(ctx context.Context) (Ingester, error)

	mu       sync.Mutex
	ingester Ingester
}

func (l *LazyIngester) Ingest(ctx context.Context, opts services.IngestOptions) (services.IngestReport, error) {
	l.mu.Lock()
	if l.ingester == nil {
		ingester, err := l.Open(ctx)
		if err != nil {
			l.mu.Unlock()
			return services.IngestReport{}, fmt.Errorf("prepare ingestion: %w", err)
		}
		l.ingester = ingester
	}
	ingester := l.ingester
	l.mu.Unlock()

	return ingester.Ingest(ctx, opts)
}

// IngestPapersTask runs one ingestion pass.
type IngestPapersTask struct {
	BaseTask
	Ingester Ingester
	Options  services.IngestOptions
	Logger   zerolog.Logger

	Report services.IngestReport
}

func NewIngestPapersTask(ingester Ingester, opts services.IngestOptions, logger zerolog.Logger, deps ...string) *IngestPapersTask {
	return &IngestPapersTask{
		BaseTask: BaseTask{TaskName: IngestPapersTaskName, TaskDependencies: deps},
		Ingester: ingester,
		Options:  opts,
		Logger:   logger,
	}
}

func (t *IngestPapersTask) Run(ctx context.Context) error {
	report, err := t.Ingester.Ingest(ctx, t.Options)
	t.Report = report
	if err != nil {
		return err
	}
	t.Logger.Info().
		Int("fetched", report.Fetched).
		Int("stored", report.Stored).
		Int("pdfs_downloaded", report.PDFsDownloaded).
		Int("failures", report.Failures).
		Msg("Ingestion task finished")
	return nil
}
