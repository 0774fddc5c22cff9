package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"arxiv_rag_go_backend/internal/arxiv"
	"arxiv_rag_go_backend/internal/models"
	"arxiv_rag_go_backend/internal/observability"
	"arxiv_rag_go_backend/internal/utils/broker"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// IngestTopic is the broker topic ingestion progress is published on.
const IngestTopic = "ingest"

type PaperFetcher interface {
	FetchPapers(ctx context.Context, opts arxiv.FetchOptions) ([]models.ArxivPaper, error)
	DownloadPDF(ctx context.Context, paper models.ArxivPaper, force bool) (string, error)
}

type SessionRunner interface {
	WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type IngestOptions struct {
	Fetch         arxiv.FetchOptions
	DownloadPDFs  bool
	ForceDownload bool
}

type IngestReport struct {
	Fetched        int `json:"fetched"`
	Stored         int `json:"stored"`
	Created        int `json:"created"`
	PDFsDownloaded int `json:"pdfs_downloaded"`
	Failures       int `json:"failures"`
}

type IngestStage string

const (
	StageFetched    IngestStage = "fetched"
	StageStored     IngestStage = "stored"
	StageDownloaded IngestStage = "downloaded"
	StageFailed     IngestStage = "failed"
	StageDone       IngestStage = "done"
)

// IngestEvent is published for every step of a run.
type IngestEvent struct {
	Stage   IngestStage
	ArxivID string
	Pages   int
	Err     error
}

type IngestionService struct {
	fetcher   PaperFetcher
	sessions  SessionRunner
	inspector PDFInspector
	newRepo   func(tx *gorm.DB) PaperRepository
	events    *broker.Broker[IngestEvent]
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

type IngestionOption func(*IngestionService)

func WithRepositoryFactory(fn func(tx *gorm.DB) PaperRepository) IngestionOption {
	return func(s *IngestionService) { s.newRepo = fn }
}

func WithPDFInspector(inspector PDFInspector) IngestionOption {
	return func(s *IngestionService) { s.inspector = inspector }
}

func WithEvents(events *broker.Broker[IngestEvent]) IngestionOption {
	return func(s *IngestionService) { s.events = events }
}

func WithIngestionMetrics(m *observability.Metrics) IngestionOption {
	return func(s *IngestionService) { s.metrics = m }
}

func NewIngestionService(fetcher PaperFetcher, sessions SessionRunner, logger zerolog.Logger, opts ...IngestionOption) *IngestionService {
	s := &IngestionService{
		fetcher:  fetcher,
		sessions: sessions,
		newRepo:  NewPaperRepository,
		logger:   logger.With().Str("component", "ingestion").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest fetches one page of papers, upserts them in a single session and
// optionally downloads their PDFs. Download problems are counted in the
// report and do not fail the run.
func (s *IngestionService) Ingest(ctx context.Context, opts IngestOptions) (IngestReport, error) {
	var report IngestReport

	fetched, err := s.fetcher.FetchPapers(ctx, opts.Fetch)
	if err != nil {
		s.publish(IngestEvent{Stage: StageFailed, Err: err})
		return report, fmt.Errorf("fetch papers: %w", err)
	}
	report.Fetched = len(fetched)
	s.publish(IngestEvent{Stage: StageFetched})
	s.logger.Info().Int("count", report.Fetched).Msg("Fetched papers for ingestion")

	papers := make([]*models.Paper, 0, len(fetched))
	sources := make([]models.ArxivPaper, 0, len(fetched))
	for _, ap := range fetched {
		paper, err := ap.ToPaper()
		if err != nil {
			report.Failures++
			s.logger.Warn().Err(err).Str("arxiv_id", ap.ArxivID).Msg("Skipping paper with invalid metadata")
			s.publish(IngestEvent{Stage: StageFailed, ArxivID: ap.ArxivID, Err: err})
			continue
		}
		papers = append(papers, paper)
		sources = append(sources, ap)
	}

	var stored, created int
	err = s.sessions.WithSession(ctx, func(tx *gorm.DB) error {
		repo := s.newRepo(tx)
		stored, created = 0, 0
		for _, paper := range papers {
			_, isNew, err := repo.Upsert(paper)
			if err != nil {
				return fmt.Errorf("upsert paper %s: %w", paper.ArxivID, err)
			}
			stored++
			if isNew {
				created++
			}
		}
		return nil
	})
	if err != nil {
		s.publish(IngestEvent{Stage: StageFailed, Err: err})
		return report, err
	}
	report.Stored, report.Created = stored, created
	s.recordUpserts(created, stored-created)
	for _, paper := range papers {
		s.publish(IngestEvent{Stage: StageStored, ArxivID: paper.ArxivID})
	}

	if opts.DownloadPDFs {
		for _, ap := range sources {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.download(ctx, ap, opts.ForceDownload, &report)
		}
	}

	s.logger.Info().
		Int("fetched", report.Fetched).
		Int("stored", report.Stored).
		Int("created", report.Created).
		Int("pdfs_downloaded", report.PDFsDownloaded).
		Int("failures", report.Failures).
		Msg("Ingestion finished")
	s.publish(IngestEvent{Stage: StageDone})
	return report, nil
}

func (s *IngestionService) download(ctx context.Context, paper models.ArxivPaper, force bool, report *IngestReport) {
	fail := func(err error) {
		report.Failures++
		s.logger.Error().Err(err).Str("arxiv_id", paper.ArxivID).Msg("PDF download failed")
		s.publish(IngestEvent{Stage: StageFailed, ArxivID: paper.ArxivID, Err: err})
	}

	if paper.PDFURL == "" {
		fail(arxiv.ErrNoPDFURL)
		return
	}
	path, err := s.fetcher.DownloadPDF(ctx, paper, force)
	if err != nil {
		fail(err)
		return
	}

	event := IngestEvent{Stage: StageDownloaded, ArxivID: paper.ArxivID}
	if s.inspector != nil {
		summary, err := s.inspector.Inspect(path)
		if err != nil {
			// a corrupt file must not be served from the cache next time
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
			fail(err)
			return
		}
		event.Pages = summary.Pages
		s.logger.Debug().
			Str("arxiv_id", paper.ArxivID).
			Int("pages", summary.Pages).
			Int("text_bytes", summary.TextBytes).
			Msg("Verified PDF")
	}

	report.PDFsDownloaded++
	s.publish(event)
}

func (s *IngestionService) publish(event IngestEvent) {
	if s.events != nil {
		s.events.Publish(IngestTopic, event)
	}
}

func (s *IngestionService) recordUpserts(created, updated int) {
	if s.metrics == nil {
		return
	}
	s.metrics.PapersUpsertedTotal.WithLabelValues("created").Add(float64(created))
	s.metrics.PapersUpsertedTotal.WithLabelValues("updated").Add(float64(updated))
}
