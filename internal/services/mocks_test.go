package services_test

import (
	"context"

	"arxiv_rag_go_backend/internal/arxiv"
	"arxiv_rag_go_backend/internal/models"
	"arxiv_rag_go_backend/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockPaperFetcher struct {
	mock.Mock
}

func (m *MockPaperFetcher) FetchPapers(ctx context.Context, opts arxiv.FetchOptions) ([]models.ArxivPaper, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]models.ArxivPaper), args.Error(1)
}

func (m *MockPaperFetcher) DownloadPDF(ctx context.Context, paper models.ArxivPaper, force bool) (string, error) {
	args := m.Called(ctx, paper, force)
	return args.String(0), args.Error(1)
}

type MockPDFInspector struct {
	mock.Mock
}

func (m *MockPDFInspector) Inspect(path string) (services.PDFSummary, error) {
	args := m.Called(path)
	return args.Get(0).(services.PDFSummary), args.Error(1)
}
