package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFSummary describes a downloaded paper file.
type PDFSummary struct {
	Pages     int
	TextBytes int
}

type PDFInspector interface {
	Inspect(path string) (PDFSummary, error)
}

var disableConfigDir sync.Once

// PDFInspectionService checks that a cached file is a readable PDF and
// measures how much text can be extracted from it.
type PDFInspectionService struct {
	conf *model.Configuration
}

func NewPDFInspectionService() *PDFInspectionService {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFInspectionService{conf: conf}
}

func (s *PDFInspectionService) Inspect(path string) (PDFSummary, error) {
	if err := api.ValidateFile(path, s.conf); err != nil {
		return PDFSummary{}, fmt.Errorf("invalid PDF %s: %w", path, err)
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return PDFSummary{}, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}

	// Text extraction is best effort; scanned papers have none.
	text, _ := extractText(path)
	return PDFSummary{Pages: pages, TextBytes: len(text)}, nil
}

func extractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var content strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		content.WriteString(text)
		content.WriteString("\n\n")
	}

	if content.Len() == 0 {
		return "", fmt.Errorf("no text content extracted from PDF")
	}
	return content.String(), nil
}
