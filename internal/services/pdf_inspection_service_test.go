package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPDF(t *testing.T, pages int) string {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, "Attention Is All You Need")
	}

	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestPDFInspectionService_Inspect(t *testing.T) {
	path := writeTestPDF(t, 2)

	summary, err := NewPDFInspectionService().Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
}

func TestPDFInspectionService_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>Too many requests</html>"), 0o644))

	_, err := NewPDFInspectionService().Inspect(path)
	assert.Error(t, err)
}
