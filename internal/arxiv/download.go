package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arxiv_rag_go_backend/internal/models"
	"arxiv_rag_go_backend/internal/utils/retry"
)

const copyBufferSize = 32 << 10

// PDFFileName is the cache file name of a paper: path separators in old-style
// ids (hep-th/9901001) become underscores.
func PDFFileName(arxivID string) string {
	return strings.ReplaceAll(arxivID, "/", "_") + ".pdf"
}

// PDFPath returns where DownloadPDF stores the paper.
func (c *Client) PDFPath(arxivID string) string {
	return filepath.Join(c.cfg.PDFCacheDir, PDFFileName(arxivID))
}

// DownloadPDF stores the paper's PDF in the cache directory and returns its
// path. An existing file is reused unless force is set. When every attempt
// fails the error is a *DownloadError and nothing is left on disk.
func (c *Client) DownloadPDF(ctx context.Context, paper models.ArxivPaper, force bool) (string, error) {
	if paper.PDFURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPDFURL, paper.ArxivID)
	}

	path := c.PDFPath(paper.ArxivID)
	if !force {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			c.logger.Info().Str("arxiv_id", paper.ArxivID).Str("path", path).Msg("Using cached PDF")
			return path, nil
		}
	}
	if err := os.MkdirAll(c.cfg.PDFCacheDir, 0o755); err != nil {
		return "", fmt.Errorf("arxiv: create pdf cache dir: %w", err)
	}

	c.logger.Info().Str("arxiv_id", paper.ArxivID).Str("url", paper.PDFURL).Msg("Downloading PDF")

	policy := retry.Policy{MaxAttempts: c.cfg.DownloadMaxAttempts, BackoffStep: c.cfg.DownloadBackoff}
	var written int64
	err := c.do(ctx, opDownload, paper.PDFURL, policy, func(body io.Reader) error {
		n, err := writeAtomically(path, body)
		written = n
		return err
	})
	if err != nil {
		return "", c.downloadError(ctx, paper.ArxivID, err)
	}

	c.logger.Info().
		Str("arxiv_id", paper.ArxivID).
		Str("path", path).
		Int64("bytes", written).
		Msg("Downloaded PDF")
	return path, nil
}

// downloadError reports a cancelled ctx as is; only a download that used up
// its attempts becomes a *DownloadError.
func (c *Client) downloadError(ctx context.Context, arxivID string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Warn().Err(ctxErr).Str("arxiv_id", arxivID).Msg("PDF download cancelled")
		return ctxErr
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		c.logger.Error().Err(err).Str("arxiv_id", arxivID).Msg("PDF download aborted")
		return err
	}

	kind := ErrDownloadFailed
	var reqErr *RequestError
	if errors.As(exhausted.Err, &reqErr) && reqErr.Timeout() {
		kind = ErrDownloadTimeout
	}
	c.logger.Error().
		Err(exhausted.Err).
		Str("arxiv_id", arxivID).
		Int("attempts", exhausted.Attempts).
		Msg("PDF download failed after all retries")
	return &DownloadError{ArxivID: arxivID, Attempts: exhausted.Attempts, Kind: kind, Err: exhausted.Err}
}

// writeAtomically streams r into a temporary file next to path and renames it
// into place once the copy completed. The temporary file is removed on error.
func writeAtomically(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("arxiv: create temp file: %w", err))
	}
	tmpName := tmp.Name()

	n, err := io.CopyBuffer(tmp, r, make([]byte, copyBufferSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return n, err
	}
	return n, nil
}
