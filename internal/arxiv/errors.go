package arxiv

import (
	"errors"
	"fmt"
)

var (
	ErrPaperNotFound   = errors.New("arxiv: paper not found")
	ErrNoPDFURL        = errors.New("arxiv: paper has no pdf url")
	ErrDownloadTimeout = errors.New("arxiv: pdf download timed out")
	ErrDownloadFailed  = errors.New("arxiv: pdf download failed")
)

// ErrorKind classifies a failed request attempt.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindHTTPStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_error"
	default:
		return "error"
	}
}

// RequestError is a failed HTTP exchange with arXiv.
type RequestError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("arxiv request %s: http status %d", e.URL, e.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("arxiv request %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("arxiv request %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Timeout reports whether the attempt ran out of time.
func (e *RequestError) Timeout() bool { return e.Kind == KindTimeout }

// ParseError means the response was not a readable Atom document. Problems
// with single entries never produce it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "arxiv: parse response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// DownloadError is returned once every download attempt failed. It matches
// ErrDownloadTimeout or ErrDownloadFailed with errors.Is.
type DownloadError struct {
	ArxivID  string
	Attempts int
	Kind     error
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%v: paper %s after %d attempt(s): %v", e.Kind, e.ArxivID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() []error { return []error{e.Kind, e.Err} }
