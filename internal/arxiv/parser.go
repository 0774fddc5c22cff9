package arxiv

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"arxiv_rag_go_backend/internal/models"

	"github.com/rs/zerolog"
)

// Atom feed structures for the arXiv API.

type atomFeed struct {
	XMLName      xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	TotalResults int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	StartIndex   int         `xml:"http://a9.com/-/spec/opensearch/1.1/ startIndex"`
	ItemsPerPage int         `xml:"http://a9.com/-/spec/opensearch/1.1/ itemsPerPage"`
	Entries      []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID         string         `xml:"http://www.w3.org/2005/Atom id"`
	Title      string         `xml:"http://www.w3.org/2005/Atom title"`
	Summary    string         `xml:"http://www.w3.org/2005/Atom summary"`
	Published  string         `xml:"http://www.w3.org/2005/Atom published"`
	Authors    []atomAuthor   `xml:"http://www.w3.org/2005/Atom author"`
	Links      []atomLink     `xml:"http://www.w3.org/2005/Atom link"`
	Categories []atomCategory `xml:"http://www.w3.org/2005/Atom category"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

var (
	errMissingID        = errors.New("entry has no id")
	errMissingTitle     = errors.New("entry has no title")
	errMissingPublished = errors.New("entry has no published date")
)

// ParseResponse turns an arXiv Atom document into paper records. A document
// that is not well-formed Atom returns a *ParseError. Entries without an id
// are skipped silently; other broken entries are logged and skipped.
func ParseResponse(data []byte, logger zerolog.Logger) ([]models.ArxivPaper, error) {
	feed, err := decodeFeed(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	papers := make([]models.ArxivPaper, 0, len(feed.Entries))
	for i, entry := range feed.Entries {
		paper, err := parseEntry(entry)
		if errors.Is(err, errMissingID) {
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Int("entry", i).Str("id", entry.ID).Msg("Failed to parse arXiv entry, skipping")
			continue
		}
		papers = append(papers, paper)
	}

	logger.Debug().
		Int("total_results", feed.TotalResults).
		Int("start_index", feed.StartIndex).
		Int("parsed", len(papers)).
		Msg("Parsed arXiv feed")
	return papers, nil
}

// decodeFeed decodes the feed element and requires that only whitespace,
// comments or processing instructions follow it.
func decodeFeed(data []byte) (atomFeed, error) {
	var feed atomFeed
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&feed); err != nil {
		return feed, err
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return feed, nil
		}
		if err != nil {
			return feed, err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return feed, fmt.Errorf("unexpected text after feed: %q", truncate(string(t), 32))
			}
		default:
			return feed, fmt.Errorf("unexpected %T after feed", tok)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func parseEntry(entry atomEntry) (models.ArxivPaper, error) {
	id := entryID(entry.ID)
	if id == "" {
		return models.ArxivPaper{}, errMissingID
	}

	title := normalizeSpace(entry.Title)
	if title == "" {
		return models.ArxivPaper{}, errMissingTitle
	}
	published := strings.TrimSpace(entry.Published)
	if published == "" {
		return models.ArxivPaper{}, errMissingPublished
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := normalizeSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	return models.ArxivPaper{
		ArxivID:       id,
		Title:         title,
		Authors:       authors,
		Abstract:      normalizeSpace(entry.Summary),
		Categories:    categories,
		PublishedDate: published,
		PDFURL:        pdfLink(entry.Links),
	}, nil
}

// entryID returns the last path segment of an atom id such as
// http://arxiv.org/abs/2401.00001v1.
func entryID(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

func pdfLink(links []atomLink) string {
	for _, l := range links {
		if l.Type == "application/pdf" {
			return upgradeScheme(strings.TrimSpace(l.Href))
		}
	}
	return ""
}

func upgradeScheme(href string) string {
	const insecure = "http://arxiv.org/"
	if strings.HasPrefix(href, insecure) {
		return "https://arxiv.org/" + strings.TrimPrefix(href, insecure)
	}
	return href
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
