package arxiv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxPageSize is the largest max_results value sent to arXiv.
const MaxPageSize = 2000

const (
	SortBySubmittedDate   = "submittedDate"
	SortByLastUpdatedDate = "lastUpdatedDate"
	SortByRelevance       = "relevance"

	SortDescending = "descending"
	SortAscending  = "ascending"
)

// FetchOptions narrows a listing request. Zero values fall back to the client
// settings (page size, category) or to newest-first ordering.
type FetchOptions struct {
	Category  string
	PageSize  int
	Offset    int
	SortBy    string
	SortOrder string
	// FromDate and ToDate are YYYYMMDD; either side may be empty.
	FromDate string
	ToDate   string
}

var (
	dateRe    = regexp.MustCompile(`^\d{8}$`)
	versionRe = regexp.MustCompile(`v\d+$`)
)

// dateFilter returns the submittedDate clause for the given range, or "" when
// no bound is set.
func dateFilter(from, to string) (string, error) {
	if from == "" && to == "" {
		return "", nil
	}
	for _, d := range []string{from, to} {
		if d != "" && !dateRe.MatchString(d) {
			return "", fmt.Errorf("arxiv: invalid date %q, want YYYYMMDD", d)
		}
	}

	lower, upper := "*", "*"
	if from != "" {
		lower = from + "0000"
	}
	if to != "" {
		upper = to + "2359"
	}
	return fmt.Sprintf(" AND submittedDate:[%s+TO+%s]", lower, upper), nil
}

// StripVersion removes a trailing version suffix: 2401.00001v2 -> 2401.00001.
func StripVersion(id string) string {
	return versionRe.ReplaceAllString(strings.TrimSpace(id), "")
}

type queryParam struct {
	key, value string
}

// encodeQuery joins params in order. Values are percent-encoded except for
// the characters arXiv query syntax relies on.
func encodeQuery(params []queryParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.key+"="+escapeValue(p.value))
	}
	return strings.Join(parts, "&")
}

func escapeValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', ':', '+', '[', ']':
		return true
	}
	return false
}

func (o FetchOptions) searchParams(query string, defaultPageSize int) []queryParam {
	size := o.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	offset := o.Offset
	if offset < 0 {
		offset = 0
	}
	sortBy := o.SortBy
	if sortBy == "" {
		sortBy = SortBySubmittedDate
	}
	sortOrder := o.SortOrder
	if sortOrder == "" {
		sortOrder = SortDescending
	}

	return []queryParam{
		{"search_query", query},
		{"start", strconv.Itoa(offset)},
		{"max_results", strconv.Itoa(size)},
		{"sortBy", sortBy},
		{"sortOrder", sortOrder},
	}
}
