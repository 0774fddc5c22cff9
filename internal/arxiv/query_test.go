package arxiv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFilter(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     string
	}{
		{"none", "", "", ""},
		{"both", "20240101", "20240131", " AND submittedDate:[202401010000+TO+202401312359]"},
		{"from only", "20240101", "", " AND submittedDate:[202401010000+TO+*]"},
		{"to only", "", "20240131", " AND submittedDate:[*+TO+202401312359]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dateFilter(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := dateFilter("2024-01-01", "")
	assert.Error(t, err)
}

func TestEncodeQuery_KeepsQuerySyntax(t *testing.T) {
	got := encodeQuery([]queryParam{
		{"search_query", "cat:cs.AI AND submittedDate:[202401010000+TO+202401312359]"},
		{"start", "0"},
	})
	assert.Equal(t, "search_query=cat:cs.AI%20AND%20submittedDate:[202401010000+TO+202401312359]&start=0", got)
}

func TestSearchParams_Defaults(t *testing.T) {
	params := FetchOptions{}.searchParams("cat:cs.AI", 100)
	assert.Equal(t, "search_query=cat:cs.AI&start=0&max_results=100&sortBy=submittedDate&sortOrder=descending", encodeQuery(params))
}

func TestSearchParams_CapsPageSize(t *testing.T) {
	params := FetchOptions{PageSize: 5000, Offset: 40, SortOrder: SortAscending}.searchParams("cat:cs.AI", 100)
	assert.Equal(t, "search_query=cat:cs.AI&start=40&max_results=2000&sortBy=submittedDate&sortOrder=ascending", encodeQuery(params))
}

func TestStripVersion(t *testing.T) {
	assert.Equal(t, "2401.00001", StripVersion("2401.00001v2"))
	assert.Equal(t, "2401.00001", StripVersion("2401.00001"))
	assert.Equal(t, "hep-th/9901001", StripVersion("hep-th/9901001v1"))
}
