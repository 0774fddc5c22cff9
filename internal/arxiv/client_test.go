package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arxiv_rag_go_backend/cmd/api/config"
	"arxiv_rag_go_backend/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) config.ArxivConfig {
	t.Helper()
	cfg := config.NewArxivConfig()
	cfg.BaseURL = baseURL
	cfg.PDFCacheDir = t.TempDir()
	cfg.RateLimitDelay = 0
	cfg.Timeout = 2 * time.Second
	return cfg
}

// startRecorder notes when each request leaves the client.
type startRecorder struct {
	mu     sync.Mutex
	starts []time.Time
	next   http.RoundTripper
}

func (r *startRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.starts = append(r.starts, time.Now())
	r.mu.Unlock()
	return r.next.RoundTrip(req)
}

func feedServer(t *testing.T, hits *atomic.Int32, lastQuery *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if lastQuery != nil {
			lastQuery.Store(r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPapers(t *testing.T) {
	var hits atomic.Int32
	var query atomic.Value
	srv := feedServer(t, &hits, &query)

	client := NewClient(testConfig(t, srv.URL))
	papers, err := client.FetchPapers(context.Background(), FetchOptions{
		Category: "cs.CL",
		PageSize: 10,
		FromDate: "20170601",
		ToDate:   "20170630",
	})

	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "1706.03762v7", papers[0].ArxivID)
	assert.Equal(t,
		"search_query=cat:cs.CL%20AND%20submittedDate:[201706010000+TO+201706302359]&start=0&max_results=10&sortBy=submittedDate&sortOrder=descending",
		query.Load())
}

func TestFetchPapers_DefaultCategory(t *testing.T) {
	var hits atomic.Int32
	var query atomic.Value
	srv := feedServer(t, &hits, &query)

	_, err := NewClient(testConfig(t, srv.URL)).FetchPapers(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query.Load().(string), "search_query=cat:cs.AI&start=0&max_results=100&"))
}

func TestFetchPapersWithQuery(t *testing.T) {
	var hits atomic.Int32
	var query atomic.Value
	srv := feedServer(t, &hits, &query)

	client := NewClient(testConfig(t, srv.URL))

	_, err := client.FetchPapersWithQuery(context.Background(), "ti:transformer", FetchOptions{ToDate: "20240131"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query.Load().(string), "search_query=ti:transformer%20AND%20submittedDate:[%2A+TO+202401312359]&"))

	_, err = client.FetchPapersWithQuery(context.Background(), "ti:transformer", FetchOptions{FromDate: "20240101"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query.Load().(string), "search_query=ti:transformer%20AND%20submittedDate:[202401010000+TO+%2A]&"))
}

func TestFetchPapers_HTTPErrorReturnsEmptyAndTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	papers, err := NewClient(testConfig(t, srv.URL)).FetchPapers(context.Background(), FetchOptions{})

	assert.NotNil(t, papers)
	assert.Empty(t, papers)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindHTTPStatus, reqErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
}

func TestFetchPapers_TimeoutReturnsEmptyAndTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	papers, err := NewClient(cfg).FetchPapers(context.Background(), FetchOptions{})

	assert.Empty(t, papers)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.True(t, reqErr.Timeout())
}

func TestFetchPapers_MalformedBodyReturnsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<feed><entry>"))
	}))
	defer srv.Close()

	papers, err := NewClient(testConfig(t, srv.URL)).FetchPapers(context.Background(), FetchOptions{})

	assert.Empty(t, papers)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestFetchPapers_RetriesWithFetchPolicy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.FetchMaxAttempts = 2
	cfg.FetchBackoff = 2 * time.Second
	rec := &sleepRecorder{}
	papers, err := NewClient(cfg, WithRetrySleep(rec.sleep)).FetchPapers(context.Background(), FetchOptions{})

	require.NoError(t, err)
	assert.Len(t, papers, 1)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestFetchPapers_RespectsRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, &hits, nil)

	const interval = 200 * time.Millisecond
	cfg := testConfig(t, srv.URL)
	cfg.RateLimitDelay = interval
	rec := &startRecorder{next: http.DefaultTransport}
	client := NewClient(cfg, WithHTTPClient(&http.Client{Transport: rec}))

	ctx := context.Background()
	_, err := client.FetchPapers(ctx, FetchOptions{})
	require.NoError(t, err)
	_, err = client.FetchPapers(ctx, FetchOptions{})
	require.NoError(t, err)

	require.Len(t, rec.starts, 2)
	// the limiter clock starts a moment before the first request is sent
	assert.GreaterOrEqual(t, rec.starts[1].Sub(rec.starts[0]), interval-time.Millisecond)
}

func TestFetchPapers_ConcurrentCallersSerialize(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, &hits, nil)

	const interval = 100 * time.Millisecond
	cfg := testConfig(t, srv.URL)
	cfg.RateLimitDelay = interval
	rec := &startRecorder{next: http.DefaultTransport}
	client := NewClient(cfg, WithHTTPClient(&http.Client{Transport: rec}))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.FetchPapers(context.Background(), FetchOptions{})
		}()
	}
	wg.Wait()

	require.Len(t, rec.starts, 3)
	first, last := rec.starts[0], rec.starts[0]
	for _, s := range rec.starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 2*interval-time.Millisecond)
}

func TestFetchPapers_RateLimitWaitHonorsCancel(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, &hits, nil)

	cfg := testConfig(t, srv.URL)
	cfg.RateLimitDelay = time.Hour
	client := NewClient(cfg)

	_, err := client.FetchPapers(context.Background(), FetchOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	papers, err := client.FetchPapers(ctx, FetchOptions{})

	assert.Error(t, err)
	assert.Empty(t, papers)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchPaperByID_StripsVersion(t *testing.T) {
	var hits atomic.Int32
	var query atomic.Value
	srv := feedServer(t, &hits, &query)

	paper, err := NewClient(testConfig(t, srv.URL)).FetchPaperByID(context.Background(), "1706.03762v7")
	require.NoError(t, err)
	assert.Equal(t, "1706.03762v7", paper.ArxivID)
	assert.Equal(t, "id_list=1706.03762&max_results=1", query.Load())
}

func TestFetchPaperByID_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer srv.Close()

	paper, err := NewClient(testConfig(t, srv.URL)).FetchPaperByID(context.Background(), "2401.99999")
	assert.Nil(t, paper)
	assert.ErrorIs(t, err, ErrPaperNotFound)
}

func TestClient_RecordsMetrics(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, &hits, nil)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client := NewClient(testConfig(t, srv.URL), WithMetrics(metrics))
	_, err := client.FetchPapers(context.Background(), FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArxivRequestsTotal.WithLabelValues(opFetch, "success")))
}
