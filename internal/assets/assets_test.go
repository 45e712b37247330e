package assets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/models"
)

var regexpAny = regexp.MustCompile(`.*`)

func newFetcher(t *testing.T, workers int) (*Fetcher, *httpmock.MockTransport, string) {
	t.Helper()
	return newFetcherWithRetries(t, workers, 0)
}

func newFetcherWithRetries(t *testing.T, workers, retries int) (*Fetcher, *httpmock.MockTransport, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "_downloads")
	f, err := New(Options{Dir: dir, BaseURL: "https://portal.test/bayi/", Workers: workers, Retries: retries}, nil)
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	f.Client().SetTransport(transport)
	return f, transport, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFetchAll_SavesImages(t *testing.T) {
	f, transport, dir := newFetcher(t, 1)
	transport.RegisterResponder("GET", "https://cdn.test/p/a1.PNG", httpmock.NewStringResponder(200, "png-bytes"))
	transport.RegisterResponder("GET", "https://portal.test/img/b2.webp?v=3", httpmock.NewStringResponder(200, "webp-bytes"))
	transport.RegisterResponder("GET", "https://portal.test/bayi/thumb.php?id=9", httpmock.NewStringResponder(200, "jpg-bytes"))

	stats := f.FetchAll(context.Background(), []models.Product{
		{SKU: "A1", ImageURL: "https://cdn.test/p/a1.PNG"},
		{SKU: "B/2", ImageURL: "/img/b2.webp?v=3"},
		{SKU: "Özel Ürün", ImageURL: "thumb.php?id=9"},
		{SKU: "NOIMG"},
		{SKU: "###", ImageURL: "https://cdn.test/never.jpg"},
	})

	assert.Equal(t, models.ImageStats{Saved: 3}, stats)
	assert.Equal(t, "png-bytes", readFile(t, filepath.Join(dir, "A1.png")))
	assert.Equal(t, "webp-bytes", readFile(t, filepath.Join(dir, "B_2.webp")))
	assert.Equal(t, "jpg-bytes", readFile(t, filepath.Join(dir, "Özel_Ürün.jpg")))
	assert.Equal(t, 3, transport.GetTotalCallCount())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "temp files are cleaned up")
}

func TestFetchAll_SkipsExistingFiles(t *testing.T) {
	f, transport, dir := newFetcher(t, 1)
	transport.RegisterResponder("GET", "https://cdn.test/a.jpg", httpmock.NewStringResponder(200, "new"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A.jpg"), []byte("old"), 0644))

	products := []models.Product{{SKU: "A", ImageURL: "https://cdn.test/a.jpg"}}
	stats := f.FetchAll(context.Background(), products)

	assert.Equal(t, models.ImageStats{Skipped: 1}, stats)
	assert.Equal(t, "old", readFile(t, filepath.Join(dir, "A.jpg")))
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestFetchAll_FailuresDoNotAbortBatch(t *testing.T) {
	f, transport, dir := newFetcher(t, 1)
	transport.RegisterResponder("GET", "https://cdn.test/missing.jpg", httpmock.NewStringResponder(404, "nope"))
	transport.RegisterResponder("GET", "https://cdn.test/empty.jpg", httpmock.NewStringResponder(200, ""))
	transport.RegisterResponder("GET", "https://cdn.test/broken.jpg", httpmock.NewErrorResponder(fmt.Errorf("connection reset")))
	transport.RegisterResponder("GET", "https://cdn.test/ok.jpg", httpmock.NewStringResponder(200, "ok"))

	m := metrics.New()
	f.WithMetrics(m)

	stats := f.FetchAll(context.Background(), []models.Product{
		{SKU: "M", ImageURL: "https://cdn.test/missing.jpg"},
		{SKU: "E", ImageURL: "https://cdn.test/empty.jpg"},
		{SKU: "B", ImageURL: "https://cdn.test/broken.jpg"},
		{SKU: "O", ImageURL: "https://cdn.test/ok.jpg"},
	})

	assert.Equal(t, models.ImageStats{Saved: 1, Failed: 3}, stats)
	assert.FileExists(t, filepath.Join(dir, "O.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "M.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "E.jpg"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesTotal.WithLabelValues(OutcomeSaved)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImagesTotal.WithLabelValues(OutcomeFailed)))
}

func TestFetchAll_ParallelWorkers(t *testing.T) {
	f, transport, dir := newFetcher(t, 4)
	transport.RegisterRegexpResponder("GET", regexpAny, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(200, req.URL.Path), nil
	})

	var products []models.Product
	for i := 0; i < 20; i++ {
		products = append(products, models.Product{
			SKU:      fmt.Sprintf("P%02d", i),
			ImageURL: fmt.Sprintf("https://cdn.test/%02d.gif", i),
		})
	}

	stats := f.FetchAll(context.Background(), products)

	assert.Equal(t, 20, stats.Saved)
	assert.Equal(t, 20, transport.GetTotalCallCount())
	assert.Equal(t, "/07.gif", readFile(t, filepath.Join(dir, "P07.gif")))
}

func TestFetchAll_Cancelled(t *testing.T) {
	f, transport, _ := newFetcher(t, 2)
	transport.RegisterResponder("GET", "https://cdn.test/a.jpg", httpmock.NewStringResponder(200, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := f.FetchAll(ctx, []models.Product{{SKU: "A", ImageURL: "https://cdn.test/a.jpg"}})
	assert.Zero(t, stats.Saved)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestFetchAll_RetriesTransientFailures(t *testing.T) {
	f, transport, dir := newFetcherWithRetries(t, 1, 2)

	flaky := 0
	transport.RegisterResponder("GET", "https://cdn.test/flaky.jpg", func(req *http.Request) (*http.Response, error) {
		flaky++
		if flaky < 3 {
			return httpmock.NewStringResponse(503, "busy"), nil
		}
		return httpmock.NewStringResponse(200, "third time"), nil
	})
	transport.RegisterResponder("GET", "https://cdn.test/down.jpg", httpmock.NewErrorResponder(fmt.Errorf("connection reset")))
	transport.RegisterResponder("GET", "https://cdn.test/gone.jpg", httpmock.NewStringResponder(404, "nope"))
	transport.RegisterResponder("GET", "https://cdn.test/ok.jpg", httpmock.NewStringResponder(200, "ok"))

	stats := f.FetchAll(context.Background(), []models.Product{
		{SKU: "F", ImageURL: "https://cdn.test/flaky.jpg"},
		{SKU: "D", ImageURL: "https://cdn.test/down.jpg"},
		{SKU: "G", ImageURL: "https://cdn.test/gone.jpg"},
		{SKU: "O", ImageURL: "https://cdn.test/ok.jpg"},
	})

	assert.Equal(t, models.ImageStats{Saved: 2, Failed: 2}, stats)
	assert.Equal(t, "third time", readFile(t, filepath.Join(dir, "F.jpg")))

	info := transport.GetCallCountInfo()
	assert.Equal(t, 3, info["GET https://cdn.test/flaky.jpg"])
	assert.Equal(t, 3, info["GET https://cdn.test/down.jpg"], "two retries after the first attempt")
	assert.Equal(t, 1, info["GET https://cdn.test/gone.jpg"], "client errors are not retried")
	assert.Equal(t, 1, info["GET https://cdn.test/ok.jpg"])
}

func TestFetchAll_RetriesQueueBehindFirstAttempts(t *testing.T) {
	f, transport, _ := newFetcherWithRetries(t, 1, 1)

	var order []string
	transport.RegisterRegexpResponder("GET", regexpAny, func(req *http.Request) (*http.Response, error) {
		order = append(order, req.URL.Path)
		if req.URL.Path == "/a.jpg" && len(order) == 1 {
			return httpmock.NewStringResponse(500, "oops"), nil
		}
		return httpmock.NewStringResponse(200, "img"), nil
	})

	stats := f.FetchAll(context.Background(), []models.Product{
		{SKU: "A", ImageURL: "https://cdn.test/a.jpg"},
		{SKU: "B", ImageURL: "https://cdn.test/b.jpg"},
		{SKU: "C", ImageURL: "https://cdn.test/c.jpg"},
	})

	assert.Equal(t, 3, stats.Saved)
	assert.Equal(t, []string{"/a.jpg", "/b.jpg", "/c.jpg", "/a.jpg"}, order)
}

func TestTasks_ResolveAgainstBase(t *testing.T) {
	f, _, dir := newFetcher(t, 1)

	tasks := f.Tasks([]models.Product{
		{SKU: "A", ImageURL: "//cdn.test/a.jpeg"},
		{SKU: "B", ImageURL: "../up/b.png"},
		{SKU: "C", ImageURL: "data:image/png;base64,AAAA"},
		{SKU: "D", ImageURL: "ftp://files.test/d.jpg"},
	})

	require.Len(t, tasks, 2)
	assert.Equal(t, "https://cdn.test/a.jpeg", tasks[0].URL)
	assert.Equal(t, filepath.Join(dir, "A.jpeg"), tasks[0].Path)
	assert.Equal(t, "https://portal.test/up/b.png", tasks[1].URL)
	assert.NotEmpty(t, tasks[1].ID)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.test/a.JPG", ".jpg"},
		{"https://x.test/a.jpeg?size=large", ".jpeg"},
		{"https://x.test/a.png#frag", ".png"},
		{"https://x.test/a.webp", ".webp"},
		{"https://x.test/a.gif", ".gif"},
		{"https://x.test/a.bmp", ".bmp"},
		{"https://x.test/a.svg", ".jpg"},
		{"https://x.test/image.php?id=1", ".jpg"},
		{"https://x.test/noext", ".jpg"},
		{"https://x.test/dir.png/file", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.url))
		})
	}
}

func TestWriteExclusive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "X.jpg")

	created, err := writeExclusive(target, []byte("first"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = writeExclusive(target, []byte("second"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", readFile(t, target))
}
