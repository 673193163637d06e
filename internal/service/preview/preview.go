package preview

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kapu/sales-intel-go/internal/constants"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/util"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Fetcher loads page metadata for the URLs handed to autofill.
type Fetcher struct {
	httpClient  *http.Client
	concurrency int
	logger      *zap.Logger
}

// NewFetcher returns a Fetcher whose connections may only reach public
// addresses. The check runs on every dial, so redirects are covered too.
func NewFetcher(timeout time.Duration, concurrency int, logger *zap.Logger) *Fetcher {
	return newFetcher(timeout, concurrency, logger, publicOnlyTransport())
}

func newFetcher(timeout time.Duration, concurrency int, logger *zap.Logger, transport http.RoundTripper) *Fetcher {
	if timeout <= 0 {
		timeout = constants.PreviewConfig.Timeout
	}
	if concurrency <= 0 {
		concurrency = constants.PreviewConfig.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		concurrency: concurrency,
		logger:      logger,
	}
}

func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   util.PublicOnlyControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// a proxy would dial on our behalf and hide the target address
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return transport
}

// FetchAll returns one preview per input URL, in input order. A failing URL
// only sets Error on its own entry.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []domain.LinkPreview {
	results := make([]domain.LinkPreview, len(urls))
	if len(urls) == 0 {
		return results
	}

	p := pool.New().WithMaxGoroutines(f.concurrency)
	for idx, rawURL := range urls {
		idx, rawURL := idx, rawURL
		p.Go(func() {
			results[idx] = f.Fetch(ctx, rawURL)
		})
	}
	p.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	f.logger.Debug("Link previews fetched",
		zap.Int("total", len(urls)),
		zap.Int("failed", failed),
	)

	return results
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) domain.LinkPreview {
	preview := domain.LinkPreview{URL: rawURL}

	if err := f.fetchInto(ctx, &preview); err != nil {
		f.logger.Debug("Link preview failed", zap.String("url", rawURL), zap.Error(err))
		preview.Error = err.Error()
	}

	return preview
}

func (f *Fetcher) fetchInto(ctx context.Context, preview *domain.LinkPreview) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, preview.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	req.Header.Set("User-Agent", constants.PreviewConfig.UserAgent)
	req.Header.Set("Accept-Language", constants.PreviewConfig.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	preview.StatusCode = resp.StatusCode
	preview.FinalURL = resp.Request.URL.String()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, constants.PreviewConfig.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("HTML parse failed: %w", err)
	}

	preview.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	preview.Description = firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	preview.SiteName = metaContent(doc, `meta[property="og:site_name"]`)

	preview.Title = util.TruncateString(util.CollapseWhitespace(preview.Title), 300)
	preview.Description = util.TruncateString(util.CollapseWhitespace(preview.Description), 500)

	return nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
