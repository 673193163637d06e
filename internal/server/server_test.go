package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/service/ai"
	"github.com/kapu/sales-intel-go/internal/service/cache"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

const sampleReport = "# SECTION 1: EXECUTIVE SNAPSHOT\n> [!KEY_INSIGHT]\n> Budget owner is the CFO.\n\nInference: Q3 close.\n"

type fakeIntel struct {
	mu            sync.Mutex
	autofill      *domain.AutofillResult
	autofillErr   error
	report        string
	reportErr     error
	autofillCalls int
	reportCalls   int
	lastURLs      []string
	usedFallback  bool
}

func (f *fakeIntel) FetchAutofillData(_ context.Context, urls []string) (*domain.AutofillResult, *ai.GenerateMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autofillCalls++
	f.lastURLs = urls
	if f.autofillErr != nil {
		return nil, nil, f.autofillErr
	}
	result := *f.autofill
	if f.usedFallback {
		return &result, &ai.GenerateMetadata{Provider: "OpenAI", Model: "gpt-5-mini", UsedFallback: true}, nil
	}
	return &result, &ai.GenerateMetadata{Provider: "Gemini", Model: "gemini-3-flash-preview"}, nil
}

func (f *fakeIntel) GenerateDeepReport(_ context.Context, _ domain.SellerInfo, _ domain.BuyerInfo) (string, *ai.GenerateMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls++
	if f.reportErr != nil {
		return "", nil, f.reportErr
	}
	return f.report, &ai.GenerateMetadata{Provider: "Gemini", Model: "gemini-3-flash-preview"}, nil
}

type fakeCache struct {
	entries map[string]cache.AutofillEntry
}

func (f *fakeCache) Get(_ context.Context, urls []string) (*cache.AutofillEntry, bool, error) {
	entry, ok := f.entries[strings.Join(urls, "\n")]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (f *fakeCache) Set(_ context.Context, urls []string, entry cache.AutofillEntry) error {
	f.entries[strings.Join(urls, "\n")] = entry
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, urls []string) error {
	delete(f.entries, strings.Join(urls, "\n"))
	return nil
}

type fakeArchive struct {
	mu      sync.Mutex
	reports map[string]*domain.Report
	order   []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{reports: map[string]*domain.Report{}}
}

func (f *fakeArchive) Save(_ context.Context, r *domain.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *r
	f.reports[r.ID] = &copied
	f.order = append(f.order, r.ID)
	return nil
}

func (f *fakeArchive) Get(_ context.Context, id string) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[id], nil
}

func (f *fakeArchive) List(_ context.Context, limit int) ([]*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Report, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.reports[f.order[i]])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakePreviews struct{}

func (fakePreviews) FetchAll(_ context.Context, urls []string) []domain.LinkPreview {
	out := make([]domain.LinkPreview, len(urls))
	for i, u := range urls {
		out[i] = domain.LinkPreview{URL: u, Title: "title " + u}
	}
	return out
}

func newTestServer(intel IntelService, opts Options) *Server {
	opts.Mode = gin.TestMode
	return New(intel, opts, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{})
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if _, ok := body["circuit"]; ok {
		t.Fatalf("expected no circuit section for a plain intel service")
	}
}

type circuitIntel struct {
	fakeIntel
}

func (*circuitIntel) CircuitStatus() map[string]string {
	return map[string]string{"report": "OPEN", "extraction": "CLOSED"}
}

func TestHealthReportsCircuit(t *testing.T) {
	s := newTestServer(&circuitIntel{}, Options{})
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)

	var body struct {
		Circuit map[string]string `json:"circuit"`
	}
	decodeBody(t, rec, &body)
	if body.Circuit["report"] != "OPEN" || body.Circuit["extraction"] != "CLOSED" {
		t.Fatalf("unexpected circuit section: %+v", body.Circuit)
	}
}

func TestAutofillRejectsBadInput(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{})

	cases := []struct {
		name string
		body any
	}{
		{"no urls", map[string]any{"urls": []string{}}},
		{"blank urls", map[string]any{"urls": []string{"  ", ""}}},
		{"bad scheme", map[string]any{"urls": []string{"ftp://files.example/x"}}},
		{"not a url", map[string]any{"urls": []string{"acme"}}},
		{"loopback", map[string]any{"urls": []string{"http://127.0.0.1:8080/admin"}}},
		{"metadata", map[string]any{"urls": []string{"http://169.254.169.254/latest/meta-data"}}},
		{"ipv6 loopback", map[string]any{"urls": []string{"http://[::1]/"}}},
		{"localhost", map[string]any{"urls": []string{"http://localhost:6379"}}},
		{"private", map[string]any{"urls": []string{"https://10.0.0.8/"}}},
	}
	for _, tc := range cases {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/autofill", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, rec.Code, rec.Body.String())
		}
		var resp errorResponse
		decodeBody(t, rec, &resp)
		if resp.Code != errors.CodeValidation {
			t.Fatalf("%s: expected validation code, got %s", tc.name, resp.Code)
		}
	}
}

func TestAutofillMergesDraftAndCaches(t *testing.T) {
	intel := &fakeIntel{autofill: &domain.AutofillResult{
		Seller:     domain.SellerInfo{Name: "Model Name", Company: "Acme"},
		Buyer:      domain.BuyerInfo{JobTitle: "CFO"},
		Confidence: 0.7,
	}}
	s := newTestServer(intel, Options{
		Cache:    &fakeCache{entries: map[string]cache.AutofillEntry{}},
		Previews: fakePreviews{},
	})

	body := map[string]any{
		"urls":   []string{" https://acme.example ", "", "https://globex.example"},
		"seller": map[string]string{"name": "Dana"},
	}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/autofill", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp autofillResponse
	decodeBody(t, rec, &resp)

	if resp.Seller.Name != "Dana" || resp.Seller.Company != "Acme" {
		t.Fatalf("expected draft merged with result, got %+v", resp.Seller)
	}
	if resp.Result.Seller.Name != "Model Name" {
		t.Fatalf("expected raw result untouched, got %+v", resp.Result.Seller)
	}
	if resp.Buyer.JobTitle != "CFO" || resp.Provider != "Gemini" || resp.Cached {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Previews) != 2 || resp.Previews[0].URL != "https://acme.example" {
		t.Fatalf("unexpected previews: %+v", resp.Previews)
	}
	if len(intel.lastURLs) != 2 {
		t.Fatalf("expected normalized urls passed to service, got %v", intel.lastURLs)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/autofill", body)
	decodeBody(t, rec, &resp)
	if !resp.Cached {
		t.Fatalf("expected cached response on second call")
	}
	if intel.autofillCalls != 1 {
		t.Fatalf("expected one model call, got %d", intel.autofillCalls)
	}
}

func TestAutofillErrorMapping(t *testing.T) {
	intel := &fakeIntel{autofillErr: stderrors.New("upstream exploded")}
	s := newTestServer(intel, Options{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/autofill", map[string]any{"urls": []string{"https://a.example"}})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	intel.autofillErr = errors.NewCircuitOpenError(3, nil)
	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/autofill", map[string]any{"urls": []string{"https://a.example"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != errors.CodeCircuitOpen {
		t.Fatalf("expected circuit code, got %s", resp.Code)
	}
}

func TestCreateReportArchivesAndParses(t *testing.T) {
	archive := newFakeArchive()
	s := newTestServer(&fakeIntel{report: sampleReport}, Options{Archive: archive})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/reports", map[string]any{
		"seller": map[string]string{"name": "Dana", "company": "Acme"},
		"buyer":  map[string]string{"name": "Priya", "company": "Globex"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp reportResponse
	decodeBody(t, rec, &resp)

	if resp.Report.Markdown != sampleReport {
		t.Fatalf("expected verbatim markdown")
	}
	if !resp.Archived || resp.Report.ID == "" {
		t.Fatalf("expected archived report with id, got %+v", resp.Report)
	}
	if len(resp.Sections) != 1 || len(resp.Callouts) != 1 || resp.Inference.Inference != 1 {
		t.Fatalf("unexpected structure: %+v", resp)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/reports/"+resp.Report.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stored report, got %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/reports?limit=5", nil)
	var list struct {
		Reports []domain.Report `json:"reports"`
	}
	decodeBody(t, rec, &list)
	if len(list.Reports) != 1 {
		t.Fatalf("expected one listed report, got %d", len(list.Reports))
	}
}

func TestCreateReportValidation(t *testing.T) {
	intel := &fakeIntel{report: sampleReport}
	s := newTestServer(intel, Options{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/reports", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/reports", map[string]any{
		"buyer": map[string]string{"painPoints": strings.Repeat("x", 2001)},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized field, got %d", rec.Code)
	}

	long := strings.Repeat("가", 50000)
	for _, body := range []map[string]any{
		{"seller": map[string]string{"name": long}},
		{"seller": map[string]string{"valueProp": "x", "company": long}},
		{"buyer": map[string]string{"industry": long}},
		{"buyer": map[string]string{"jobTitle": long}},
	} {
		rec = doJSON(t, s.Handler(), http.MethodPost, "/api/reports", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for oversized %v, got %d", keysOf(body), rec.Code)
		}
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/reports", map[string]any{
		"seller": map[string]string{"name": "   ", "company": "\t"},
		"buyer":  map[string]string{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for whitespace-only profiles, got %d", rec.Code)
	}
	if intel.reportCalls != 0 {
		t.Fatalf("expected no model call for invalid input")
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestReportsEndpointsWithoutArchive(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{})

	for _, path := range []string{"/api/reports", "/api/reports/abc"} {
		rec := doJSON(t, s.Handler(), http.MethodGet, path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestReportLookupErrors(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{Archive: newFakeArchive()})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/reports/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/reports?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{AllowOrigins: []string{"https://app.example"}})

	cases := map[string]bool{
		"":                     true,
		"https://app.example":  true,
		"https://evil.example": false,
		"http://example.com":   true,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/ws/reports", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := s.checkOrigin(req); got != want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}

func TestAutofillDoesNotCacheFallbackAnswers(t *testing.T) {
	intel := &fakeIntel{
		autofill:     &domain.AutofillResult{Buyer: domain.BuyerInfo{Company: "Globex"}},
		usedFallback: true,
	}
	store := &fakeCache{entries: map[string]cache.AutofillEntry{}}
	srv := newTestServer(intel, Options{Cache: store})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/autofill", map[string]any{
		"urls": []string{"https://globex.example"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp autofillResponse
	decodeBody(t, rec, &resp)
	if !resp.UsedFallback || resp.Provider != "OpenAI" {
		t.Fatalf("expected fallback metadata in response, got %+v", resp)
	}
	if len(store.entries) != 0 {
		t.Fatalf("expected fallback answer to stay out of the cache")
	}
}

func TestAutofillRefreshBypassesCache(t *testing.T) {
	intel := &fakeIntel{autofill: &domain.AutofillResult{Buyer: domain.BuyerInfo{Company: "Fresh"}}}
	store := &fakeCache{entries: map[string]cache.AutofillEntry{
		"https://globex.example": {Result: domain.AutofillResult{Buyer: domain.BuyerInfo{Company: "Stale"}}},
	}}
	srv := newTestServer(intel, Options{Cache: store})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/autofill", map[string]any{
		"urls":    []string{"https://globex.example"},
		"refresh": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp autofillResponse
	decodeBody(t, rec, &resp)
	if resp.Cached || resp.Buyer.Company != "Fresh" {
		t.Fatalf("expected a fresh answer, got %+v", resp)
	}
	if intel.autofillCalls != 1 {
		t.Fatalf("expected one model call, got %d", intel.autofillCalls)
	}
	if got := store.entries["https://globex.example"].Result.Buyer.Company; got != "Fresh" {
		t.Fatalf("expected cache rewritten with fresh answer, got %q", got)
	}
}

func TestHealthDegradedWhenDependencyFails(t *testing.T) {
	s := newTestServer(&fakeIntel{}, Options{HealthChecks: map[string]func(context.Context) error{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return stderrors.New("connection refused") },
	}})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
	if body.Dependencies["redis"] != "ok" || body.Dependencies["postgres"] != "connection refused" {
		t.Fatalf("unexpected dependencies: %+v", body.Dependencies)
	}
}
