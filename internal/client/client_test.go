package client

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/server"
	"github.com/kapu/sales-intel-go/internal/service/ai"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

type stubIntel struct {
	report    string
	reportErr error
	block     chan struct{}
}

func (s *stubIntel) FetchAutofillData(_ context.Context, urls []string) (*domain.AutofillResult, *ai.GenerateMetadata, error) {
	return &domain.AutofillResult{
		Seller:     domain.SellerInfo{Company: "Acme"},
		Confidence: float64(len(urls)) / 10,
	}, &ai.GenerateMetadata{Provider: "Gemini", Model: "gemini-3-flash-preview"}, nil
}

func (s *stubIntel) GenerateDeepReport(ctx context.Context, _ domain.SellerInfo, _ domain.BuyerInfo) (string, *ai.GenerateMetadata, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
		return "", nil, stderrors.New("aborted")
	}
	if s.reportErr != nil {
		return "", nil, s.reportErr
	}
	return s.report, &ai.GenerateMetadata{Provider: "Gemini", Model: "gemini-3-flash-preview"}, nil
}

func newAPI(t *testing.T, intel server.IntelService) *httptest.Server {
	t.Helper()
	s := server.New(intel, server.Options{Mode: gin.TestMode}, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAutofillAndReport(t *testing.T) {
	srv := newAPI(t, &stubIntel{report: "# Snapshot\nLikely: yes\n"})
	c := NewClient(srv.URL+"/", time.Second*5, zap.NewNop())
	ctx := context.Background()

	if !c.Health(ctx) {
		t.Fatalf("expected healthy server")
	}

	draft := domain.SellerInfo{Name: "Dana"}
	autofill, err := c.Autofill(ctx, AutofillRequest{URLs: []string{"https://acme.example"}, Seller: &draft})
	if err != nil {
		t.Fatalf("unexpected autofill error: %v", err)
	}
	if autofill.Seller.Name != "Dana" || autofill.Seller.Company != "Acme" || autofill.Provider != "Gemini" {
		t.Fatalf("unexpected autofill response: %+v", autofill)
	}

	rep, err := c.CreateReport(ctx, draft, domain.BuyerInfo{Company: "Globex"})
	if err != nil {
		t.Fatalf("unexpected report error: %v", err)
	}
	if rep.Report.Markdown != "# Snapshot\nLikely: yes\n" || rep.Inference.Likely != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestClientKeepsServerErrorCode(t *testing.T) {
	srv := newAPI(t, &stubIntel{})
	c := NewClient(srv.URL, time.Second*5, nil)

	_, err := c.Autofill(context.Background(), AutofillRequest{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if got := errors.StatusOf(err, 0); got != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", got)
	}
	if got := errors.CodeOf(err, ""); got != errors.CodeValidation {
		t.Fatalf("expected validation code, got %q", got)
	}

	if _, err := c.ListReports(context.Background(), 5); errors.StatusOf(err, 0) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without archive, got %v", err)
	}
}

func TestStreamURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":  "ws://localhost:8080/ws/reports",
		"https://intel.example/": "wss://intel.example/ws/reports",
	}
	for base, want := range cases {
		if got := NewClient(base, 0, nil).StreamURL(); got != want {
			t.Fatalf("StreamURL(%q) = %q, want %q", base, got, want)
		}
	}
}

func TestReportStreamGenerate(t *testing.T) {
	srv := newAPI(t, &stubIntel{report: "# Report\n"})
	stream := NewReportStream(NewClient(srv.URL, 0, nil).StreamURL(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	var seen []string
	stream.OnEvent(func(event *StreamEvent) {
		seen = append(seen, event.Type)
	})

	event, err := stream.Generate(ctx, "req-1", domain.SellerInfo{Name: "Dana"}, domain.BuyerInfo{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if event.Report == nil || event.Report.Markdown != "# Report\n" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(seen) != 2 || seen[0] != EventStarted || seen[1] != EventCompleted {
		t.Fatalf("unexpected event sequence: %v", seen)
	}
	if stream.GetState() != StreamStateConnected {
		t.Fatalf("expected connected stream, got %s", stream.GetState())
	}
}

func TestReportStreamFailure(t *testing.T) {
	srv := newAPI(t, &stubIntel{reportErr: stderrors.New("model down")})
	stream := NewReportStream(NewClient(srv.URL, 0, nil).StreamURL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	_, err := stream.Generate(ctx, "req-2", domain.SellerInfo{Name: "Dana"}, domain.BuyerInfo{})
	if err == nil || err.Error() != "model down" {
		t.Fatalf("expected server failure message, got %v", err)
	}
}

func TestGenerateWithoutConnect(t *testing.T) {
	if _, err := NewReportStream("ws://unused", nil).Generate(context.Background(), "", domain.SellerInfo{}, domain.BuyerInfo{}); err == nil {
		t.Fatalf("expected error without connection")
	}
}

func TestReportStreamGenerateHonorsCancel(t *testing.T) {
	intel := &stubIntel{block: make(chan struct{})}
	srv := newAPI(t, intel)
	t.Cleanup(func() { close(intel.block) })

	stream := NewReportStream(NewClient(srv.URL, 0, nil).StreamURL(), zap.NewNop())
	if err := stream.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Generate(ctx, "req-3", domain.SellerInfo{Name: "Dana"}, domain.BuyerInfo{})
		done <- err
	}()

	select {
	case err := <-done:
		if !stderrors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("generate did not return after cancel")
	}
	if stream.GetState() != StreamStateDisconnected {
		t.Fatalf("expected disconnected stream after cancel, got %s", stream.GetState())
	}
}

func TestReportStreamCloseDuringGenerate(t *testing.T) {
	intel := &stubIntel{block: make(chan struct{})}
	srv := newAPI(t, intel)
	t.Cleanup(func() { close(intel.block) })

	stream := NewReportStream(NewClient(srv.URL, 0, nil).StreamURL(), zap.NewNop())
	if err := stream.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := stream.Generate(context.Background(), "req-4", domain.SellerInfo{Name: "Dana"}, domain.BuyerInfo{})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = stream.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected generate to fail after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("generate did not return after close")
	}
}
