package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/sales-intel-go/pkg/errors"
)

func dialReportStream(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(s.Handler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reports"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) streamEvent {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var event streamEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestReportStreamCompletes(t *testing.T) {
	archive := newFakeArchive()
	conn, closeFn := dialReportStream(t, newTestServer(&fakeIntel{report: sampleReport}, Options{Archive: archive}))
	defer closeFn()

	if err := conn.WriteJSON(map[string]any{
		"requestId": "r1",
		"seller":    map[string]string{"name": "Dana"},
		"buyer":     map[string]string{"company": "Globex"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	started := readEvent(t, conn)
	if started.Type != streamEventStarted || started.RequestID != "r1" {
		t.Fatalf("expected started event, got %+v", started)
	}

	completed := readEvent(t, conn)
	if completed.Type != streamEventCompleted || completed.Report == nil {
		t.Fatalf("expected completed event, got %+v", completed)
	}
	if completed.Report.Markdown != sampleReport || !completed.Archived {
		t.Fatalf("unexpected completed payload: %+v", completed)
	}
	if len(completed.Callouts) != 1 {
		t.Fatalf("expected parsed callouts, got %+v", completed.Callouts)
	}
}

func TestReportStreamFailures(t *testing.T) {
	intel := &fakeIntel{reportErr: errors.NewCircuitOpenError(3, nil)}
	conn, closeFn := dialReportStream(t, newTestServer(intel, Options{}))
	defer closeFn()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	invalid := readEvent(t, conn)
	if invalid.Type != streamEventFailed || invalid.Code != errors.CodeValidation {
		t.Fatalf("expected validation failure, got %+v", invalid)
	}

	if err := conn.WriteJSON(map[string]any{"requestId": "r2", "seller": map[string]string{"name": "Dana"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if started := readEvent(t, conn); started.Type != streamEventStarted {
		t.Fatalf("expected started, got %+v", started)
	}
	failed := readEvent(t, conn)
	if failed.Type != streamEventFailed || failed.Code != errors.CodeCircuitOpen || failed.RequestID != "r2" {
		t.Fatalf("expected circuit failure, got %+v", failed)
	}
}
