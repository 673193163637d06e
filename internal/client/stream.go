package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

type EventCallback func(event *StreamEvent)

// ReportStream is a client for the /ws/reports endpoint. Requests on one
// stream are served in order, so Generate calls are serialized. Close may be
// called from another goroutine while Generate is blocked.
type ReportStream struct {
	wsURL   string
	conn    *websocket.Conn
	connMu  sync.Mutex
	state   StreamState
	stateMu sync.RWMutex
	reqMu   sync.Mutex
	logger  *zap.Logger
	onEvent EventCallback
}

func NewReportStream(wsURL string, logger *zap.Logger) *ReportStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportStream{
		wsURL:  wsURL,
		state:  StreamStateDisconnected,
		logger: logger,
	}
}

// OnEvent registers a callback that sees every event, including "started".
func (rs *ReportStream) OnEvent(callback EventCallback) {
	rs.reqMu.Lock()
	defer rs.reqMu.Unlock()
	rs.onEvent = callback
}

func (rs *ReportStream) Connect(ctx context.Context) error {
	rs.stateMu.Lock()
	if rs.state == StreamStateConnected || rs.state == StreamStateConnecting {
		rs.stateMu.Unlock()
		rs.logger.Warn("Report stream already connected or connecting")
		return nil
	}
	rs.stateMu.Unlock()

	rs.setState(StreamStateConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, rs.wsURL, nil)
	if err != nil {
		rs.logger.Error("Failed to connect report stream", zap.Error(err))
		rs.setState(StreamStateFailed)
		return errors.NewAPIError("report stream connect failed", 502, map[string]any{
			"url": rs.wsURL,
		}).WithCause(err)
	}

	rs.connMu.Lock()
	rs.conn = conn
	rs.connMu.Unlock()
	rs.setState(StreamStateConnected)
	rs.logger.Info("Report stream connected", zap.String("url", rs.wsURL))

	return nil
}

// Generate sends one report request and blocks until the server answers with
// completed or failed. A failed event is returned as an APIError carrying the
// server's code.
func (rs *ReportStream) Generate(ctx context.Context, requestID string, seller domain.SellerInfo, buyer domain.BuyerInfo) (*StreamEvent, error) {
	rs.reqMu.Lock()
	defer rs.reqMu.Unlock()

	conn := rs.currentConn()
	if conn == nil {
		return nil, fmt.Errorf("report stream not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	// unblock the read or write below as soon as ctx is done
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = conn.SetWriteDeadline(now)
		_ = conn.SetReadDeadline(now)
	})
	defer stop()

	if err := conn.WriteJSON(ReportRequest{RequestID: requestID, Seller: seller, Buyer: buyer}); err != nil {
		rs.dropConn(conn)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("send report request: %w", ctx.Err())
		}
		return nil, fmt.Errorf("send report request: %w", err)
	}

	for {
		var event StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			// a failed read leaves the connection unusable
			rs.dropConn(conn)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("read report event: %w", ctx.Err())
			}
			return nil, fmt.Errorf("read report event: %w", err)
		}

		if rs.onEvent != nil {
			rs.onEvent(&event)
		}

		if event.RequestID != "" && requestID != "" && event.RequestID != requestID {
			rs.logger.Warn("Ignoring event for another request", zap.String("request_id", event.RequestID))
			continue
		}

		switch event.Type {
		case EventCompleted:
			return &event, nil
		case EventFailed:
			apiErr := errors.NewAPIError(event.Error, 0, map[string]any{"request_id": event.RequestID})
			if event.Code != "" {
				apiErr.Code = event.Code
			}
			return nil, apiErr
		}
	}
}

func (rs *ReportStream) setState(newState StreamState) {
	rs.stateMu.Lock()
	oldState := rs.state
	rs.state = newState
	rs.stateMu.Unlock()

	if oldState != newState {
		rs.logger.Debug("Report stream state changed",
			zap.String("from", oldState.String()),
			zap.String("to", newState.String()),
		)
	}
}

func (rs *ReportStream) GetState() StreamState {
	rs.stateMu.RLock()
	defer rs.stateMu.RUnlock()
	return rs.state
}

func (rs *ReportStream) currentConn() *websocket.Conn {
	rs.connMu.Lock()
	defer rs.connMu.Unlock()
	return rs.conn
}

// dropConn closes conn if it is still the active connection.
func (rs *ReportStream) dropConn(conn *websocket.Conn) {
	rs.connMu.Lock()
	if rs.conn == conn {
		rs.conn = nil
	}
	rs.connMu.Unlock()

	_ = conn.Close()
	rs.setState(StreamStateDisconnected)
}

func (rs *ReportStream) Close() error {
	rs.connMu.Lock()
	conn := rs.conn
	rs.conn = nil
	rs.connMu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	err := conn.Close()
	rs.setState(StreamStateDisconnected)
	if err != nil {
		rs.logger.Error("Failed to close report stream", zap.Error(err))
		return err
	}
	return nil
}
