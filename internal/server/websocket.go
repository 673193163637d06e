package server

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kapu/sales-intel-go/internal/constants"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/report"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

const (
	streamEventStarted   = "started"
	streamEventCompleted = "completed"
	streamEventFailed    = "failed"
)

type streamEvent struct {
	Type      string                  `json:"type"`
	RequestID string                  `json:"requestId,omitempty"`
	Report    *domain.Report          `json:"report,omitempty"`
	Sections  []report.Section        `json:"sections,omitempty"`
	Callouts  []report.Callout        `json:"callouts,omitempty"`
	Inference *report.InferenceCounts `json:"inference,omitempty"`
	Archived  bool                    `json:"archived,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Code      string                  `json:"code,omitempty"`
}

type streamRequest struct {
	RequestID string            `json:"requestId"`
	Seller    domain.SellerInfo `json:"seller"`
	Buyer     domain.BuyerInfo  `json:"buyer"`
}

// handleReportStream serves one report per inbound message, in order, until
// the client disconnects.
func (s *Server) handleReportStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(constants.WebSocketConfig.MaxMessageBytes)
	ctx := c.Request.Context()

	s.logger.Info("Report stream connected", zap.String("remote", c.Request.RemoteAddr))
	defer s.logger.Info("Report stream closed", zap.String("remote", c.Request.RemoteAddr))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Report stream read error", zap.Error(err))
			}
			return
		}

		var req streamRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !s.writeEvent(conn, failedEvent("", errors.NewValidationError("invalid message", "body", err.Error()))) {
				return
			}
			continue
		}

		if err := validateProfiles(req.Seller, req.Buyer); err != nil {
			if !s.writeEvent(conn, failedEvent(req.RequestID, err)) {
				return
			}
			continue
		}

		if !s.writeEvent(conn, streamEvent{Type: streamEventStarted, RequestID: req.RequestID}) {
			return
		}

		resp, err := s.generateReport(ctx, reportRequest{Seller: req.Seller, Buyer: req.Buyer})
		if err != nil {
			s.logger.Warn("Streamed report failed", zap.String("request_id", req.RequestID), zap.Error(err))
			if !s.writeEvent(conn, failedEvent(req.RequestID, err)) {
				return
			}
			continue
		}

		inference := resp.Inference
		if !s.writeEvent(conn, streamEvent{
			Type:      streamEventCompleted,
			RequestID: req.RequestID,
			Report:    &resp.Report,
			Sections:  resp.Sections,
			Callouts:  resp.Callouts,
			Inference: &inference,
			Archived:  resp.Archived,
		}) {
			return
		}
	}
}

func failedEvent(requestID string, err error) streamEvent {
	return streamEvent{
		Type:      streamEventFailed,
		RequestID: requestID,
		Error:     err.Error(),
		Code:      errors.CodeOf(err, errors.CodeAPIError),
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, event streamEvent) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout)); err != nil {
		return false
	}
	if err := conn.WriteJSON(event); err != nil {
		s.logger.Warn("Report stream write failed", zap.String("type", event.Type), zap.Error(err))
		return false
	}
	return true
}
