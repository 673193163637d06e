package client

import (
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/report"
)

type AutofillRequest struct {
	URLs    []string           `json:"urls"`
	Seller  *domain.SellerInfo `json:"seller,omitempty"`
	Buyer   *domain.BuyerInfo  `json:"buyer,omitempty"`
	Refresh bool               `json:"refresh,omitempty"`
}

type AutofillResponse struct {
	Result       domain.AutofillResult `json:"result"`
	Seller       domain.SellerInfo     `json:"seller"`
	Buyer        domain.BuyerInfo      `json:"buyer"`
	Previews     []domain.LinkPreview  `json:"previews"`
	Provider     string                `json:"provider"`
	Model        string                `json:"model"`
	UsedFallback bool                  `json:"usedFallback"`
	Cached       bool                  `json:"cached"`
}

type ReportRequest struct {
	RequestID string            `json:"requestId,omitempty"`
	Seller    domain.SellerInfo `json:"seller"`
	Buyer     domain.BuyerInfo  `json:"buyer"`
}

type ReportResponse struct {
	Report    domain.Report          `json:"report"`
	Sections  []report.Section       `json:"sections"`
	Callouts  []report.Callout       `json:"callouts"`
	Inference report.InferenceCounts `json:"inference"`
	Archived  bool                   `json:"archived"`
}

type ReportList struct {
	Reports []domain.Report `json:"reports"`
}

// StreamEvent is one message of the /ws/reports stream.
type StreamEvent struct {
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

const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type StreamState string

const (
	StreamStateConnecting   StreamState = "CONNECTING"
	StreamStateConnected    StreamState = "CONNECTED"
	StreamStateDisconnected StreamState = "DISCONNECTED"
	StreamStateFailed       StreamState = "FAILED"
)

func (s StreamState) String() string {
	return string(s)
}
