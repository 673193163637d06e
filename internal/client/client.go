package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

// Client talks to a running sales-intel API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) Health(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func (c *Client) Autofill(ctx context.Context, req AutofillRequest) (*AutofillResponse, error) {
	var resp AutofillResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/autofill", req, &resp); err != nil {
		c.logger.Error("Autofill request failed", zap.Int("url_count", len(req.URLs)), zap.Error(err))
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateReport(ctx context.Context, seller domain.SellerInfo, buyer domain.BuyerInfo) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/reports", ReportRequest{Seller: seller, Buyer: buyer}, &resp); err != nil {
		c.logger.Error("Report request failed", zap.Error(err))
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetReport(ctx context.Context, id string) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	path := "/api/reports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp ReportList
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// StreamURL derives the report websocket URL from the HTTP base URL.
func (c *Client) StreamURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/ws/reports"
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/ws/reports"
	default:
		return c.baseURL + "/ws/reports"
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return errors.NewAPIError("failed to marshal request", http.StatusBadRequest, map[string]any{
				"url": endpoint,
			}).WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return errors.NewAPIError("failed to create request", http.StatusInternalServerError, map[string]any{
			"url": endpoint,
		}).WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewAPIError("request failed", http.StatusBadGateway, map[string]any{
			"url": endpoint,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeErrorBody(endpoint, resp, bodyBytes)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return errors.NewAPIError("failed to decode response", http.StatusInternalServerError, map[string]any{
				"url": endpoint,
			}).WithCause(err)
		}
	}

	return nil
}

// decodeErrorBody keeps the server's error code so callers can branch on it.
func decodeErrorBody(endpoint string, resp *http.Response, body []byte) error {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		apiErr := errors.NewAPIError(parsed.Error, resp.StatusCode, map[string]any{
			"url": endpoint,
		})
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		return apiErr
	}

	return errors.NewAPIError(
		fmt.Sprintf("sales-intel API error: %s", resp.Status),
		resp.StatusCode,
		map[string]any{
			"url":  endpoint,
			"body": string(body),
		},
	)
}
