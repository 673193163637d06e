package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kapu/sales-intel-go/internal/constants"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/report"
	"github.com/kapu/sales-intel-go/internal/service/cache"
	"github.com/kapu/sales-intel-go/internal/util"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

type autofillRequest struct {
	URLs    []string           `json:"urls"`
	Seller  *domain.SellerInfo `json:"seller,omitempty"`
	Buyer   *domain.BuyerInfo  `json:"buyer,omitempty"`
	Refresh bool               `json:"refresh,omitempty"`
}

type autofillResponse struct {
	Result       domain.AutofillResult `json:"result"`
	Seller       domain.SellerInfo     `json:"seller"`
	Buyer        domain.BuyerInfo      `json:"buyer"`
	Previews     []domain.LinkPreview  `json:"previews"`
	Provider     string                `json:"provider"`
	Model        string                `json:"model"`
	UsedFallback bool                  `json:"usedFallback"`
	Cached       bool                  `json:"cached"`
}

type reportRequest struct {
	Seller domain.SellerInfo `json:"seller"`
	Buyer  domain.BuyerInfo  `json:"buyer"`
}

type reportResponse struct {
	Report    domain.Report          `json:"report"`
	Sections  []report.Section       `json:"sections"`
	Callouts  []report.Callout       `json:"callouts"`
	Inference report.InferenceCounts `json:"inference"`
	Archived  bool                   `json:"archived"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// circuitReporter is implemented by *ai.IntelService.
type circuitReporter interface {
	CircuitStatus() map[string]string
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"cache":    s.cache != nil,
		"archive":  s.archive != nil,
		"previews": s.previews != nil,
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		deps := gin.H{}
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				body["status"] = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		body["dependencies"] = deps
	}

	if reporter, ok := s.intel.(circuitReporter); ok {
		if states := reporter.CircuitStatus(); len(states) > 0 {
			body["circuit"] = states
		}
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) handleAutofill(c *gin.Context) {
	var req autofillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.NewValidationError("invalid request body", "body", err.Error()), http.StatusBadRequest)
		return
	}

	urls, err := s.normalizeURLs(req.URLs)
	if err != nil {
		s.respondError(c, err, http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()

	var previews []domain.LinkPreview
	var wg conc.WaitGroup
	if s.previews != nil {
		wg.Go(func() {
			previews = s.previews.FetchAll(ctx, urls)
		})
	}

	usedFallback := false
	entry, cached := s.lookupAutofill(c, urls, req.Refresh)
	if entry == nil {
		result, metadata, err := s.intel.FetchAutofillData(ctx, urls)
		if err != nil {
			wg.Wait()
			s.respondError(c, err, http.StatusBadGateway)
			return
		}

		entry = &cache.AutofillEntry{Result: *result, CachedAt: time.Now()}
		if metadata != nil {
			entry.Provider = metadata.Provider
			entry.Model = metadata.Model
			usedFallback = metadata.UsedFallback
		}
		s.storeAutofill(c, urls, *entry, usedFallback)
	}

	wg.Wait()

	resp := autofillResponse{
		Result:       entry.Result,
		Seller:       entry.Result.Seller,
		Buyer:        entry.Result.Buyer,
		Previews:     previews,
		Provider:     entry.Provider,
		Model:        entry.Model,
		UsedFallback: usedFallback,
		Cached:       cached,
	}
	if resp.Previews == nil {
		resp.Previews = []domain.LinkPreview{}
	}
	if req.Seller != nil {
		resp.Seller = domain.MergeSeller(*req.Seller, entry.Result.Seller)
	}
	if req.Buyer != nil {
		resp.Buyer = domain.MergeBuyer(*req.Buyer, entry.Result.Buyer)
	}

	c.JSON(http.StatusOK, resp)
}

// lookupAutofill returns a cached answer. refresh drops the entry instead.
func (s *Server) lookupAutofill(c *gin.Context, urls []string, refresh bool) (*cache.AutofillEntry, bool) {
	if s.cache == nil {
		return nil, false
	}

	if refresh {
		if err := s.cache.Invalidate(c.Request.Context(), urls); err != nil {
			s.logger.Warn("Autofill cache invalidation failed", zap.Error(err))
		}
		return nil, false
	}

	entry, found, err := s.cache.Get(c.Request.Context(), urls)
	if err != nil {
		s.logger.Warn("Autofill cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	return entry, true
}

// storeAutofill skips fallback answers so the cache only holds primary-model output.
func (s *Server) storeAutofill(c *gin.Context, urls []string, entry cache.AutofillEntry, usedFallback bool) {
	if s.cache == nil || usedFallback {
		return
	}
	if err := s.cache.Set(c.Request.Context(), urls, entry); err != nil {
		s.logger.Warn("Autofill cache store failed", zap.Error(err))
	}
}

func (s *Server) handleCreateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.NewValidationError("invalid request body", "body", err.Error()), http.StatusBadRequest)
		return
	}

	if err := validateProfiles(req.Seller, req.Buyer); err != nil {
		s.respondError(c, err, http.StatusBadRequest)
		return
	}

	resp, err := s.generateReport(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// generateReport runs the deep report and archives it when an archive is configured.
func (s *Server) generateReport(ctx context.Context, req reportRequest) (*reportResponse, error) {
	markdown, metadata, err := s.intel.GenerateDeepReport(ctx, req.Seller, req.Buyer)
	if err != nil {
		return nil, err
	}

	rec := domain.Report{
		ID:        uuid.NewString(),
		Seller:    req.Seller,
		Buyer:     req.Buyer,
		Markdown:  markdown,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		rec.Provider = metadata.Provider
		rec.Model = metadata.Model
	}

	archived := false
	if s.archive != nil {
		if err := s.archive.Save(ctx, &rec); err != nil {
			s.logger.Warn("Failed to archive report", zap.String("id", rec.ID), zap.Error(err))
		} else {
			archived = true
		}
	}

	doc := report.Parse(markdown)
	return &reportResponse{
		Report:    rec,
		Sections:  doc.Sections,
		Callouts:  doc.Callouts,
		Inference: report.InferenceLabels(markdown),
		Archived:  archived,
	}, nil
}

func (s *Server) handleListReports(c *gin.Context) {
	if s.archive == nil {
		s.respondError(c, archiveDisabled(), http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, errors.NewValidationError("limit must be an integer", "limit", raw), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	reports, err := s.archive.List(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) handleGetReport(c *gin.Context) {
	if s.archive == nil {
		s.respondError(c, archiveDisabled(), http.StatusServiceUnavailable)
		return
	}

	rec, err := s.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	if rec == nil {
		s.respondError(c, errors.NewAppError("report not found", errors.CodeNotFound, http.StatusNotFound, map[string]any{
			"id": c.Param("id"),
		}), http.StatusNotFound)
		return
	}

	doc := report.Parse(rec.Markdown)
	c.JSON(http.StatusOK, reportResponse{
		Report:    *rec,
		Sections:  doc.Sections,
		Callouts:  doc.Callouts,
		Inference: report.InferenceLabels(rec.Markdown),
		Archived:  true,
	})
}

// normalizeURLs trims and drops blank entries, then checks count, length and
// scheme of what is left.
func (s *Server) normalizeURLs(raw []string) ([]string, error) {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}

	if len(urls) == 0 {
		return nil, errors.NewValidationError("at least one url is required", "urls", raw)
	}
	if len(urls) > constants.AIInputLimits.MaxAutofillURLs {
		return nil, errors.NewValidationError(
			fmt.Sprintf("at most %d urls are allowed", constants.AIInputLimits.MaxAutofillURLs), "urls", len(urls))
	}

	rule := fmt.Sprintf("url,max=%d", constants.AIInputLimits.MaxURLLength)
	for _, u := range urls {
		if err := s.validate.Var(u, rule); err != nil {
			return nil, errors.NewValidationError("invalid url", "urls", u)
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, errors.NewValidationError("url must use http or https", "urls", u)
		}
		if util.IsBlockedHost(parsed.Hostname()) {
			return nil, errors.NewValidationError("url must point to a public host", "urls", u)
		}
	}

	return urls, nil
}

func validateProfiles(seller domain.SellerInfo, buyer domain.BuyerInfo) error {
	if seller.IsEmpty() && buyer.IsEmpty() {
		return errors.NewValidationError("seller or buyer details are required", "seller", nil)
	}

	if err := checkFieldLengths("seller", seller.Fields()); err != nil {
		return err
	}
	return checkFieldLengths("buyer", buyer.Fields())
}

func checkFieldLengths(prefix string, fields []domain.Field) error {
	for _, f := range fields {
		if n := utf8.RuneCountInString(f.Value); n > constants.AIInputLimits.MaxFieldLength {
			name := prefix + "." + f.Name
			return errors.NewValidationError(
				fmt.Sprintf("%s exceeds %d characters", name, constants.AIInputLimits.MaxFieldLength), name, n)
		}
	}
	return nil
}

func archiveDisabled() error {
	return errors.NewServiceError("report archive is disabled", "archive", "lookup", nil)
}

func (s *Server) respondError(c *gin.Context, err error, fallback int) {
	status := errors.StatusOf(err, fallback)
	code := errors.CodeOf(err, errors.CodeAPIError)

	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: code})
}
