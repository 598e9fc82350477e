// Package workflow calls the remote research workflows (webhook endpoints on
// the orchestration platform) that back Stage-1 cell research and Stage-2
// criterion ranking.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/clarioo/compare-cli/internal/resilience"
)

const defaultTimeout = 3 * time.Minute

// Client invokes the Stage-1 and Stage-2 workflows. No retries are performed;
// callers decide whether and when to re-issue a call.
type Client interface {
	ResearchCell(ctx context.Context, req CellRequest) (*CellResponse, error)
	RankCriterion(ctx context.Context, req RankRequest) (*RankResponse, error)
}

// VendorRef identifies the vendor under research.
type VendorRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

// CriterionRef identifies the criterion under research.
type CriterionRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Importance  string `json:"importance"`
	Description string `json:"description"`
}

// CellRequest is the Stage-1 request body.
type CellRequest struct {
	ProjectID          string       `json:"project_id"`
	ProjectName        string       `json:"project_name"`
	ProjectDescription string       `json:"project_description"`
	CriterionType      string       `json:"criterion_type"`
	Vendor             VendorRef    `json:"vendor"`
	Criterion          CriterionRef `json:"criterion"`
}

// CellResult is the Stage-1 payload.
type CellResult struct {
	EvidenceStrength    string `json:"evidence_strength"`
	EvidenceURL         string `json:"evidence_url"`
	EvidenceDescription string `json:"evidence_description"`
	ResearchNotes       string `json:"research_notes"`
}

// CellResponse is the Stage-1 response envelope.
type CellResponse struct {
	Success bool        `json:"success"`
	Result  *CellResult `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// VendorEvidence is the prior Stage-1 evidence for one vendor.
type VendorEvidence struct {
	VendorID            string `json:"vendor_id"`
	VendorName          string `json:"vendor_name"`
	VendorWebsite       string `json:"vendor_website"`
	CriterionID         string `json:"criterion_id"`
	EvidenceStrength    string `json:"evidence_strength"`
	EvidenceURL         string `json:"evidence_url"`
	EvidenceDescription string `json:"evidence_description"`
	VendorSiteEvidence  string `json:"vendor_site_evidence"`
	ThirdPartyEvidence  string `json:"third_party_evidence"`
	ResearchNotes       string `json:"research_notes"`
	SearchCount         int    `json:"search_count"`
}

// RankRequest is the Stage-2 request body.
type RankRequest struct {
	ProjectID          string           `json:"project_id"`
	ProjectName        string           `json:"project_name"`
	ProjectDescription string           `json:"project_description"`
	CriterionType      string           `json:"criterion_type"`
	Criterion          CriterionRef     `json:"criterion"`
	Stage1Results      []VendorEvidence `json:"stage1_results"`
}

// VendorRanking is Stage 2's authoritative verdict for one vendor.
type VendorRanking struct {
	VendorID            string `json:"vendor_id"`
	State               string `json:"state"`
	EvidenceURL         string `json:"evidence_url"`
	EvidenceDescription string `json:"evidence_description"`
	Comment             string `json:"comment"`
}

// RankResult is the Stage-2 payload.
type RankResult struct {
	CriterionInsight string          `json:"criterion_insight"`
	StarsAwarded     int             `json:"stars_awarded"`
	VendorRankings   []VendorRanking `json:"vendor_rankings"`
}

// RankResponse is the Stage-2 response envelope.
type RankResponse struct {
	Success bool        `json:"success"`
	Result  *RankResult `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is a coded workflow failure. It is both the error body of a
// success=false response and the error type returned for transport failures.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a coded failure around cause.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Transient reports whether the failure is worth retrying: throttling, a 5xx
// or a network-level fault.
func (e *Error) Transient() bool {
	return e.cause != nil && resilience.IsTransient(e.cause)
}

// ErrorCode returns the machine code carried by the error.
func (e *Error) ErrorCode() string {
	return e.Code
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-call transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing calls to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	stage1URL string
	stage2URL string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a webhook client for the given Stage-1 and Stage-2 URLs.
func NewClient(stage1URL, stage2URL string, opts ...Option) Client {
	c := &httpClient{
		stage1URL: stage1URL,
		stage2URL: stage2URL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ResearchCell(ctx context.Context, req CellRequest) (*CellResponse, error) {
	var resp CellResponse
	if err := c.post(ctx, c.stage1URL, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) RankCriterion(ctx context.Context, req RankRequest) (*RankResponse, error) {
	var resp RankResponse
	if err := c.post(ctx, c.stage2URL, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, url string, body, out any) error {
	if url == "" {
		return &Error{Code: "NOT_CONFIGURED", Message: "workflow: webhook url is not configured"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(eris.Wrap(err, "workflow: rate limit"))
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "workflow: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "workflow: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportError(eris.Wrap(err, "workflow: send request"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(eris.Wrap(err, "workflow: read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Code: "INVALID_RESPONSE", Message: "workflow: unmarshal response", cause: err}
	}
	return nil
}

// statusError reports a non-2xx response. 408, 429 and 5xx are marked
// transient.
func statusError(status int, body []byte) *Error {
	msg := fmt.Sprintf("workflow: unexpected status %d: %s", status, truncate(string(body), 200))
	var cause error = eris.New(msg)
	if resilience.IsTransientHTTPStatus(status) {
		cause = resilience.NewTransientError(cause, status)
	}
	return &Error{Code: resilience.HTTPCode(status), Message: msg, cause: cause}
}

func transportError(err error) *Error {
	code := resilience.ErrorCode(err)
	if code == resilience.CodeUnknown {
		code = resilience.CodeNetwork
	}
	return &Error{Code: code, Message: err.Error(), cause: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
