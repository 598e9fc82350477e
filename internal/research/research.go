// Package research implements the Stage-1 and Stage-2 research contracts
// directly against Claude, for deployments without the workflow platform.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/resilience"
	"github.com/clarioo/compare-cli/pkg/anthropic"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

// CodeParseError marks a model response that could not be decoded.
const CodeParseError = "PARSE_ERROR"

// Config holds model settings for the backend.
type Config struct {
	Model     string
	MaxTokens int64
}

// Backend answers research and ranking requests with Claude. It satisfies
// workflow.Client.
type Backend struct {
	client anthropic.Client
	cfg    Config
}

var _ workflow.Client = (*Backend)(nil)

// New creates a Backend.
func New(client anthropic.Client, cfg Config) *Backend {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Backend{client: client, cfg: cfg}
}

// ResearchCell performs Stage-1 research for one vendor and criterion.
func (b *Backend) ResearchCell(ctx context.Context, req workflow.CellRequest) (*workflow.CellResponse, error) {
	prompt := fmt.Sprintf(cellUserPrompt,
		req.ProjectName, req.ProjectDescription, req.CriterionType,
		req.Vendor.Name, req.Vendor.Website,
		req.Criterion.Name, req.Criterion.Importance, req.Criterion.Description,
	)

	text, err := b.complete(ctx, cellSystemPrompt, prompt, "stage1")
	if err != nil {
		return nil, err
	}

	var result workflow.CellResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		zap.L().Warn("research: unparseable stage1 response",
			zap.String("vendor_id", req.Vendor.ID),
			zap.String("criterion_id", req.Criterion.ID),
			zap.Error(err),
		)
		return &workflow.CellResponse{Error: parseError(err)}, nil
	}
	result.EvidenceStrength = strings.ToLower(strings.TrimSpace(result.EvidenceStrength))

	return &workflow.CellResponse{Success: true, Result: &result}, nil
}

// RankCriterion performs Stage-2 ranking across all vendors for a criterion.
func (b *Backend) RankCriterion(ctx context.Context, req workflow.RankRequest) (*workflow.RankResponse, error) {
	evidence, err := json.MarshalIndent(req.Stage1Results, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "research: marshal stage1 evidence")
	}

	prompt := fmt.Sprintf(rankUserPrompt,
		req.ProjectName, req.ProjectDescription, req.CriterionType,
		req.Criterion.Name, req.Criterion.Importance, req.Criterion.Description,
		string(evidence),
	)

	text, err := b.complete(ctx, rankSystemPrompt, prompt, "stage2")
	if err != nil {
		return nil, err
	}

	var result workflow.RankResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		zap.L().Warn("research: unparseable stage2 response",
			zap.String("criterion_id", req.Criterion.ID),
			zap.Error(err),
		)
		return &workflow.RankResponse{Error: parseError(err)}, nil
	}

	known := make(map[string]bool, len(req.Stage1Results))
	for _, ev := range req.Stage1Results {
		known[ev.VendorID] = true
	}
	rankings := result.VendorRankings[:0]
	for _, r := range result.VendorRankings {
		if !known[r.VendorID] {
			zap.L().Debug("research: dropping ranking for unknown vendor", zap.String("vendor_id", r.VendorID))
			continue
		}
		r.State = strings.ToLower(strings.TrimSpace(r.State))
		rankings = append(rankings, r)
	}
	result.VendorRankings = rankings

	return &workflow.RankResponse{Success: true, Result: &result}, nil
}

func (b *Backend) complete(ctx context.Context, system, prompt, stage string) (string, error) {
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     b.cfg.Model,
		MaxTokens: b.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: system, CacheControl: &anthropic.CacheControl{}},
		},
		Messages: []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		err = eris.Wrapf(err, "research: %s", stage)
		return "", workflow.NewError(resilience.ErrorCode(err), err.Error(), err)
	}
	resp.Usage.LogCost(b.cfg.Model, stage)
	return resp.Text(), nil
}

func parseError(err error) *workflow.Error {
	return &workflow.Error{Code: CodeParseError, Message: "research: invalid model response: " + err.Error()}
}

// cleanJSON extracts a JSON object from text that may be wrapped in markdown
// code fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
