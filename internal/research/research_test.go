package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clarioo/compare-cli/pkg/anthropic"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 40},
	}
}

func cellRequest() workflow.CellRequest {
	return workflow.CellRequest{
		ProjectID:          "p1",
		ProjectName:        "CRM",
		ProjectDescription: "CRM selection for a mid-size sales team",
		CriterionType:      "feature",
		Vendor:             workflow.VendorRef{ID: "v1", Name: "Acme CRM", Website: "https://acme.io"},
		Criterion:          workflow.CriterionRef{ID: "c1", Name: "SSO", Importance: "high", Description: "SAML single sign-on"},
	}
}

func TestResearchCell(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantSuccess  bool
		wantStrength string
		wantCode     string
	}{
		{
			name:         "bare_json",
			text:         `{"evidence_strength":"confirmed","evidence_url":"https://acme.io/sso","evidence_description":"SAML","research_notes":"docs"}`,
			wantSuccess:  true,
			wantStrength: "confirmed",
		},
		{
			name:         "fenced_json",
			text:         "```json\n{\"evidence_strength\": \"Not_Found\"}\n```",
			wantSuccess:  true,
			wantStrength: "not_found",
		},
		{
			name:         "prose_wrapped",
			text:         "Here is the result:\n{\"evidence_strength\": \"mentioned\"}\nThanks.",
			wantSuccess:  true,
			wantStrength: "mentioned",
		},
		{
			name:     "not_json",
			text:     "I could not find anything.",
			wantCode: CodeParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockClient{}
			mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
				return req.Model == "claude-test" &&
					len(req.Messages) == 1 &&
					assert.Contains(t, req.Messages[0].Content, "Acme CRM") &&
					assert.Contains(t, req.Messages[0].Content, "SAML single sign-on")
			})).Return(textResponse(tt.text), nil)

			b := New(mc, Config{Model: "claude-test"})
			resp, err := b.ResearchCell(context.Background(), cellRequest())
			require.NoError(t, err)
			require.NotNil(t, resp)

			assert.Equal(t, tt.wantSuccess, resp.Success)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				assert.Nil(t, resp.Result)
			} else {
				require.NotNil(t, resp.Result)
				assert.Equal(t, tt.wantStrength, resp.Result.EvidenceStrength)
			}
			mc.AssertExpectations(t)
		})
	}
}

func TestResearchCell_ClientError(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	b := New(mc, Config{Model: "claude-test"})
	resp, err := b.ResearchCell(context.Background(), cellRequest())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "research: stage1")
}

func TestResearchCell_DeadlineIsTimeout(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	b := New(mc, Config{Model: "claude-test"})
	resp, err := b.ResearchCell(context.Background(), cellRequest())
	assert.Nil(t, resp)

	var wfErr *workflow.Error
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "TIMEOUT", wfErr.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRankCriterion_ClientErrorCoded(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	b := New(mc, Config{Model: "claude-test"})
	_, err := b.RankCriterion(context.Background(), workflow.RankRequest{Criterion: workflow.CriterionRef{ID: "c1"}})

	var wfErr *workflow.Error
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "UNKNOWN", wfErr.Code)
	assert.Contains(t, wfErr.Message, "research: stage2")
}

func TestRankCriterion(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return assert.Contains(t, req.Messages[0].Content, `"vendor_id": "v2"`)
	})).Return(textResponse(`{
		"criterion_insight": "Acme leads on SSO.",
		"stars_awarded": 1,
		"vendor_rankings": [
			{"vendor_id": "v1", "state": "STAR", "comment": "best in class"},
			{"vendor_id": "v2", "state": "yes"},
			{"vendor_id": "ghost", "state": "no"}
		]
	}`), nil)

	b := New(mc, Config{Model: "claude-test", MaxTokens: 512})
	resp, err := b.RankCriterion(context.Background(), workflow.RankRequest{
		ProjectID: "p1",
		Criterion: workflow.CriterionRef{ID: "c1", Name: "SSO"},
		Stage1Results: []workflow.VendorEvidence{
			{VendorID: "v1", EvidenceStrength: "confirmed"},
			{VendorID: "v2", EvidenceStrength: "unclear"},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)

	assert.Equal(t, "Acme leads on SSO.", resp.Result.CriterionInsight)
	assert.Equal(t, 1, resp.Result.StarsAwarded)
	require.Len(t, resp.Result.VendorRankings, 2)
	assert.Equal(t, "star", resp.Result.VendorRankings[0].State)
	assert.Equal(t, "v2", resp.Result.VendorRankings[1].VendorID)
}

func TestRankCriterion_ParseError(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("no json here"), nil)

	b := New(mc, Config{Model: "claude-test"})
	resp, err := b.RankCriterion(context.Background(), workflow.RankRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestNew_DefaultMaxTokens(t *testing.T) {
	b := New(&mockClient{}, Config{Model: "m"})
	assert.Equal(t, int64(2048), b.cfg.MaxTokens)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced_json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced_plain", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "result: {\"a\":1} done", `{"a":1}`},
		{"no_object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}
