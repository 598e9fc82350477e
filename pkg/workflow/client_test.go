package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResearchCell(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantSuccess bool
		wantNotes   string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{"success": true, "result": {
				"evidence_strength": "confirmed",
				"evidence_url": "https://acme.io/sso",
				"evidence_description": "SAML documented",
				"research_notes": "checked docs"}}`,
			wantSuccess: true,
			wantNotes:   "checked docs",
		},
		{
			name:     "server_error",
			status:   http.StatusBadGateway,
			body:     `bad gateway`,
			wantCode: "HTTP_502",
		},
		{
			name:     "gateway_timeout",
			status:   http.StatusGatewayTimeout,
			body:     ``,
			wantCode: "TIMEOUT",
		},
		{
			name:     "malformed_response",
			status:   http.StatusOK,
			body:     `{not json`,
			wantCode: "INVALID_RESPONSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/stage1", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL+"/stage1", srv.URL+"/stage2")
			resp, err := client.ResearchCell(context.Background(), CellRequest{ProjectID: "p1"})

			if tt.wantCode != "" {
				require.Error(t, err)
				var wfErr *Error
				require.True(t, errors.As(err, &wfErr))
				assert.Equal(t, tt.wantCode, wfErr.Code)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			require.NotNil(t, resp.Result)
			assert.Equal(t, tt.wantNotes, resp.Result.ResearchNotes)
		})
	}
}

func TestResearchCell_RequestBody(t *testing.T) {
	var got CellRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.Contains(t, raw, "project_description")
		assert.Contains(t, raw, "criterion_type")

		_, _ = w.Write([]byte(`{"success": false, "error": {"code": "NO_SOURCES", "message": "nothing found"}}`))
	}))
	defer srv.Close()

	req := CellRequest{
		ProjectID:          "p1",
		ProjectName:        "CRM",
		ProjectDescription: "CRM selection for sales",
		CriterionType:      "feature",
		Vendor:             VendorRef{ID: "v1", Name: "Acme", Website: "https://acme.io"},
		Criterion:          CriterionRef{ID: "c1", Name: "SSO", Importance: "high", Description: "Single sign-on"},
	}

	client := NewClient(srv.URL, srv.URL)
	resp, err := client.ResearchCell(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NO_SOURCES", resp.Error.Code)
	assert.Equal(t, "nothing found", resp.Error.Message)
}

func TestRankCriterion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stage2", r.URL.Path)

		var req RankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Stage1Results, 2)
		assert.Equal(t, "confirmed", req.Stage1Results[0].EvidenceStrength)

		_, _ = w.Write([]byte(`{"success": true, "result": {
			"criterion_insight": "Acme leads",
			"stars_awarded": 2,
			"vendor_rankings": [
				{"vendor_id": "v1", "state": "star", "comment": "best"},
				{"vendor_id": "v2", "state": "yes"}
			]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/stage1", srv.URL+"/stage2")
	resp, err := client.RankCriterion(context.Background(), RankRequest{
		ProjectID: "p1",
		Stage1Results: []VendorEvidence{
			{VendorID: "v1", EvidenceStrength: "confirmed"},
			{VendorID: "v2", EvidenceStrength: "unclear"},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "Acme leads", resp.Result.CriterionInsight)
	assert.Equal(t, 2, resp.Result.StarsAwarded)
	require.Len(t, resp.Result.VendorRankings, 2)
	assert.Equal(t, "star", resp.Result.VendorRankings[0].State)
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("", "")
	_, err := client.RankCriterion(context.Background(), RankRequest{})
	require.Error(t, err)

	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, "NOT_CONFIGURED", wfErr.Code)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, WithTimeout(20*time.Millisecond))
	_, err := client.ResearchCell(context.Background(), CellRequest{})
	require.Error(t, err)

	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, "TIMEOUT", wfErr.Code)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(url, url)
	_, err := client.ResearchCell(context.Background(), CellRequest{})
	require.Error(t, err)

	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, "NETWORK_ERROR", wfErr.Code)
}

func TestClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL, WithRateLimit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.ResearchCell(ctx, CellRequest{})
	require.NoError(t, err)

	// Burst is exhausted; the second call cannot get a token before the deadline.
	_, err = client.ResearchCell(ctx, CellRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &Error{Code: "NETWORK_ERROR", Message: "send request", cause: cause}

	assert.Equal(t, "NETWORK_ERROR: send request", err.Error())
	assert.Equal(t, "NETWORK_ERROR", err.ErrorCode())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plain", (&Error{Message: "plain"}).Error())
}

func TestClient_StatusTransience(t *testing.T) {
	tests := []struct {
		status        int
		wantCode      string
		wantTransient bool
	}{
		{status: http.StatusTooManyRequests, wantCode: "HTTP_429", wantTransient: true},
		{status: http.StatusServiceUnavailable, wantCode: "HTTP_503", wantTransient: true},
		{status: http.StatusGatewayTimeout, wantCode: "TIMEOUT", wantTransient: true},
		{status: http.StatusBadRequest, wantCode: "HTTP_400", wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`upstream said no`))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, srv.URL)
			_, err := client.RankCriterion(context.Background(), RankRequest{})

			var wfErr *Error
			require.True(t, errors.As(err, &wfErr))
			assert.Equal(t, tt.wantCode, wfErr.Code)
			assert.Equal(t, tt.wantTransient, wfErr.Transient())
			assert.Contains(t, wfErr.Message, "upstream said no")
		})
	}
}
