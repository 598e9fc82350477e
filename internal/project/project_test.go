package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarioo/compare-cli/internal/model"
)

const sampleYAML = `
id: crm-2026
name: CRM selection
description: Replace the legacy CRM for a 40-person sales team
category: CRM
criteria:
  - id: sso
    name: Single sign-on
    explanation: SAML or OIDC login
    importance: High
    type: technical
  - id: pipeline
    name: Pipeline views
    type: feature
vendors:
  - id: acme
    name: Acme CRM
    website: https://acme.example.com
  - name: Globex Sales
    website: https://globex.example.com
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "crm-2026", p.ID)
	assert.Equal(t, "CRM", p.Category)
	require.Len(t, p.Criteria, 2)
	assert.Equal(t, model.ImportanceHigh, p.Criteria[0].Importance)
	assert.Equal(t, model.ImportanceMedium, p.Criteria[1].Importance)
	require.Len(t, p.Vendors, 2)
	assert.Equal(t, "acme", p.Vendors[0].ID)
	assert.NotEmpty(t, p.Vendors[1].ID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project: read")
}

func TestParse_DerivedIDsAreStable(t *testing.T) {
	data := []byte(`
name: Helpdesk
criteria:
  - name: SLA reporting
vendors:
  - name: Zed Desk
`)
	a, err := Parse(data)
	require.NoError(t, err)
	b, err := Parse(data)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Criteria[0].ID, b.Criteria[0].ID)
	assert.Equal(t, a.Vendors[0].ID, b.Vendors[0].ID)
	assert.NotEqual(t, a.Criteria[0].ID, a.Vendors[0].ID)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed", "criteria: [", "project: parse"},
		{"no_id", "criteria: [{id: a}]\nvendors: [{id: v}]", "id or name is required"},
		{"no_criteria", "id: p\nvendors: [{id: v}]", "has no criteria"},
		{"no_vendors", "id: p\ncriteria: [{id: a}]", "has no vendors"},
		{"dup_criterion", "id: p\ncriteria: [{id: a}, {id: a}]\nvendors: [{id: v}]", "duplicate criterion"},
		{"dup_vendor", "id: p\ncriteria: [{id: a}]\nvendors: [{id: v}, {id: v}]", "duplicate vendor"},
		{"bad_importance", "id: p\ncriteria: [{id: a, importance: critical}]\nvendors: [{id: v}]", "invalid importance"},
		{"unnamed_vendor", "id: p\ncriteria: [{id: a}]\nvendors: [{website: x}]", "vendor 0 needs an id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
