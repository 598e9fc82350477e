// Package project loads and validates comparison project definitions.
package project

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/clarioo/compare-cli/internal/model"
)

// Load reads a project definition from a YAML file.
func Load(path string) (model.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Project{}, eris.Wrapf(err, "project: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and normalizes a YAML project definition.
func Parse(data []byte) (model.Project, error) {
	var p model.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return model.Project{}, eris.Wrap(err, "project: parse")
	}
	Normalize(&p)
	if err := Validate(p); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// Normalize trims fields, defaults importance to medium and derives stable
// ids for entries that omit them, so re-loading the same file resumes the
// same run.
func Normalize(p *model.Project) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" && p.Name != "" {
		p.ID = deriveID(uuid.NameSpaceURL, p.Name)
	}
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID))

	for i := range p.Criteria {
		c := &p.Criteria[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		if c.ID == "" && c.Name != "" {
			c.ID = deriveID(ns, "criterion:"+c.Name)
		}
		c.Importance = model.Importance(strings.ToLower(strings.TrimSpace(string(c.Importance))))
		if c.Importance == "" {
			c.Importance = model.ImportanceMedium
		}
	}
	for i := range p.Vendors {
		v := &p.Vendors[i]
		v.ID = strings.TrimSpace(v.ID)
		v.Name = strings.TrimSpace(v.Name)
		v.Website = strings.TrimSpace(v.Website)
		if v.ID == "" && v.Name != "" {
			v.ID = deriveID(ns, "vendor:"+v.Name)
		}
	}
}

// Validate checks that a project can be compared.
func Validate(p model.Project) error {
	if p.ID == "" {
		return eris.New("project: id or name is required")
	}
	if len(p.Criteria) == 0 {
		return eris.Errorf("project: %s has no criteria", p.ID)
	}
	if len(p.Vendors) == 0 {
		return eris.Errorf("project: %s has no vendors", p.ID)
	}

	seen := make(map[string]bool, len(p.Criteria))
	for i, c := range p.Criteria {
		if c.ID == "" {
			return eris.Errorf("project: criterion %d needs an id or name", i)
		}
		if seen[c.ID] {
			return eris.Errorf("project: duplicate criterion id %q", c.ID)
		}
		seen[c.ID] = true
		if !c.Importance.Valid() {
			return eris.Errorf("project: criterion %q has invalid importance %q", c.ID, c.Importance)
		}
	}

	seen = make(map[string]bool, len(p.Vendors))
	for i, v := range p.Vendors {
		if v.ID == "" {
			return eris.Errorf("project: vendor %d needs an id or name", i)
		}
		if seen[v.ID] {
			return eris.Errorf("project: duplicate vendor id %q", v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

func deriveID(ns uuid.UUID, name string) string {
	return uuid.NewSHA1(ns, []byte(strings.ToLower(name))).String()
}
