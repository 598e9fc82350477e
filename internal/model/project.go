package model

import "strings"

// Importance weights a criterion.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Valid reports whether i is one of the known importance levels.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

// Criterion is an evaluation dimension. Immutable once a run starts.
type Criterion struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Explanation string     `json:"explanation" yaml:"explanation"`
	Importance  Importance `json:"importance" yaml:"importance"`
	Type        string     `json:"type" yaml:"type"` // category tag, e.g. "feature", "technical"
}

// Vendor is a candidate solution. Immutable for the duration of a run.
type Vendor struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Website string `json:"website" yaml:"website"`
}

// Project groups the criteria and vendors under comparison.
type Project struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Category    string      `json:"category,omitempty" yaml:"category"`
	Criteria    []Criterion `json:"criteria" yaml:"criteria"`
	Vendors     []Vendor    `json:"vendors" yaml:"vendors"`
}

// ResearchDescription builds the project context string sent to the research
// workflows. Callers substitute a fallback when the result is too short.
func (p Project) ResearchDescription() string {
	name := strings.TrimSpace(p.Name)
	desc := strings.TrimSpace(p.Description)

	var s string
	switch {
	case name != "" && desc != "":
		s = name + ": " + desc
	case desc != "":
		s = desc
	default:
		s = name
	}
	if cat := strings.TrimSpace(p.Category); cat != "" && s != "" {
		s += " (category: " + cat + ")"
	}
	return s
}

// Criterion returns the criterion with the given id and its index.
func (p Project) Criterion(id string) (Criterion, int, bool) {
	for i, c := range p.Criteria {
		if c.ID == id {
			return c, i, true
		}
	}
	return Criterion{}, -1, false
}

// Vendor returns the vendor with the given id.
func (p Project) Vendor(id string) (Vendor, bool) {
	for _, v := range p.Vendors {
		if v.ID == id {
			return v, true
		}
	}
	return Vendor{}, false
}
