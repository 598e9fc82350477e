// Package export renders a comparison run as an Excel workbook or a JSON
// document.
package export

import (
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clarioo/compare-cli/internal/model"
)

// Document is the export view of one project's comparison.
type Document struct {
	Project     ProjectInfo    `json:"project"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Vendors     []VendorInfo   `json:"vendors"`
	Criteria    []CriterionRow `json:"criteria"`
}

// ProjectInfo identifies the exported project.
type ProjectInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// VendorInfo is one vendor column, with its star count across criteria.
type VendorInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Stars   int    `json:"stars"`
}

// CriterionRow is one criterion with its ranking outcome and cells in vendor
// order.
type CriterionRow struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Explanation      string             `json:"explanation,omitempty"`
	Importance       string             `json:"importance"`
	Type             string             `json:"type,omitempty"`
	Stage1Complete   bool               `json:"stage1Complete"`
	Stage2Status     model.Stage2Status `json:"stage2Status"`
	Stage2Error      string             `json:"stage2Error,omitempty"`
	CriterionInsight string             `json:"criterionInsight,omitempty"`
	StarsAwarded     *int               `json:"starsAwarded,omitempty"`
	Cells            []Cell             `json:"cells"`
}

// Cell is one vendor's verdict for a criterion.
type Cell struct {
	VendorID string `json:"vendorId"`
	model.Cell
}

// Build assembles the export document from a project and a run snapshot.
// Criteria and vendors keep the project's order.
func Build(p model.Project, run *model.ComparisonRun, now time.Time) Document {
	doc := Document{
		Project: ProjectInfo{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
		},
		GeneratedAt: now,
	}

	stars := make(map[string]int, len(p.Vendors))
	for _, c := range p.Criteria {
		out := CriterionRow{
			ID:          c.ID,
			Name:        c.Name,
			Explanation: c.Explanation,
			Importance:  string(c.Importance),
			Type:        c.Type,
			Cells:       make([]Cell, 0, len(p.Vendors)),
		}
		row := run.Criteria[c.ID]
		if row != nil {
			out.Stage1Complete = row.Stage1Complete
			out.Stage2Status = row.Stage2Status
			out.Stage2Error = row.Stage2Error
			out.CriterionInsight = row.CriterionInsight
			out.StarsAwarded = row.StarsAwarded
		}
		for _, v := range p.Vendors {
			var cell model.Cell
			if row != nil {
				cell = row.Cells[v.ID]
			}
			if cell.State == "" {
				cell.State = model.CellStatePending
			}
			if cell.Value == model.CellValueStar {
				stars[v.ID]++
			}
			out.Cells = append(out.Cells, Cell{VendorID: v.ID, Cell: cell})
		}
		doc.Criteria = append(doc.Criteria, out)
	}

	for _, v := range p.Vendors {
		doc.Vendors = append(doc.Vendors, VendorInfo{ID: v.ID, Name: v.Name, Website: v.Website, Stars: stars[v.ID]})
	}
	return doc
}

// Leaders returns the vendors ordered by star count, ties kept in project
// order.
func (d Document) Leaders() []VendorInfo {
	vendors := append([]VendorInfo(nil), d.Vendors...)
	sort.SliceStable(vendors, func(i, j int) bool { return vendors[i].Stars > vendors[j].Stars })
	return vendors
}

// Symbol renders a cell for the matrix view.
func Symbol(c model.Cell) string {
	switch c.State {
	case model.CellStateFailed:
		return "!"
	case model.CellStateCompleted:
	default:
		return ""
	}
	switch c.Value {
	case model.CellValueYes:
		return "✓"
	case model.CellValueNo:
		return "✗"
	case model.CellValueStar:
		return "★"
	default:
		return "?"
	}
}

// Label title-cases an enum value for display ("high" → "High").
func Label(s string) string {
	return cases.Title(language.English).String(s)
}
