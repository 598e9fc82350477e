package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet names in the exported workbook.
const (
	SheetComparison = "Comparison"
	SheetEvidence   = "Evidence"
	SheetLeaders    = "Leaders"
)

// WriteXLSX writes the verdict matrix, the per-cell evidence and the vendor
// standings by stars.
func WriteXLSX(w io.Writer, doc Document) error {
	f := xlsx.NewFile()

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	matrix, err := f.AddSheet(SheetComparison)
	if err != nil {
		return eris.Wrap(err, "export: add comparison sheet")
	}
	cols := []string{"Criterion", "Importance", "Type"}
	for _, v := range doc.Vendors {
		cols = append(cols, v.Name)
	}
	cols = append(cols, "Stars", "Insight")
	addRow(matrix, header, cols...)

	for _, c := range doc.Criteria {
		vals := []string{c.Name, Label(c.Importance), Label(c.Type)}
		for _, cell := range c.Cells {
			vals = append(vals, Symbol(cell.Cell))
		}
		stars := ""
		if c.StarsAwarded != nil {
			stars = strconv.Itoa(*c.StarsAwarded)
		}
		insight := c.CriterionInsight
		if c.Stage2Error != "" {
			insight = "Ranking failed: " + c.Stage2Error
		}
		vals = append(vals, stars, insight)
		addRow(matrix, nil, vals...)
	}

	evidence, err := f.AddSheet(SheetEvidence)
	if err != nil {
		return eris.Wrap(err, "export: add evidence sheet")
	}
	addRow(evidence, header, "Criterion", "Vendor", "State", "Value", "Evidence URL", "Evidence", "Comment", "Error")

	names := make(map[string]string, len(doc.Vendors))
	for _, v := range doc.Vendors {
		names[v.ID] = v.Name
	}
	for _, c := range doc.Criteria {
		for _, cell := range c.Cells {
			addRow(evidence, nil,
				c.Name,
				names[cell.VendorID],
				Label(string(cell.State)),
				Label(string(cell.Value)),
				cell.EvidenceURL,
				cell.EvidenceDescription,
				cell.Comment,
				cell.Error,
			)
		}
	}

	leaders, err := f.AddSheet(SheetLeaders)
	if err != nil {
		return eris.Wrap(err, "export: add leaders sheet")
	}
	addRow(leaders, header, "Rank", "Vendor", "Website", "Stars")
	for i, v := range doc.Leaders() {
		addRow(leaders, nil, strconv.Itoa(i+1), v.Name, v.Website, strconv.Itoa(v.Stars))
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addRow(sheet *xlsx.Sheet, style *xlsx.Style, vals ...string) {
	row := sheet.AddRow()
	for _, v := range vals {
		cell := row.AddCell()
		cell.SetString(v)
		if style != nil {
			cell.SetStyle(style)
		}
	}
}
