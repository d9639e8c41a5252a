// Package report exports audit verdicts for offline review.
package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/policy-audit/internal/model"
)

// Sheet names used in the exported workbook.
const (
	VerdictSheet = "Verdicts"
	SummarySheet = "Summary"
)

var verdictHeader = []string{"Question", "Status", "Evidence"}

// Workbook builds an XLSX workbook with one row per verdict, in question
// order, and a summary sheet with per-status counts.
func Workbook(source string, verdicts []model.Verdict) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(VerdictSheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add verdict sheet")
	}
	addRow(sheet, verdictHeader...)
	for _, v := range verdicts {
		addRow(sheet, v.Question, string(v.Status), v.Evidence)
	}

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}
	s := model.Summarize(verdicts)
	addRow(summary, "Source", source)
	addCount(summary, "Questions", s.Total)
	addCount(summary, string(model.StatusMet), s.Met)
	addCount(summary, string(model.StatusNotMet), s.NotMet)
	addCount(summary, string(model.StatusError), s.Errors)

	return f, nil
}

// WriteXLSX saves the verdict workbook to path.
func WriteXLSX(path, source string, verdicts []model.Verdict) error {
	f, err := Workbook(source, verdicts)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// Write streams the verdict workbook to w.
func Write(w io.Writer, source string, verdicts []model.Verdict) error {
	f, err := Workbook(source, verdicts)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addCount(sheet *xlsx.Sheet, label string, n int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(n)
}
