package report

import (
	"fmt"
	"io"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/xuri/excelize/v2"
)

// SheetNames is the fixed sheet set of the workbook, in order.
var SheetNames = []string{"matched", "unmatched_a", "unmatched_b", "reimbursements", "duplicates_a", "duplicates_b"}

// Columns is the header row of every sheet.
var Columns = []string{"date", "description", "category", "transaction_type", "amount", "source_id"}

// NoDataPlaceholder fills the first data row of an empty sheet.
const NoDataPlaceholder = "No data"

// Workbook builds one sheet per bucket. The matched sheet lists the A record
// followed by the B record of every pair. Callers must Close the file.
func Workbook(res reconcile.Result) (*excelize.File, error) {
	matched := make(domain.RecordSet, 0, 2*len(res.Matched))
	for _, m := range res.Matched {
		matched = append(matched, m.A, m.B)
	}
	buckets := map[string]domain.RecordSet{
		"matched":        matched,
		"unmatched_a":    res.UnmatchedA,
		"unmatched_b":    res.UnmatchedB,
		"reimbursements": res.Reimbursements,
		"duplicates_a":   res.DuplicatesA,
		"duplicates_b":   res.DuplicatesB,
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetNames[0]); err != nil {
		f.Close()
		return nil, fmt.Errorf("Workbook: renaming default sheet: %w", err)
	}
	for i, name := range SheetNames {
		if i > 0 {
			if _, err := f.NewSheet(name); err != nil {
				f.Close()
				return nil, fmt.Errorf("Workbook: creating sheet %s: %w", name, err)
			}
		}
		if err := writeSheet(f, name, buckets[name]); err != nil {
			f.Close()
			return nil, fmt.Errorf("Workbook: writing sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook serializes the workbook of res as .xlsx to w.
func WriteWorkbook(w io.Writer, res reconcile.Result) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteWorkbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, recs domain.RecordSet) error {
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	if len(recs) == 0 {
		return f.SetSheetRow(sheet, "A2", &[]interface{}{NoDataPlaceholder})
	}
	for i, r := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.DateString(), r.Description, r.Category, string(r.Type), r.AmountString(), r.SourceID}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
