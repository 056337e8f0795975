package report

import (
	"bytes"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func rec(source, date, amount, desc string) domain.Record {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.Record{SourceID: source, Date: d, Amount: decimal.RequireFromString(amount), Description: desc}
}

func sampleResult() reconcile.Result {
	cab := rec("expenses/a.txt", "2024-12-01", "100", "Cab Fare to Airport")
	cab.Category = "Travel"
	bank := rec("statement/saving.txt", "2024-12-01", "100.00", "Cab Fare to Airport")
	bank.Category = "Travel"
	bank.Type = domain.TypeDebit
	return reconcile.Result{
		Matched:        []reconcile.Match{{A: cab, B: bank}},
		DuplicatesA:    domain.RecordSet{cab},
		Reimbursements: domain.RecordSet{rec("statement/saving.txt", "2025-06-23", "-1000.00", "Refund to Merchant")},
		FailuresA:      domain.RecordSet{{SourceID: "expenses/b.txt", ParseFailed: true, FailureReason: "missing amount"}},
		InputA:         2,
		InputB:         2,
	}
}

func TestText(t *testing.T) {
	got := Text(sampleResult(), Labels{A: "Expenses", B: "Statement Entries"})

	want := `Matched
  • 100.00 on 2024-12-01 - Cab Fare to Airport

Unmatched Expenses
  (none)

Unmatched Statement Entries
  (none)

Reimbursements
  • -1000.00 on 2025-06-23 - Refund to Merchant

Duplicate Expenses
  • 100.00 on 2024-12-01 - Cab Fare to Airport

Duplicate Statement Entries
  (none)

Parse Failures
  • expenses/b.txt: missing amount

Totals
  Matched: 1
  Unmatched Expenses: 0
  Unmatched Statement Entries: 0
  Reimbursements: 1
  Duplicate Expenses: 1
  Duplicate Statement Entries: 0
`
	assert.Equal(t, want, got)
}

func TestText_InsufficientDataNote(t *testing.T) {
	res := reconcile.Result{InsufficientData: true, Notice: "not enough data: side B has no complete record"}

	got := Text(res, DefaultLabels)

	assert.Contains(t, got, "Note: not enough data")
	assert.NotContains(t, got, "Parse Failures")
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(sampleResult())

	require.NoError(t, err)
	assert.Equal(t, Summary{
		Matched:        1,
		Reimbursements: 1,
		DuplicatesA:    1,
		ParseFailures:  1,
		Input:          4,
	}, s)
}

func TestSummarize_Violation(t *testing.T) {
	res := sampleResult()
	res.InputB = 5

	_, err := Summarize(res)

	var cv *ConsistencyViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, 7, cv.Input)
	assert.Equal(t, 4, cv.Bucketed)
}

func TestBuild(t *testing.T) {
	rep := Build(sampleResult(), DefaultLabels)
	assert.Nil(t, rep.Violation)
	assert.Contains(t, rep.Text, "Unmatched A")

	bad := sampleResult()
	bad.InputA = 0
	rep = Build(bad, DefaultLabels)
	require.NotNil(t, rep.Violation)
	assert.EqualError(t, rep.Violation, "consistency violation: 2 input records but 4 bucketed")
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, SheetNames, f.GetSheetList())

	rows, err := f.GetRows("matched")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"2024-12-01", "Cab Fare to Airport", "Travel", "", "100.00", "expenses/a.txt"}, rows[1])
	assert.Equal(t, []string{"2024-12-01", "Cab Fare to Airport", "Travel", "debit", "100.00", "statement/saving.txt"}, rows[2])

	for _, sheet := range []string{"unmatched_a", "unmatched_b", "duplicates_b"} {
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		require.Len(t, rows, 2, sheet)
		assert.Equal(t, []string{NoDataPlaceholder}, rows[1])
	}
}
