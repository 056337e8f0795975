package normalize

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	want := civil.Date{Year: 2024, Month: 1, Day: 5}
	tests := []struct {
		token string
		want  civil.Date
	}{
		{"05-Jan-2024", want},
		{"5-JAN-2024", want},
		{"05/01/2024", want},
		{"January 5, 2024", want},
		{"Jan 5,2024", want},
		{"Jan. 5, 2024", want},
		{"2024-01-05", want},
		{"Sept 9, 2025", civil.Date{Year: 2025, Month: 9, Day: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Date(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate_Invalid(t *testing.T) {
	for _, token := range []string{"31/02/2024", "30-Feb-2024", "2024-13-01", "yesterday"} {
		_, err := Date(token)
		assert.Error(t, err, token)
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"INR 100.00", "100.00"},
		{"100.00 INR", "100.00"},
		{"₹1,250.50", "1250.50"},
		{"$27,033.29", "27033.29"},
		{"-1000.00", "-1000.00"},
		{"-$50.00", "-50.00"},
		{"$-50.00", "-50.00"},
		{"Rs. 12.30", "12.30"},
		{"TOTAL: £9.99", "9.99"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Amount(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestAmount_Invalid(t *testing.T) {
	_, err := Amount("--5.00")
	assert.ErrorContains(t, err, "more than one sign")

	_, err = Amount("12.3.4")
	assert.Error(t, err)
}

func TestRecord_DowngradesBadDate(t *testing.T) {
	r := Record(extract.Candidate{
		SourceID:    "s",
		DateToken:   "31/02/2024",
		AmountToken: "10.00",
		Description: "Lunch",
		Category:    "Meals",
	})

	assert.True(t, r.ParseFailed)
	assert.Contains(t, r.FailureReason, `invalid date "31/02/2024"`)
	assert.Equal(t, "Lunch", r.Description)
}

func TestRecords_KeepsOrderAndFailures(t *testing.T) {
	cands := []extract.Candidate{
		{SourceID: "a", DateToken: "01-Dec-2024", AmountToken: "INR 100.00", Description: "Cab", Category: "Travel"},
		{SourceID: "b", Failed: true, FailureReason: "missing amount"},
		{SourceID: "c", DateToken: "2025-06-20", AmountToken: "27,033.29", Description: "Settlement", Type: domain.TypeCredit},
	}

	got := Records(cands)

	require.Len(t, got, 3)
	assert.Equal(t, civil.Date{Year: 2024, Month: 12, Day: 1}, got[0].Date)
	assert.Equal(t, "100.00", got[0].AmountString())
	assert.True(t, got[1].ParseFailed)
	assert.Equal(t, "missing amount", got[1].FailureReason)
	assert.Equal(t, domain.TypeCredit, got[2].Type)
	assert.Equal(t, "27033.29", got[2].AmountString())
}
