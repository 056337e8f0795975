package pipeline

// Default values for reconciliation runs.
// These can be overridden via configuration or environment variables.
const (
	// ProfileExpenses reconciles expense bills against the savings statement.
	ProfileExpenses = "expenses"

	// ProfileInvoices reconciles invoices against the current account ledger.
	ProfileInvoices = "invoices"

	// DefaultWorkers is the number of documents fetched or extracted at once.
	DefaultWorkers = 4

	// ReportPrefix is the storage prefix under which run outputs are uploaded.
	ReportPrefix = "reconciliation"

	// SummaryObject and WorkbookObject are the uploaded file names of a run.
	SummaryObject  = "summary.txt"
	WorkbookObject = "reconciliation.xlsx"
)
