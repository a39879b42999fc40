package domain

// FileResult is the outcome for one receipt file in a batch run.
type FileResult struct {
	FileName    string   `json:"file_name"`
	ReceiptID   string   `json:"receipt_id,omitempty"`
	LineItemIDs []string `json:"line_item_ids,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

func (r FileResult) OK() bool {
	return r.Error == ""
}

// BatchResult summarizes one pipeline run for an expense.
type BatchResult struct {
	ExpenseID   string       `json:"expense_id"`
	Files       []FileResult `json:"files"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	TotalAmount float64      `json:"total_amount"`
	// Aggregated reports whether the expense total was reconciled after the
	// batch. When false, AggregationError explains why.
	Aggregated       bool   `json:"aggregated"`
	AggregationError string `json:"aggregation_error,omitempty"`
}
