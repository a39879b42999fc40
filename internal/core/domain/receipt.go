package domain

import "time"

// StoredObject is one raw receipt file as listed in the object store.
// Name is the file name relative to the expense prefix; Key is the full
// storage key.
type StoredObject struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodedReceipt is one fetched receipt file encoded for transport to the
// extraction service.
type EncodedReceipt struct {
	ExpenseID  string
	FileName   string
	Key        string
	MimeType   string
	SourceSize int64
	Base64     string
}

// ReceiptMetadata is the persisted result of analyzing one receipt file.
// At most one row exists per file name per expense; rows are never updated
// by the pipeline after creation.
type ReceiptMetadata struct {
	ID            string     `json:"id"`
	ExpenseID     string     `json:"expense_id"`
	FileName      string     `json:"file_name"`
	SourceSize    int64      `json:"source_size"`
	VendorName    string     `json:"vendor_name"`
	VendorAddress string     `json:"vendor_address,omitempty"`
	ReceiptDate   *time.Time `json:"receipt_date,omitempty"`
	ReceiptTotal  float64    `json:"receipt_total"`
	TaxAmount     *float64   `json:"tax_amount,omitempty"`
	Currency      string     `json:"currency"`
	Confidence    float64    `json:"confidence"`
	RawResponse   string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LineItem is one extracted component of a receipt. TotalAmount stands on
// its own: quantity and unit price may both be absent for lump totals.
type LineItem struct {
	ID          string     `json:"id"`
	ExpenseID   string     `json:"expense_id"`
	ReceiptID   string     `json:"receipt_id,omitempty"`
	Description string     `json:"description"`
	Quantity    *float64   `json:"quantity,omitempty"`
	UnitPrice   *float64   `json:"unit_price,omitempty"`
	TotalAmount float64    `json:"total_amount"`
	Category    string     `json:"category,omitempty"`
	ItemDate    *time.Time `json:"item_date,omitempty"`
	AIGenerated bool       `json:"is_ai_generated"`
	Deleted     bool       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ReceiptAnalysis is the decoded form of one extraction response. It is the
// contract between the extraction client and the persistence unit and is
// never stored as-is.
type ReceiptAnalysis struct {
	VendorName    string
	VendorAddress string
	ReceiptDate   *time.Time
	ReceiptTotal  float64
	TaxAmount     *float64
	Currency      string
	Confidence    float64
	LineItems     []AnalysisLineItem
	// Raw keeps the verbatim model response for audit.
	Raw string
}

type AnalysisLineItem struct {
	Description string
	Quantity    *float64
	UnitPrice   *float64
	Total       float64
	Category    string
	Date        *time.Time
}

// UsageRecord captures one AI call for the best-effort usage log.
type UsageRecord struct {
	ExpenseID        string
	Model            string
	Operation        string
	PromptTokens     int
	CompletionTokens int
	Success          bool
	ErrorMessage     string
	ProcessingMS     int64
}
