package domain

import "time"

type ExpenseStatus string

const (
	ExpenseStatusNew      ExpenseStatus = "new"
	ExpenseStatusPending  ExpenseStatus = "pending"
	ExpenseStatusAnalyzed ExpenseStatus = "analyzed"
	ExpenseStatusApproved ExpenseStatus = "approved"
	ExpenseStatusRejected ExpenseStatus = "rejected"
)

// Expense is one submitted unit of spend. TotalAmount is derived from the
// persisted receipt totals and is only ever written by the aggregation step.
type Expense struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Status      ExpenseStatus `json:"status"`
	Currency    string        `json:"currency"`
	TotalAmount float64       `json:"total_amount"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ReceiptPrefix is the object-store prefix under which the expense's raw
// receipt files live: {owner}/{expense}/.
func (e *Expense) ReceiptPrefix() string {
	return e.OwnerID + "/" + e.ID + "/"
}
