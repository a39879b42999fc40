package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

// Compact wire schema for extraction responses. Short keys keep the model's
// output (and its token cost) small:
//
//	v vendor name, a vendor address, d date or "", t total, x tax,
//	c currency, s confidence, l line items
//	line item: d description, q quantity, u unit price, t total,
//	c category, e item date
type wireAnalysis struct {
	Vendor     *string     `json:"v"`
	Address    string      `json:"a,omitempty"`
	Date       string      `json:"d"`
	Total      *float64    `json:"t"`
	Tax        *float64    `json:"x,omitempty"`
	Currency   *string     `json:"c"`
	Confidence *float64    `json:"s"`
	Items      *[]wireItem `json:"l"`
}

type wireItem struct {
	Description string   `json:"d"`
	Quantity    *float64 `json:"q,omitempty"`
	UnitPrice   *float64 `json:"u,omitempty"`
	Total       *float64 `json:"t"`
	Category    string   `json:"c,omitempty"`
	Date        string   `json:"e,omitempty"`
}

const wireDateLayout = "2006-01-02"

// dateLayouts are fallbacks for models that ignore the YYYY-MM-DD rule.
var dateLayouts = []string{"2006/01/02", "01/02/2006", "02-01-2006"}

// DecodeAnalysis parses a raw model response into the canonical analysis.
// It strips any code-fence markup, locates the JSON object, validates the
// required fields and expands the short keys.
func DecodeAnalysis(raw string) (*domain.ReceiptAnalysis, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal wire schema: %w", err)
	}
	return wire.toDomain(raw)
}

func (w *wireAnalysis) toDomain(raw string) (*domain.ReceiptAnalysis, error) {
	switch {
	case w.Vendor == nil || strings.TrimSpace(*w.Vendor) == "":
		return nil, fmt.Errorf("missing required field v (vendor name)")
	case w.Total == nil:
		return nil, fmt.Errorf("missing required field t (receipt total)")
	case w.Currency == nil || strings.TrimSpace(*w.Currency) == "":
		return nil, fmt.Errorf("missing required field c (currency)")
	case w.Confidence == nil:
		return nil, fmt.Errorf("missing required field s (confidence)")
	case w.Items == nil:
		return nil, fmt.Errorf("missing required field l (line items)")
	}
	if *w.Confidence < 0 || *w.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", *w.Confidence)
	}

	analysis := &domain.ReceiptAnalysis{
		VendorName:    strings.TrimSpace(*w.Vendor),
		VendorAddress: strings.TrimSpace(w.Address),
		ReceiptDate:   parseWireDate(w.Date),
		ReceiptTotal:  *w.Total,
		TaxAmount:     w.Tax,
		Currency:      strings.ToUpper(strings.TrimSpace(*w.Currency)),
		Confidence:    *w.Confidence,
		LineItems:     make([]domain.AnalysisLineItem, 0, len(*w.Items)),
		Raw:           raw,
	}

	for i, item := range *w.Items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, fmt.Errorf("line item %d: missing required field d (description)", i)
		}
		if item.Total == nil {
			return nil, fmt.Errorf("line item %d: missing required field t (total)", i)
		}
		analysis.LineItems = append(analysis.LineItems, domain.AnalysisLineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       *item.Total,
			Category:    strings.TrimSpace(item.Category),
			Date:        parseWireDate(item.Date),
		})
	}
	return analysis, nil
}

// EncodeAnalysis renders an analysis back onto the compact wire schema.
// Missing dates become empty strings, never null.
func EncodeAnalysis(a *domain.ReceiptAnalysis) ([]byte, error) {
	items := make([]wireItem, 0, len(a.LineItems))
	for _, li := range a.LineItems {
		item := wireItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Total:       floatPtr(li.Total),
			Category:    li.Category,
		}
		if li.Date != nil {
			item.Date = li.Date.Format(wireDateLayout)
		}
		items = append(items, item)
	}

	wire := wireAnalysis{
		Vendor:     strPtr(a.VendorName),
		Address:    a.VendorAddress,
		Total:      floatPtr(a.ReceiptTotal),
		Tax:        a.TaxAmount,
		Currency:   strPtr(a.Currency),
		Confidence: floatPtr(a.Confidence),
		Items:      &items,
	}
	if a.ReceiptDate != nil {
		wire.Date = a.ReceiptDate.Format(wireDateLayout)
	}
	return json.Marshal(wire)
}

// extractJSONObject strips markdown code fences and returns the outermost
// JSON object in the text.
func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return text[start : end+1], nil
}

func parseWireDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if d, err := time.Parse(wireDateLayout, value); err == nil {
		return &d
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return &d
		}
	}
	// Unparseable dates degrade to "no date" rather than failing the file.
	return nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
