package gemini

import (
	"strings"
	"testing"
)

// The prompt is the contract with the model; these assertions pin the rules
// the decoder depends on.
func TestExtractionPromptContract(t *testing.T) {
	for _, rule := range []string{
		"Merge line items with identical description and unit price",
		"Missing dates are empty strings, never null",
		"no currency symbols",
		"Return only the JSON object",
		"YYYY-MM-DD",
	} {
		if !strings.Contains(extractionPrompt, rule) {
			t.Errorf("prompt lost the rule %q", rule)
		}
	}

	for _, key := range []string{"v:", "a:", "d:", "t:", "x:", "c:", "s:", "l:", "q:", "u:", "e:"} {
		if !strings.Contains(extractionPrompt, key) {
			t.Errorf("prompt does not declare wire key %q", key)
		}
	}
}
