package gemini

// extractionPrompt declares the compact wire schema. Keeping the keys to one
// or two letters keeps response token counts down; the coalescing rule makes
// the model deduplicate repeated items before answering.
const extractionPrompt = `You are a receipt data extractor.
Read the attached receipt and return exactly one JSON object with these keys:
  v: vendor name (string, required)
  a: vendor address (string; omit if not visible)
  d: receipt date as YYYY-MM-DD, or "" if not visible
  t: receipt grand total (number, required)
  x: tax amount (number; omit if not visible)
  c: ISO 4217 currency code (string, required)
  s: your confidence from 0 to 1 (number, required)
  l: array of line items (required, may be empty); each item:
     d: description (string, required)
     q: quantity (number; omit if not printed)
     u: unit price (number; omit if not printed)
     t: line total (number, required)
     c: category (string; omit if unclear)
     e: item date as YYYY-MM-DD (omit unless it differs from the receipt date)
Rules:
- Monetary values are bare numbers: no currency symbols, no thousands separators.
- Missing dates are empty strings, never null.
- Merge line items with identical description and unit price into one item with the summed quantity.
- Return only the JSON object. No markdown, no commentary, no extra keys.`
