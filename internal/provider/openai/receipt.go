package openai

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/podcheck/internal/provider"
)

const systemPrompt = "You transcribe proof-of-delivery receipts (canhotos). " +
	"Return ONLY a JSON object matching the schema you are given. " +
	"If something is not visible use null or an empty string. Never invent data. " +
	"Keep the document's original language (Portuguese) in every value."

const userPrompt = "Transcribe this delivery receipt: receiver name, delivery date and time, " +
	"invoice (nota fiscal) numbers, other document numbers and all visible text.\n\n" +
	"JSON fields:\n" +
	`{"receiver": string, "delivery_date": "ISO-8601 date", "delivery_time": "HH:MM:SS", ` +
	`"invoice_numbers": [string], "documents": [string], "extracted_text": string, ` +
	`"confidence": "high" | "medium" | "low"}`

// Receipt is the structured answer requested from the model.
type Receipt struct {
	Receiver       *string `json:"receiver"`
	DeliveryDate   *string `json:"delivery_date"`
	DeliveryTime   *string `json:"delivery_time"`
	InvoiceNumbers []any   `json:"invoice_numbers"`
	Documents      []any   `json:"documents"`
	ExtractedText  *string `json:"extracted_text"`
	Confidence     any     `json:"confidence"`
}

var nullableString = map[string]any{"type": []any{"string", "null"}}

var receiptSchema = provider.MustCompileSchema("receipt.json", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"receiver":        nullableString,
		"delivery_date":   nullableString,
		"delivery_time":   nullableString,
		"invoice_numbers": map[string]any{"type": []any{"array", "null"}},
		"documents":       map[string]any{"type": []any{"array", "null"}},
		"extracted_text":  nullableString,
		"confidence":      map[string]any{"type": []any{"string", "number", "null"}},
	},
})

// Lines renders the receipt as labelled text lines, the way the document
// itself would print them.
func (r Receipt) Lines() []string {
	var lines []string
	add := func(label string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			lines = append(lines, label+": "+strings.TrimSpace(*v))
		}
	}
	addList := func(label string, items []any) {
		var parts []string
		for _, it := range items {
			if it == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(it)); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, label+": "+strings.Join(parts, ", "))
		}
	}

	add("Recebedor", r.Receiver)
	add("Data de Recebimento", r.DeliveryDate)
	add("Hora de Recebimento", r.DeliveryTime)
	addList("Notas Fiscais", r.InvoiceNumbers)
	addList("Documentos", r.Documents)
	add("Texto Extraído", r.ExtractedText)
	switch v := r.Confidence.(type) {
	case string:
		add("Confiança", &v)
	case float64:
		s := fmt.Sprintf("%g", v)
		add("Confiança", &s)
	}
	return lines
}

// PlainLines splits content into trimmed, non-empty lines.
func PlainLines(content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// stripCodeFence removes a ```json fence some models wrap answers in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
