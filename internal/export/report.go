package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

const sampleLines = 15

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ReportMarkdown renders the validation report as GitHub-flavoured Markdown.
func ReportMarkdown(out entity.PipelineOutcome, v entity.ValidationOutcome) string {
	var b strings.Builder
	b.WriteString("# Proof of delivery validation\n\n")

	b.WriteString("| | |\n|---|---|\n")
	row := func(k, val string) { fmt.Fprintf(&b, "| %s | %s |\n", k, cell(val)) }
	row("File", out.Source.Filename)
	row("Mode", out.Mode)
	row("Engine", out.EngineUsed)
	row("Engine chain", joinOr(out.EngineChain, " → ", "-"))
	row("Decision", "**"+string(v.Decision)+"**")
	row("Decision score", fmt.Sprintf("%.4f", v.DecisionScore))
	row("Quality score (min)", formatScore(v.Quality.ScoreMin))
	row("Quality score (avg)", formatScore(v.Quality.ScoreAvg))
	row("Quality threshold", fmt.Sprintf("%.2f", v.Thresholds.QualityMinScore))
	row("Field confidence threshold", fmt.Sprintf("%.2f", v.Thresholds.FieldMinConfidence))
	if out.SkippedExtraction {
		row("Extraction", "skipped by quality gate")
	}

	b.WriteString("\n## Extracted fields\n\n")
	b.WriteString("| Field | Value | Confidence | Page |\n|---|---|---|---|\n")
	for _, f := range v.OrderedFields() {
		page := "-"
		if f.Page > 0 {
			page = fmt.Sprint(f.Page)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(f.Name), cell(f.Value.String()), formatScore(f.Confidence), page)
	}

	if len(v.Issues) > 0 {
		b.WriteString("\n## Issues\n\n")
		for _, issue := range v.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	if len(v.Quality.Hints) > 0 {
		b.WriteString("\n## Capture hints\n\n")
		for _, h := range v.Quality.Hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	if len(out.Latencies) > 0 {
		b.WriteString("\n## Latencies (s)\n\n")
		for _, k := range []string{"gate", "primary", "total"} {
			if d, ok := out.Latencies[k]; ok {
				fmt.Fprintf(&b, "- %s: %.3f\n", k, d)
			}
		}
	}

	if lines := out.Normalized.Lines; len(lines) > 0 {
		b.WriteString("\n## OCR text sample\n\n```\n")
		for i, l := range lines {
			if i == sampleLines {
				break
			}
			b.WriteString(strings.ReplaceAll(l.Text, "```", "'''"))
			b.WriteString("\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

// ReportHTML converts the Markdown report into a standalone HTML page.
func ReportHTML(md, title string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("<style>body{font-family:sans-serif;max-width:56em;margin:2em auto;color:#1f2933}" +
		"table{border-collapse:collapse}td,th{border:1px solid #cbd2d9;padding:4px 8px}" +
		"pre{background:#f5f7fa;padding:1em}</style>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
