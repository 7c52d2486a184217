package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

var (
	reDate       = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)
	reDateSep    = regexp.MustCompile(`[/-]`)
	reTracking   = regexp.MustCompile(`\b([A-Z]{2}\d{9}[A-Z]{2})\b`)
	reLongNumber = regexp.MustCompile(`\b\d{10,}\b`)
	reTrace      = regexp.MustCompile(`_{4,}|-{4,}`)
	reNameSep    = regexp.MustCompile(`[:\-–—]\s*`)
	reMultiSpace = regexp.MustCompile(`\s{2,}`)
)

var recipientKeywords = []string{
	"recebedor",
	"recebido",
	"responsavel",
	"responsável",
	"assinatura",
	"assinante",
	"recipient",
	"received by",
}

var signatureKeywords = []string{"assinatura", "signature"}

// Confidence levels used when a line carries none of its own.
const (
	traceConfidence       = 0.9
	keywordOnlyConfidence = 0.6
	absentSignatureConf   = 0.5
	longNumberDefault     = 0.6
	fullTextFallbackConf  = 0.4
)

// best keeps the highest-confidence candidate; ties keep the earlier one.
type best struct {
	field *entity.ExtractedField
}

func (b *best) offer(c entity.ExtractedField) {
	if b.field == nil || c.ConfidenceOr(0) > b.field.ConfidenceOr(0) {
		b.field = &c
	}
}

func (b *best) or(name string) entity.ExtractedField {
	if b.field != nil {
		return *b.field
	}
	return notFound(name)
}

func notFound(name string) entity.ExtractedField {
	return entity.ExtractedField{Name: name, Value: entity.NullValue(), Confidence: entity.Float(0)}
}

func candidate(name string, value entity.FieldValue, conf *float64, l entity.OCRLine) entity.ExtractedField {
	return entity.ExtractedField{
		Name:       name,
		Value:      value,
		Confidence: roundConfidence(conf),
		BBox:       l.BBox,
		Page:       l.Page,
	}
}

func detectDate(lines []entity.OCRLine, _ string) entity.ExtractedField {
	var b best
	for _, l := range lines {
		for _, m := range reDate.FindAllStringSubmatch(l.Text, -1) {
			iso, ok := NormalizeDate(m[1])
			if !ok {
				continue
			}
			b.offer(candidate(FieldDate, entity.StringValue(iso), l.Confidence, l))
		}
	}
	return b.or(FieldDate)
}

// NormalizeDate converts D/M/Y, D-M-YY, Y-M-D or Y/M/D to YYYY-MM-DD.
// Two-digit years below 50 are 20YY, the rest 19YY. Impossible calendar
// dates are rejected.
func NormalizeDate(raw string) (string, bool) {
	tokens := reDateSep.Split(raw, -1)
	if len(tokens) != 3 {
		return "", false
	}
	var ys, ms, ds string
	if len(tokens[0]) == 4 {
		ys, ms, ds = tokens[0], tokens[1], tokens[2]
	} else {
		ds, ms, ys = tokens[0], tokens[1], tokens[2]
	}
	year, err1 := strconv.Atoi(ys)
	month, err2 := strconv.Atoi(ms)
	day, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	switch len(ys) {
	case 2:
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	case 4:
	default:
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func detectRecipient(lines []entity.OCRLine, _ string) entity.ExtractedField {
	var b best
	for _, l := range lines {
		if !containsAny(strings.ToLower(l.Text), recipientKeywords) {
			continue
		}
		name := CleanName(afterSeparator(l.Text))
		if name == "" {
			continue
		}
		b.offer(candidate(FieldRecipientName, entity.StringValue(name), l.Confidence, l))
	}
	return b.or(FieldRecipientName)
}

func afterSeparator(text string) string {
	parts := reNameSep.Split(text, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(text)
}

// CleanName strips separators, signature traces and trailing digits and
// collapses whitespace. A value without any letter cleans to "".
func CleanName(name string) string {
	cleaned := reTrace.ReplaceAllString(name, " ")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ":.-–—_ ")
	cleaned = reMultiSpace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(strings.TrimRight(cleaned, "0123456789"))
	if !strings.ContainsFunc(cleaned, unicode.IsLetter) {
		return ""
	}
	return cleaned
}

// detectSignature reports the first signature line. A trace of underscores or
// dashes on that line means the recipient signed.
func detectSignature(lines []entity.OCRLine, _ string) entity.ExtractedField {
	for _, l := range lines {
		if !containsAny(strings.ToLower(l.Text), signatureKeywords) {
			continue
		}
		trace := reTrace.MatchString(l.Text)
		floor := keywordOnlyConfidence
		if trace {
			floor = traceConfidence
		}
		conf := max(l.ConfidenceOr(0), floor)
		return candidate(FieldSignaturePresent, entity.BoolValue(trace), &conf, l)
	}
	return entity.ExtractedField{
		Name:       FieldSignaturePresent,
		Value:      entity.BoolValue(false),
		Confidence: entity.Float(absentSignatureConf),
	}
}

// detectTracking prefers strict tracking codes, then long digit runs, then a
// whole-text search at reduced confidence.
func detectTracking(lines []entity.OCRLine, fullText string) entity.ExtractedField {
	var strict, long best
	for _, l := range lines {
		if m := reTracking.FindStringSubmatch(l.Text); m != nil {
			strict.offer(candidate(FieldTrackingCode, entity.StringValue(m[1]), l.Confidence, l))
			continue
		}
		if m := reLongNumber.FindString(l.Text); m != "" {
			conf := l.ConfidenceOr(longNumberDefault)
			long.offer(candidate(FieldTrackingCode, entity.StringValue(m), &conf, l))
		}
	}
	if strict.field != nil {
		return *strict.field
	}
	if long.field != nil {
		return *long.field
	}

	value := ""
	if m := reTracking.FindStringSubmatch(fullText); m != nil {
		value = m[1]
	} else if m := reLongNumber.FindString(fullText); m != "" {
		value = m
	}
	if value == "" {
		return notFound(FieldTrackingCode)
	}
	return entity.ExtractedField{
		Name:       FieldTrackingCode,
		Value:      entity.StringValue(value),
		Confidence: entity.Float(fullTextFallbackConf),
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
