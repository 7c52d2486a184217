package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldKind tags the variant held by a FieldValue.
type FieldKind int

const (
	FieldNull FieldKind = iota
	FieldString
	FieldBool
)

// FieldValue is null, a string or a bool.
type FieldValue struct {
	kind FieldKind
	str  string
	b    bool
}

func NullValue() FieldValue           { return FieldValue{} }
func StringValue(s string) FieldValue { return FieldValue{kind: FieldString, str: s} }
func BoolValue(b bool) FieldValue     { return FieldValue{kind: FieldBool, b: b} }

func (v FieldValue) Kind() FieldKind { return v.kind }
func (v FieldValue) IsNull() bool    { return v.kind == FieldNull }

// Str returns the string payload and whether the value is a string.
func (v FieldValue) Str() (string, bool) {
	return v.str, v.kind == FieldString
}

// Bool returns the bool payload and whether the value is a bool.
func (v FieldValue) Bool() (bool, bool) {
	return v.b, v.kind == FieldBool
}

// String renders the value for reports; null renders as "-".
func (v FieldValue) String() string {
	switch v.kind {
	case FieldString:
		return v.str
	case FieldBool:
		return strconv.FormatBool(v.b)
	default:
		return "-"
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FieldString:
		return json.Marshal(v.str)
	case FieldBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = NullValue()
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = BoolValue(data[0] == 't')
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	default:
		return fmt.Errorf("field value: unsupported JSON %s", data)
	}
	return nil
}

// ExtractedField is a detector's best candidate for one field.
type ExtractedField struct {
	Name       string     `json:"name"`
	Value      FieldValue `json:"value"`
	Confidence *float64   `json:"confidence"`
	BBox       *BBox      `json:"bbox"`
	Page       int        `json:"page,omitempty"`
}

// ConfidenceOr returns the field confidence or def when unknown.
func (f ExtractedField) ConfidenceOr(def float64) float64 {
	if f.Confidence == nil {
		return def
	}
	return *f.Confidence
}
