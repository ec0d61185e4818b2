// Package jsonutil reads loosely typed values out of model-generated JSON.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// decodeScalar decodes raw keeping numbers as json.Number. It returns nil for
// empty input, null or malformed JSON.
func decodeScalar(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// FlexibleStringValue reads a field the model should have sent as a string but may
// have sent as a number or boolean. Null and empty input give "". Objects and
// arrays come back as their raw JSON text.
func FlexibleStringValue(raw json.RawMessage) string {
	switch v := decodeScalar(raw).(type) {
	case nil:
		if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
			return ""
		}
		return string(raw)
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return string(bytes.TrimSpace(raw))
	}
}

// FlexibleFloatValue reads a number that may have been quoted ("0.85").
// The second return is false when no number could be read.
func FlexibleFloatValue(raw json.RawMessage) (float64, bool) {
	var text string
	switch v := decodeScalar(raw).(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
