package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"email"`, "email"},
		{"empty string", `""`, ""},
		{"integer", `42`, "42"},
		{"negative integer", `-7`, "-7"},
		{"decimal", `0.95`, "0.95"},
		{"integer beyond float precision", `9007199254740993`, "9007199254740993"},
		{"false", `false`, "false"},
		{"true", `true`, "true"},
		{"null", `null`, ""},
		{"whitespace only", `  `, ""},
		{"padded string", ` "PHONE" `, "PHONE"},
		{"object", `{"type":"email"}`, `{"type":"email"}`},
		{"array", `["email","phone"]`, `["email","phone"]`},
		{"malformed", `NONE`, "NONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleStringValue(json.RawMessage(tt.raw)))
		})
	}

	assert.Empty(t, FlexibleStringValue(nil))
}

func TestFlexibleFloatValue(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   float64
		wantOK bool
	}{
		{"number", `0.85`, 0.85, true},
		{"integer", `1`, 1, true},
		{"quoted", `"0.7"`, 0.7, true},
		{"quoted with padding", `" 0.9 "`, 0.9, true},
		{"exponent", `8e-1`, 0.8, true},
		{"word", `"high"`, 0, false},
		{"boolean", `true`, 0, false},
		{"null", `null`, 0, false},
		{"empty", ``, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleFloatValue(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
