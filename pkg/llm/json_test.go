package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain query object",
			input: `{"measures": ["Film.count"]}`,
			want:  `{"measures": ["Film.count"]}`,
		},
		{
			name:  "array of suggestions",
			input: `[{"from_table": "rental"}, {"from_table": "payment"}]`,
			want:  `[{"from_table": "rental"}, {"from_table": "payment"}]`,
		},
		{
			name:  "think tags stripped",
			input: "<think>\nthe join is missing\n</think>\n{\"dimensions\": [\"Film.title\"]}",
			want:  `{"dimensions": ["Film.title"]}`,
		},
		{
			name:  "prose around object",
			input: "Here is the corrected query:\n{\"measures\": [\"Payment.total\"]}\nThis removes the join.",
			want:  `{"measures": ["Payment.total"]}`,
		},
		{
			name:  "braces inside strings",
			input: `{"filters": [{"member": "Film.title", "operator": "contains", "values": ["{x}"]}]}`,
			want:  `{"filters": [{"member": "Film.title", "operator": "contains", "values": ["{x}"]}]}`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"explanation": "use \"Film\" only"}`,
			want:  `{"explanation": "use \"Film\" only"}`,
		},
		{
			name:  "array before object",
			input: `[1, 2] then {"a": 1}`,
			want:  `[1, 2]`,
		},
		{
			name:    "no json",
			input:   "I cannot fix this query.",
			wantErr: true,
		},
		{
			name:    "truncated object",
			input:   `{"measures": ["Film.count"`,
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtractJSON_NoJSONSentinel(t *testing.T) {
	if _, err := ExtractJSON("<think>nothing to add</think>"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestParseJSONResponse(t *testing.T) {
	type suggestion struct {
		FromTable  string  `json:"from_table"`
		Confidence float64 `json:"confidence"`
	}

	input := "<think>checking keys</think>```json\n{\"from_table\": \"rental\", \"confidence\": 0.9}\n```"
	result, err := ParseJSONResponse[suggestion](input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FromTable != "rental" {
		t.Errorf("expected from_table 'rental', got %q", result.FromTable)
	}
	if result.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", result.Confidence)
	}

	if _, err := ParseJSONResponse[[]suggestion](`{"from_table": "rental"}`); err == nil {
		t.Error("expected unmarshal error for object into slice")
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "json fence",
			input: "```json\n{\"measures\": [\"Film.count\"]}\n```",
			want:  `{"measures": ["Film.count"]}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "fence with trailing prose",
			input: "```json\n{\"a\": 1}\n```\nEXPLANATION ends here",
			want:  `{"a": 1}`,
		},
		{
			name:  "no fence",
			input: "  {\"a\": 1}  ",
			want:  `{"a": 1}`,
		},
		{
			name:  "unterminated fence",
			input: "```{\"a\": 1}",
			want:  `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
