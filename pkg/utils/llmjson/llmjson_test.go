package llmjson_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/utils/llmjson"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"openness": 0.8}`,
			expected: `{"openness": 0.8}`,
		},
		{
			name:     "fenced with language",
			input:    "```json\n{\"openness\": 0.8}\n```",
			expected: `{"openness": 0.8}`,
		},
		{
			name:     "prose around object",
			input:    "Here is the result:\n{\"openness\": 0.8}\nLet me know!",
			expected: `{"openness": 0.8}`,
		},
		{
			name:     "array payload",
			input:    "Facts: [{\"text\": \"a\"}, {\"text\": \"b\"}] done",
			expected: `[{"text": "a"}, {"text": "b"}]`,
		},
		{
			name:     "braces inside strings",
			input:    `{"text": "uses {curly} braces"}`,
			expected: `{"text": "uses {curly} braces"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := llmjson.Extract(tc.input)
			gt.V(t, got).Equal(tc.expected)

			var v any
			gt.NoError(t, json.Unmarshal([]byte(got), &v))
		})
	}
}

func TestExtractNoJSON(t *testing.T) {
	gt.V(t, llmjson.Extract("no structured data here")).Equal("no structured data here")
}
