// Package llmjson extracts JSON payloads from LLM responses that may wrap
// them in prose or markdown code fences.
package llmjson

import "strings"

// Extract returns the first complete JSON object or array in the response,
// with surrounding markdown and commentary removed. If no JSON value is
// found, the cleaned response is returned as-is so the caller's
// json.Unmarshal reports the real problem.
func Extract(response string) string {
	response = stripCodeFences(response)

	start := jsonStart(response)
	if start < 0 {
		return response
	}
	response = response[start:]
	if end := jsonEnd(response); end >= 0 {
		response = response[:end+1]
	}
	return response
}

// stripCodeFences replaces ```lang ... ``` blocks with their content.
func stripCodeFences(s string) string {
	for {
		open := strings.Index(s, "```")
		if open < 0 {
			return s
		}
		end := strings.Index(s[open+3:], "```")
		if end < 0 {
			return s
		}
		end += open + 3

		content := s[open+3 : end]
		if nl := strings.IndexByte(content, '\n'); nl >= 0 {
			content = content[nl+1:]
		}
		s = s[:open] + content + s[end+3:]
	}
}

func jsonStart(s string) int {
	return strings.IndexAny(s, "{[")
}

// jsonEnd returns the index of the bracket closing the value at position 0,
// tracking string literals and escapes.
func jsonEnd(s string) int {
	depth := 0
	inString := false
	escape := false

	for i, c := range s {
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
