package oracle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractJSONBlock pulls the JSON object out of an oracle response that may
// be wrapped in markdown fences or prose. Returns the input unchanged when it
// already starts with a brace.
func ExtractJSONBlock(response string) string {
	s := strings.TrimSpace(response)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	// Last resort: slice from the first brace to the last.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// FlexibleString converts a json.RawMessage to a string, handling oracles
// that return numbers or booleans where a string was asked for. Returns empty
// string for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleFloat converts a json.RawMessage to a float pointer, handling
// quoted numbers, currency formatting and null. Returns nil when no number
// can be recovered.
func FlexibleFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return &numVal
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strVal)
		// Accountant-style negatives: (1,234.56)
		negative := strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")")
		if negative {
			cleaned = strings.Trim(cleaned, "()")
		}
		if cleaned == "" {
			return nil
		}
		if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
			if negative {
				v = -v
			}
			return &v
		}
	}

	return nil
}
