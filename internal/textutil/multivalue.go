package textutil

import "strings"

// MultiSeparator joins multiple values stored in one attribute.
const MultiSeparator = ";"

// SplitValues splits a multi-value attribute, dropping empty parts.
func SplitValues(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, MultiSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinValues joins non-empty values with MultiSeparator.
func JoinValues(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return strings.Join(cleaned, MultiSeparator)
}

// SplitList parses a free-form model answer listing names separated by
// commas or newlines.
func SplitList(value string) []string {
	value = strings.ReplaceAll(value, "\n", ",")
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = CollapseSpaces(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CollapseSpaces trims s and replaces internal whitespace runs with one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DedupeKeepOrder removes repeated values, keeping first occurrences.
func DedupeKeepOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// Truncate shortens s to at most limit runes, collapsing whitespace and
// marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	s = CollapseSpaces(s)
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
