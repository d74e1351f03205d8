package string

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts a Go field name such as "RetentionClass" to "retention_class".
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Dedupe removes exact duplicates from a slice, keeping the first
// occurrence. Elements are compared byte for byte and never rewritten.
//
// Example:
//
//	Dedupe([]string{"apology", "family", "apology", " apology"})
//	// Returns: []string{"apology", "family", " apology"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}
