package utils

import "strings"

// ParseCSV returns the trimmed, non-empty entries of a comma list such as
// KAFKA_BROKERS or an event ?types= filter. Blank input yields nil.
func ParseCSV(s string) []string {
	var out []string
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}
