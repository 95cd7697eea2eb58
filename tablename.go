package cimodel

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TableNameFromType derives a table name from a short type name by splitting
// before every uppercase letter and joining the segments lowercased with "_".
//
//	UserAccount -> user_account
//	HTTPLog     -> h_t_t_p_log
func TableNameFromType(shortName string) string {
	var segments []string
	start := 0
	for i, r := range shortName {
		if i > start && unicode.IsUpper(r) {
			segments = append(segments, shortName[start:i])
			start = i
		}
	}
	if start < len(shortName) {
		segments = append(segments, shortName[start:])
	}

	for i, seg := range segments {
		segments[i] = lowerFirst(seg)
	}
	return strings.Join(segments, "_")
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
