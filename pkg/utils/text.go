package utils

import "unicode/utf8"

// Truncate 按字符截断，超长时末尾加省略号
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
