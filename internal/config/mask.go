package config

import "strings"

// Mask returns a loggable form of a secret:
//   - up to 5 characters: fully masked
//   - up to 20: first and last characters visible
//   - longer: first 3 and last characters visible
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}
