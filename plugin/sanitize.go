package plugin

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const allowedOutputChars = "-_.() \r\n" +
	"abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SanitizeOutput reduces device output to plain ASCII letters, digits, whitespace and "-_.()".
// Accented characters are decomposed first so that their base letter survives.
func SanitizeOutput(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r < 128 && strings.ContainsRune(allowedOutputChars, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
