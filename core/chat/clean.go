package chat

import (
	"regexp"
	"strings"
)

// Prompt-scaffold labels that occasionally leak into generated text.
// Matching is case-insensitive and stops at the first colon on the line.
var (
	scaffoldLabels = regexp.MustCompile(`(?i)(RÉPONSE|MESSAGE UTILISATEUR|CONTEXTE|INSTRUCTIONS SYSTÈME)[^:\n]*:`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes raw provider text: leaked scaffold labels are
// stripped, runs of three or more newlines collapse to two, surrounding
// whitespace is trimmed, and a missing terminal punctuation mark becomes
// a period. Clean is idempotent.
func Clean(text string) string {
	cleaned := scaffoldLabels.ReplaceAllString(text, "")
	cleaned = excessNewlines.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return cleaned
	}
	if !strings.HasSuffix(cleaned, ".") && !strings.HasSuffix(cleaned, "!") && !strings.HasSuffix(cleaned, "?") {
		cleaned += "."
	}
	return cleaned
}
