package voice

import (
	"regexp"
	"strings"
)

// The same normalization runs before display, persistence, and
// synthesis so persisted history and spoken text never diverge.

var (
	thinkBlockRe     = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)
	codeFenceRe      = regexp.MustCompile("(?m)^```[^\n]*$")
	headerRe         = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	listBulletRe     = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	linkRe           = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	horizontalRuleRe = regexp.MustCompile(`(?m)^\s*(?:[-*_]\s*){3,}$`)
	emphasisRe       = regexp.MustCompile("\\*\\*|__|[*_`]")
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// CleanText strips structural markup from model output and collapses
// all whitespace to single spaces.
func CleanText(text string) string {
	text = thinkBlockRe.ReplaceAllString(text, " ")
	text = codeFenceRe.ReplaceAllString(text, " ")
	text = horizontalRuleRe.ReplaceAllString(text, " ")
	text = headerRe.ReplaceAllString(text, "")
	text = listBulletRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "|", " ")
	text = emphasisRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
