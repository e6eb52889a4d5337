package mbox

import (
	"regexp"
	"strings"
)

var (
	// re:, fwd:, fw:, aw:, sv:, antw:, wg: with an optional counter such as
	// re[2]:, re(3): or re^2:
	replyPrefix = regexp.MustCompile(`^(?:re|fwd?|aw|sv|antw|wg)(?:\s*\[\d+\]|\s*\(\d+\)|\^\d+)?\s*:\s*`)
	listTag     = regexp.MustCompile(`^\[[^\[\]]*\]\s*`)
	fwdTrailer  = regexp.MustCompile(`\s*\((?:fwd|fw)\)$`)
)

// NormalizeSubject returns the base subject used to group replies that carry
// no usable reference headers: lowercased, whitespace collapsed, leading
// reply/forward markers and mailing-list tags removed.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(strings.Join(strings.Fields(subject), " "))

	for {
		prev := s
		s = fwdTrailer.ReplaceAllString(s, "")
		s = replyPrefix.ReplaceAllString(s, "")
		if stripped := listTag.ReplaceAllString(s, ""); stripped != "" {
			s = stripped
		}
		if s == prev {
			break
		}
	}

	return strings.TrimSpace(s)
}
