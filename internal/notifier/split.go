package notifier

import (
	"strings"
	"unicode/utf8"
)

// maxMessageLen is the Telegram sendMessage limit. Counting bytes keeps us
// under it for any text.
const maxMessageLen = 4096

const (
	preOpen  = "<pre>"
	preClose = "</pre>"
)

// splitMessage cuts text at line boundaries into parts of at most limit
// bytes. A <pre> block spanning a cut is closed and reopened so every part
// is valid HTML on its own. Single lines longer than a part are truncated.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
		lines int
		pre   bool // a <pre> is open at the end of cur
	)
	flush := func() {
		s := cur.String()
		if pre {
			s += preClose
		}
		parts = append(parts, s)
		cur.Reset()
		lines = 0
		if pre {
			cur.WriteString(preOpen)
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = truncate(line, limit-len(preOpen+preClose)-1)
		after := pre
		if o, c := strings.LastIndex(line, preOpen), strings.LastIndex(line, preClose); o > c {
			after = true
		} else if c >= 0 {
			after = false
		}
		// room to close the block on a later line of its own
		closing := 0
		if after {
			closing = 1 + len(preClose)
		}
		if lines > 0 && cur.Len()+1+len(line)+closing > limit {
			flush()
		}
		if lines > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		lines++
		pre = after
	}
	if lines > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
