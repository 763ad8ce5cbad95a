// Package textutil holds the small text-normalisation helpers shared by the
// relevance scorer, the context builder and the patch-note matcher.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const edgePunct = ".,!?;:\"'()[]{}<>*_`~"

// Tokens lowercases s and splits it on whitespace, trimming surrounding
// punctuation from each token. Empty tokens are dropped.
func Tokens(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, edgePunct)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Keywords returns the tokens of s longer than minLen runes, in order.
// Tokens listed in stop are skipped.
func Keywords(s string, minLen int, stop map[string]struct{}) []string {
	var out []string
	for _, tok := range Tokens(s) {
		if utf8.RuneCountInString(tok) <= minLen {
			continue
		}
		if _, skip := stop[tok]; skip {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// HasToken reports whether any token of s is in set.
func HasToken(s string, set map[string]struct{}) bool {
	for _, tok := range Tokens(s) {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

// Set builds a lookup set from words, lowercasing each.
func Set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

var markdownReplacer = strings.NewReplacer("**", "", "__", "", "#", "", "`", "", "~~", "")

// StripMarkdown removes bold, underline, heading, code and strike markers and trims the result.
func StripMarkdown(s string) string {
	return strings.TrimSpace(markdownReplacer.Replace(s))
}

// Prefix returns the first n bytes of s, backing off to a rune boundary.
func Prefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CollapseSpaces replaces every whitespace run with a single space and trims.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsUpperWord reports whether w has at least two letters and all of them are upper case.
func IsUpperWord(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// NonEmptyLines splits s on newlines and returns the trimmed non-empty lines.
func NonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Head returns the first n runes of s.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Chunk splits text into pieces of at most limit runes, breaking on line
// boundaries. A single line longer than limit is hard-split. Pieces are
// trimmed and empty pieces dropped.
func Chunk(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > limit {
			flush()
			for utf8.RuneCountInString(line) > limit {
				head := Head(line, limit)
				chunks = append(chunks, head)
				line = line[len(head):]
			}
			cur.WriteString(line)
			curLen = utf8.RuneCountInString(line)
			continue
		}
		if curLen > 0 && curLen+1+n > limit {
			flush()
		}
		if curLen > 0 || cur.Len() > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}
