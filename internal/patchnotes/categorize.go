package patchnotes

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

// Category names, in publishing order.
const (
	CategoryContent   = "Content"
	CategoryClass     = "Class"
	CategorySystems   = "Systems"
	CategoryInterface = "Interface"
	CategoryCrafting  = "Crafting"
	CategoryGuilds    = "Guilds"
	CategoryBugFixes  = "Bug Fixes"
)

// CategoryOrder is the fixed publishing order of known categories.
var CategoryOrder = []string{
	CategoryContent, CategoryClass, CategorySystems, CategoryInterface,
	CategoryCrafting, CategoryGuilds, CategoryBugFixes,
}

var categoryAliases = map[string]string{
	"content":   CategoryContent,
	"class":     CategoryClass,
	"classes":   CategoryClass,
	"systems":   CategorySystems,
	"system":    CategorySystems,
	"interface": CategoryInterface,
	"ui/chat":   CategoryInterface,
	"ui":        CategoryInterface,
	"chat":      CategoryInterface,
	"crafting":  CategoryCrafting,
	"guilds":    CategoryGuilds,
	"guild":     CategoryGuilds,
	"bug fixes": CategoryBugFixes,
	"bugfixes":  CategoryBugFixes,
	"bugs":      CategoryBugFixes,
	"bug":       CategoryBugFixes,
}

// NormalizeCategory maps a label onto the category vocabulary. The boolean
// is false for labels outside it, which are returned trimmed.
func NormalizeCategory(label string) (string, bool) {
	label = textutil.CollapseSpaces(label)
	if c, ok := categoryAliases[strings.ToLower(label)]; ok {
		return c, true
	}
	return label, false
}

var (
	headerLine = regexp.MustCompile(`^([A-Za-z][A-Za-z /]*):\s*$`)
	labelLine  = regexp.MustCompile(`^([A-Za-z][A-Za-z /]*):\s*(.+)$`)
)

// Categorize files every line of the raw notes under a category.
//
// A header-only line ("Crafting:") sets the current category. A labelled line
// ("UI: Moved the chat box") goes to the label's category when the label is
// known; an unknown single-word label ("Warrior: ...") is a class note and
// keeps its label. Everything else inherits the current category, which
// starts as Content.
func Categorize(raw []models.RawNote) models.Categories {
	cats := make(models.Categories)
	add := func(cat, text string) {
		if note := FormatNote(text); note != "" {
			cats[cat] = append(cats[cat], note)
		}
	}

	current := CategoryContent
	for _, n := range raw {
		for _, line := range textutil.NonEmptyLines(n.Content) {
			if m := headerLine.FindStringSubmatch(line); m != nil {
				current, _ = NormalizeCategory(m[1])
				continue
			}
			if m := labelLine.FindStringSubmatch(line); m != nil {
				label := strings.TrimSpace(m[1])
				if cat, ok := NormalizeCategory(label); ok {
					add(cat, m[2])
					current = cat
					continue
				}
				if !strings.ContainsAny(label, " /") {
					add(CategoryClass, line)
					continue
				}
			}
			add(current, line)
		}
	}
	return cats
}

var (
	mentionPattern = regexp.MustCompile(`<(@[!&]?|#)\d+>`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	classPrefix    = regexp.MustCompile(`^([A-Z][a-z]+):\s+(.*)$`)

	briefPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^the\s+`),
		regexp.MustCompile(`(?i)^a\s+`),
		regexp.MustCompile(`(?i)^an\s+`),
		regexp.MustCompile(`(?i)\s+that\s+was\s+`),
		regexp.MustCompile(`(?i)\s+that\s+is\s+`),
		regexp.MustCompile(`(?i)\s+that\s+are\s+`),
		regexp.MustCompile(`(?i)\s+which\s+was\s+`),
		regexp.MustCompile(`(?i)\s+which\s+is\s+`),
	}

	typoFixes = []struct {
		pattern *regexp.Regexp
		repl    string
	}{
		{regexp.MustCompile(`(?i)incomming`), "Incoming"},
		{regexp.MustCompile(`(?i)\bto high\b`), "Too High"},
		{regexp.MustCompile(`(?i)\bit's\b`), "It's"},
		{regexp.MustCompile(`(?i)\bwon't\b`), "Won't"},
	}

	lowercaseWords = textutil.Set(
		"a", "an", "the",
		"and", "but", "or", "nor", "for", "so", "yet",
		"in", "on", "at", "to", "of", "with", "by", "from", "as", "is",
	)
)

// FormatNote cleans one note: mentions and URLs are stripped, the text is
// put in headline case, filler words are dropped and known typos fixed.
func FormatNote(text string) string {
	text = mentionPattern.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = HeadlineCase(text)
	text = MakeBrief(text)
	for _, fix := range typoFixes {
		text = fix.pattern.ReplaceAllString(text, fix.repl)
	}
	return text
}

// HeadlineCase capitalises every word except short articles, conjunctions
// and prepositions. The first word is always capitalised, all-caps words
// keep their case and a leading "Class:" label is preserved.
func HeadlineCase(text string) string {
	if m := classPrefix.FindStringSubmatch(text); m != nil {
		return m[1] + ": " + HeadlineCase(m[2])
	}
	words := strings.Fields(text)
	for i, w := range words {
		switch {
		case i == 0:
			words[i] = capitalize(w)
		case textutil.IsUpperWord(w):
		case isLowercaseWord(w):
			words[i] = strings.ToLower(w)
		default:
			words[i] = capitalize(w)
		}
	}
	return strings.Join(words, " ")
}

func isLowercaseWord(w string) bool {
	_, ok := lowercaseWords[strings.ToLower(w)]
	return ok
}

func capitalize(w string) string {
	if textutil.IsUpperWord(w) {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// MakeBrief drops leading articles and "that was"/"which is" style filler.
func MakeBrief(text string) string {
	for _, p := range briefPatterns {
		text = p.ReplaceAllString(text, " ")
	}
	return textutil.CollapseSpaces(text)
}
