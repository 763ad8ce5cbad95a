package patchnotes

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/models"
)

// OrderedCategories returns the non-empty categories of cats in publishing
// order: known categories first, then the rest alphabetically.
func OrderedCategories(cats models.Categories) []string {
	known := make(map[string]bool, len(CategoryOrder))
	var out []string
	for _, c := range CategoryOrder {
		known[c] = true
		if len(cats[c]) > 0 {
			out = append(out, c)
		}
	}
	var extra []string
	for c, notes := range cats {
		if !known[c] && len(notes) > 0 {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

var classLabel = regexp.MustCompile(`^([A-Za-z]+):`)

func classKey(note string) string {
	if m := classLabel.FindStringSubmatch(note); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// notesFor returns the notes of one category as published. Class notes are
// sorted by class name; the input is not modified.
func notesFor(cats models.Categories, cat string) []string {
	notes := append([]string(nil), cats[cat]...)
	if cat == CategoryClass {
		sort.SliceStable(notes, func(i, j int) bool { return classKey(notes[i]) < classKey(notes[j]) })
	}
	return notes
}

// RenderDiscord renders cats as Discord markdown.
func RenderDiscord(cats models.Categories) string {
	var lines []string
	for _, cat := range OrderedCategories(cats) {
		lines = append(lines, "**"+cat+"**")
		for _, n := range notesFor(cats, cat) {
			lines = append(lines, "- "+n)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// RenderHTML renders cats as the website's patch-note markup.
func RenderHTML(cats models.Categories) string {
	var lines []string
	for _, cat := range OrderedCategories(cats) {
		lines = append(lines,
			`<div class="patch-header2">`+html.EscapeString(cat)+`</div>`,
			`<div class="spacer-10"></div>`)
		for _, n := range notesFor(cats, cat) {
			lines = append(lines, `<div class="patch-note">- `+html.EscapeString(n)+`</div>`)
		}
		lines = append(lines, `<div class="spacer-30"></div>`)
	}
	return strings.Join(lines, "\n")
}

var boldHeader = regexp.MustCompile(`^\*\*(.+?)\*\*$`)

// ParseDiscord reads categories back from Discord markdown: "**Category**"
// lines open a category and "- note" lines add to it. Anything else is ignored.
func ParseDiscord(text string) models.Categories {
	cats := make(models.Categories)
	current := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := boldHeader.FindStringSubmatch(line); m != nil {
			current = strings.TrimSpace(m[1])
			if _, ok := cats[current]; !ok {
				cats[current] = []string{}
			}
			continue
		}
		if current != "" && strings.HasPrefix(line, "-") {
			if note := strings.TrimSpace(line[1:]); note != "" {
				cats[current] = append(cats[current], note)
			}
		}
	}
	return cats
}

// NoteRef locates one note.
type NoteRef struct {
	Category string
	Text     string
}

// Flatten lists every note in publishing order.
func Flatten(cats models.Categories) []NoteRef {
	var out []NoteRef
	for _, cat := range OrderedCategories(cats) {
		for _, n := range cats[cat] {
			out = append(out, NoteRef{Category: cat, Text: n})
		}
	}
	return out
}

// Clean trims notes, drops empty notes and empty categories and returns a new map.
func Clean(cats models.Categories) models.Categories {
	out := make(models.Categories, len(cats))
	for cat, notes := range cats {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		for _, n := range notes {
			if n = strings.TrimSpace(n); n != "" {
				out[cat] = append(out[cat], n)
			}
		}
	}
	return out
}
