package patchnotes

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

// Thresholds tune the image matcher.
type Thresholds struct {
	// Unique is the minimum score of the one-to-one pass and of the
	// preceding-message fallback.
	Unique int `yaml:"unique"`
	// Shared is the minimum score for attaching to an already matched note.
	Shared int `yaml:"shared"`
	// Reresolve is the minimum score for carrying an association over an edit.
	Reresolve int `yaml:"reresolve"`
}

// DefaultThresholds returns the stock matcher thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Unique: 4, Shared: 6, Reresolve: 3}
}

const (
	maxKeywords     = 6
	strongPrefixLen = 50
	weakPrefixLen   = 30
)

var matchStopwords = textutil.Set("the", "and", "for", "was", "were")

func matchWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := matchStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Similarity scores how well note describes the raw message text:
// +1 for each of the first six keywords found in the note, +10 when the
// first 50 characters of either text occur in the other (else +5 for 30),
// and +2 for each distinctive (longer than four characters) keyword found.
func Similarity(raw, note string) int {
	raw = strings.ToLower(strings.TrimSpace(raw))
	note = strings.ToLower(strings.TrimSpace(note))
	if raw == "" || note == "" {
		return 0
	}
	words := matchWords(raw)

	score := 0
	for i, w := range words {
		if i == maxKeywords {
			break
		}
		if strings.Contains(note, w) {
			score++
		}
	}

	switch {
	case strings.Contains(note, textutil.Head(raw, strongPrefixLen)) ||
		strings.Contains(raw, textutil.Head(note, strongPrefixLen)):
		score += 10
	case strings.Contains(note, textutil.Head(raw, weakPrefixLen)) ||
		strings.Contains(raw, textutil.Head(note, weakPrefixLen)):
		score += 5
	}

	for _, w := range words {
		if utf8.RuneCountInString(w) > 4 && strings.Contains(note, w) {
			score += 2
		}
	}
	return score
}

// bestNote returns the highest scoring note, the first one on ties.
// Notes for which skip returns true are ignored.
func bestNote(text string, notes []NoteRef, skip func(string) bool) (string, int) {
	best, bestScore := "", 0
	for _, n := range notes {
		if skip != nil && skip(n.Text) {
			continue
		}
		if s := Similarity(text, n.Text); s > bestScore {
			best, bestScore = n.Text, s
		}
	}
	return best, bestScore
}

// Associate maps notes to the indices of the raw messages whose images
// illustrate them. It is a pure function of its inputs.
//
// Pass one matches each image message to its best unused note (one-to-one,
// score >= Unique). Pass two lets the remaining image messages join a note
// that is already taken, with the stricter Shared threshold. Pass three
// handles images posted on their own: a still unmatched image message
// inherits the best note of the nearest earlier message that has text, if
// that note scores at least Unique.
func Associate(raw []models.RawNote, cats models.Categories, th Thresholds) map[string][]int {
	notes := Flatten(cats)
	out := make(map[string][]int)
	if len(notes) == 0 {
		return out
	}

	var pending []int
	for i, r := range raw {
		if r.HasImages() {
			pending = append(pending, i)
		}
	}

	used := make(map[string]bool)
	var rest []int
	for _, i := range pending {
		note, score := bestNote(raw[i].Content, notes, func(n string) bool { return used[n] })
		if note != "" && score >= th.Unique {
			out[note] = append(out[note], i)
			used[note] = true
			continue
		}
		rest = append(rest, i)
	}

	var unmatched []int
	for _, i := range rest {
		note, score := bestNote(raw[i].Content, notes, nil)
		if note != "" && score >= th.Shared {
			out[note] = append(out[note], i)
			continue
		}
		unmatched = append(unmatched, i)
	}

	for _, i := range unmatched {
		j := i - 1
		for j >= 0 && strings.TrimSpace(raw[j].Content) == "" {
			j--
		}
		if j < 0 {
			continue
		}
		note, score := bestNote(raw[j].Content, notes, nil)
		if note != "" && score >= th.Unique {
			out[note] = append(out[note], i)
		}
	}

	for n := range out {
		sort.Ints(out[n])
	}
	return out
}

// Reresolve carries an association map over an edit of the categories.
// Notes that survived unchanged keep their images; an edited note passes its
// images to the most similar new note (score >= Reresolve). Images that
// cannot be placed that way are matched afresh with Associate.
func Reresolve(old map[string][]int, raw []models.RawNote, cats models.Categories, th Thresholds) map[string][]int {
	notes := Flatten(cats)
	current := make(map[string]bool, len(notes))
	for _, n := range notes {
		current[n.Text] = true
	}

	oldNotes := make([]string, 0, len(old))
	for n := range old {
		oldNotes = append(oldNotes, n)
	}
	sort.Strings(oldNotes)

	out := make(map[string][]int)
	var unresolved []int
	for _, oldNote := range oldNotes {
		idxs := old[oldNote]
		if current[oldNote] {
			out[oldNote] = append(out[oldNote], idxs...)
			continue
		}
		if note, score := bestNote(oldNote, notes, nil); note != "" && score >= th.Reresolve {
			out[note] = append(out[note], idxs...)
			continue
		}
		unresolved = append(unresolved, idxs...)
	}

	if len(unresolved) > 0 {
		fresh := Associate(raw, cats, th)
		owner := make(map[int]string)
		for n, idxs := range fresh {
			for _, i := range idxs {
				owner[i] = n
			}
		}
		for _, i := range unresolved {
			if n, ok := owner[i]; ok {
				out[n] = append(out[n], i)
			}
		}
	}

	for n := range out {
		out[n] = uniqueSorted(out[n])
	}
	return out
}

func uniqueSorted(xs []int) []int {
	sort.Ints(xs)
	out := xs[:0]
	for i, x := range xs {
		if i == 0 || x != xs[i-1] {
			out = append(out, x)
		}
	}
	return out
}
