// Package quiz generates trivia questions from the knowledge base and runs
// one timed quiz per channel.
package quiz

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/starford/lorekeeper/internal/models"
)

// Template categories. General templates read every document.
const (
	CategoryLore       = models.CategoryLore
	CategoryPhilosophy = models.CategoryPhilosophy
	CategoryGeneral    = "general"
)

// Fact is what an extractor pulls out of a document: the expected answer,
// the answer as announced, and values for the question placeholders.
type Fact struct {
	Answer     string
	FullAnswer string
	Vars       map[string]string
}

// Template is a question pattern with "{name}" placeholders.
type Template struct {
	Category string
	Text     string
	Extract  func(doc models.Document, rng *rand.Rand) (Fact, bool)
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Render fills the placeholders of t from f. Unknown placeholders stay as they are.
func (t Template) Render(f Fact) string {
	return placeholder.ReplaceAllStringFunc(t.Text, func(m string) string {
		if v, ok := f.Vars[m[1:len(m)-1]]; ok && v != "" {
			return v
		}
		return m
	})
}

var (
	aspectPattern   = regexp.MustCompile(`(\w+) Aspect - Gods and Champions`)
	primeGodPattern = regexp.MustCompile(`- (\w+) the \w+ \(Prime God\)`)
	godTitlePattern = regexp.MustCompile(`- (\w+) the (\w+)`)
	championPattern = regexp.MustCompile(`- (\w+) the \w+ - Champion: (\w+)`)
)

const sixAspectsDocID = "six_aspects_overview"

func pick(rng *rand.Rand, matches [][]string) []string {
	return matches[rng.IntN(len(matches))]
}

// phrase returns an extractor for a fixed answer, keyed on a substring of the content.
func phrase(contains, answer, full string) func(models.Document, *rand.Rand) (Fact, bool) {
	return func(doc models.Document, _ *rand.Rand) (Fact, bool) {
		if !strings.Contains(doc.Content, contains) {
			return Fact{}, false
		}
		return Fact{Answer: answer, FullAnswer: full}, true
	}
}

// DefaultTemplates returns the built-in question set.
func DefaultTemplates() []Template {
	return []Template{
		{
			Category: CategoryLore,
			Text:     "Who is the Prime God of {aspect}?",
			Extract: func(doc models.Document, _ *rand.Rand) (Fact, bool) {
				aspect := aspectPattern.FindStringSubmatch(doc.Content)
				god := primeGodPattern.FindStringSubmatch(doc.Content)
				if aspect == nil || god == nil {
					return Fact{}, false
				}
				return Fact{Answer: god[1], FullAnswer: strings.TrimPrefix(god[0], "- "), Vars: map[string]string{"aspect": aspect[1]}}, true
			},
		},
		{
			Category: CategoryLore,
			Text:     "What is the title of {godName}?",
			Extract: func(doc models.Document, rng *rand.Rand) (Fact, bool) {
				all := godTitlePattern.FindAllStringSubmatch(doc.Content, -1)
				if len(all) == 0 {
					return Fact{}, false
				}
				m := pick(rng, all)
				return Fact{Answer: m[2], FullAnswer: strings.TrimPrefix(m[0], "- "), Vars: map[string]string{"godName": m[1]}}, true
			},
		},
		{
			Category: CategoryLore,
			Text:     "Who is the Champion of {godName}?",
			Extract: func(doc models.Document, rng *rand.Rand) (Fact, bool) {
				all := championPattern.FindAllStringSubmatch(doc.Content, -1)
				if len(all) == 0 {
					return Fact{}, false
				}
				m := pick(rng, all)
				return Fact{Answer: m[2], FullAnswer: strings.TrimPrefix(m[0], "- "), Vars: map[string]string{"godName": m[1]}}, true
			},
		},
		{
			Category: CategoryLore,
			Text:     "What are the six aspects in Adrullan?",
			Extract: func(doc models.Document, _ *rand.Rand) (Fact, bool) {
				if doc.ID != sixAspectsDocID {
					return Fact{}, false
				}
				return Fact{
					Answer:     "Fire, Water, Earth, Air, Light, Dark",
					FullAnswer: "The six aspects are Fire, Water, Earth, Air, Light, and Dark",
				}, true
			},
		},
		{
			Category: CategoryLore,
			Text:     "What is the name of the heretical wizard trying to create a 7th Aspect?",
			Extract:  phrase("Ludos", "Ludos", "Ludos the Unbound"),
		},
		{
			Category: CategoryPhilosophy,
			Text:     "What is the name of the central hub players reach around level 15?",
			Extract:  phrase("anatma", "Anatma's Point", "Anatma's Point (working name)"),
		},
		{
			Category: CategoryGeneral,
			Text:     "What type of world does Adrullan Online Adventures feature?",
			Extract:  phrase("voxel", "Voxel world", "A massive, seamless, voxel world"),
		},
		{
			Category: CategoryGeneral,
			Text:     "What's the name of the company behind Adrullan Online Adventures?",
			Extract:  phrase("hiddentree", "Hiddentree Entertainment Inc", "Hiddentree Entertainment Inc"),
		},
	}
}
