package knowledge

import (
	"strings"
	"unicode/utf8"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

// QuestionClass selects which document categories feed the context.
type QuestionClass string

const (
	ClassStory      QuestionClass = "story"
	ClassGameplay   QuestionClass = "gameplay"
	ClassPhilosophy QuestionClass = "philosophy"
	ClassSimple     QuestionClass = "simple"
	ClassGeneral    QuestionClass = "general"
)

const (
	// Separator joins rendered document blocks.
	Separator = "\n\n---\n\n"
	// TruncationMarker ends a block that was cut to fit the budget.
	TruncationMarker = "…[truncated]"
	// CharsPerToken is the rough characters-per-token estimate.
	CharsPerToken = 4
	// MinUsefulTokens is the smallest remainder worth filling with a truncated block.
	MinUsefulTokens = 100
)

// ContextBuilder assembles prompt context from knowledge documents.
type ContextBuilder struct {
	sets topicSets
}

// NewContextBuilder creates a ContextBuilder using the given topic table.
func NewContextBuilder(t Topics) *ContextBuilder {
	return &ContextBuilder{sets: t.compile()}
}

// Classify assigns question to the first matching class in the order
// story, gameplay, philosophy, simple, general.
func (b *ContextBuilder) Classify(question string) QuestionClass {
	switch {
	case textutil.HasToken(question, b.sets.story):
		return ClassStory
	case textutil.HasToken(question, b.sets.gameplay):
		return ClassGameplay
	case textutil.HasToken(question, b.sets.philosophy):
		return ClassPhilosophy
	case utf8.RuneCountInString(strings.TrimSpace(question)) < b.sets.simpleMaxChars:
		return ClassSimple
	default:
		return ClassGeneral
	}
}

// Candidates returns the class-specific document selection, de-duplicated by id.
func (b *ContextBuilder) Candidates(class QuestionClass, docs []models.Document) []models.Document {
	var slices [][]models.Document
	switch class {
	case ClassStory:
		slices = [][]models.Document{
			byCategory(docs, 0, models.CategoryLore),
			byCategory(docs, 0, models.CategoryPhilosophy),
			byCategory(docs, 5, models.CategoryFAQ),
		}
	case ClassGameplay:
		slices = [][]models.Document{
			byCategory(docs, 0, models.CategoryFAQ, models.CategoryAlpha),
			byCategory(docs, 0, models.CategoryGuides),
			byCategory(docs, 0, models.CategoryPhilosophy),
			byCategory(docs, 10, models.CategoryLore),
		}
	case ClassPhilosophy:
		slices = [][]models.Document{
			byCategory(docs, 0, models.CategoryPhilosophy),
			byCategory(docs, 5, models.CategoryLore),
			byCategory(docs, 5, models.CategoryFAQ),
		}
	case ClassSimple:
		slices = [][]models.Document{
			byPriority(docs, models.PriorityHigh),
			byCategory(docs, 10, models.CategoryFAQ),
			byCategory(docs, 5, models.CategoryPhilosophy),
			byCategory(docs, 5, models.CategoryLore),
		}
	default:
		slices = [][]models.Document{
			byCategory(docs, 20, models.CategoryFAQ),
			byCategory(docs, 10, models.CategoryPhilosophy),
			byCategory(docs, 8, models.CategoryLore),
			byCategory(docs, 5, models.CategoryGuides),
		}
	}

	var all []models.Document
	for _, s := range slices {
		all = append(all, s...)
	}
	return Dedupe(all)
}

// Build classifies question, selects candidates and packs them into at most
// tokenBudget estimated tokens. An empty result means no context is available.
func (b *ContextBuilder) Build(question string, docs []models.Document, tokenBudget int) string {
	if tokenBudget <= 0 || len(docs) == 0 {
		return ""
	}
	candidates := b.Candidates(b.Classify(question), docs)
	return pack(renderAll(candidates), tokenBudget)
}

// BuildAll renders every de-duplicated document with no budget.
// Only privileged callers should use it.
func (b *ContextBuilder) BuildAll(docs []models.Document) string {
	return strings.Join(renderAll(Dedupe(docs)), Separator)
}

// RenderBlock formats one document as a context block.
func RenderBlock(doc models.Document) string {
	source := doc.Title
	if doc.SourceURL != "" {
		source = "[" + doc.Title + "](" + doc.SourceURL + ")"
	}
	return "[" + doc.ID + "] " + doc.Title + "\n" + doc.Content + "\nSource: " + source
}

func renderAll(docs []models.Document) []string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, RenderBlock(d))
	}
	return blocks
}

// pack greedily appends blocks while the estimate stays within budget.
func pack(blocks []string, tokenBudget int) string {
	maxChars := tokenBudget * CharsPerToken
	var sb strings.Builder
	for _, block := range blocks {
		sep := ""
		if sb.Len() > 0 {
			sep = Separator
		}
		if sb.Len()+len(sep)+len(block) <= maxChars {
			sb.WriteString(sep)
			sb.WriteString(block)
			continue
		}

		remaining := maxChars - sb.Len() - len(sep)
		if remaining/CharsPerToken > MinUsefulTokens {
			sb.WriteString(sep)
			sb.WriteString(textutil.Prefix(block, remaining-len(TruncationMarker)))
			sb.WriteString(TruncationMarker)
		}
		break
	}
	return sb.String()
}

// Dedupe drops documents whose id was already seen, keeping first-seen order.
func Dedupe(docs []models.Document) []models.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

// byCategory returns docs in any of categories, capped at limit (0 = no cap).
func byCategory(docs []models.Document, limit int, categories ...string) []models.Document {
	var out []models.Document
	for _, d := range docs {
		for _, c := range categories {
			if d.Category == c {
				out = append(out, d)
				break
			}
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func byPriority(docs []models.Document, priority string) []models.Document {
	var out []models.Document
	for _, d := range docs {
		if d.Priority == priority {
			out = append(out, d)
		}
	}
	return out
}

// Rank orders docs for context selection: scored documents first, highest
// score first, followed by the remaining documents in their original order.
func Rank(ranked []models.ScoredDocument, docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	seen := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Document)
		seen[r.Document.ID] = struct{}{}
	}
	for _, d := range docs {
		if _, ok := seen[d.ID]; !ok {
			out = append(out, d)
		}
	}
	return out
}
