package knowledge

import (
	"sort"
	"strings"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

// Score weights.
const (
	PhraseBonus         = 10
	KeywordBonus        = 1
	TitleBonus          = 5
	LoreBoost           = 5
	NarrativeTagBoost   = 3
	AnchorBoost         = 2
	GamePhilosophyBoost = 2

	// MinTitleMatchLen is the shortest title that counts when quoted in a question.
	MinTitleMatchLen = 4
)

// Scorer ranks documents against a question with substring heuristics.
// It is intended for corpora of a few hundred short documents.
type Scorer struct {
	sets topicSets
}

// NewScorer creates a Scorer using the given topic table.
func NewScorer(t Topics) *Scorer {
	return &Scorer{sets: t.compile()}
}

// Score returns the documents with a positive score, highest first.
// Ties keep the input order. It never fails; no match yields an empty slice.
func (s *Scorer) Score(question string, docs []models.Document) []models.ScoredDocument {
	query := strings.ToLower(strings.TrimSpace(question))
	if query == "" {
		return nil
	}
	keywords := textutil.Keywords(query, 2, nil)
	narrative := textutil.HasToken(query, s.sets.story)
	game := textutil.HasToken(query, textutil.Set("game"))

	var out []models.ScoredDocument
	for _, doc := range docs {
		score := s.base(query, keywords, doc)

		if narrative {
			if doc.Category == models.CategoryLore {
				score += LoreBoost
			}
			if s.hasNarrativeTag(doc) {
				score += NarrativeTagBoost
			}
			if _, ok := s.sets.anchors[doc.ID]; ok {
				score += AnchorBoost
			}
		}
		if game && doc.Category == models.CategoryPhilosophy {
			score += GamePhilosophyBoost
		}

		if score > 0 {
			out = append(out, models.ScoredDocument{Document: doc, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (s *Scorer) base(query string, keywords []string, doc models.Document) int {
	haystack := Haystack(doc)
	title := strings.ToLower(strings.TrimSpace(doc.Title))
	// a question quoting a document title counts as a phrase hit
	titleInQuery := len(title) >= MinTitleMatchLen && strings.Contains(query, title)

	score := 0
	if strings.Contains(haystack, query) || titleInQuery {
		score += PhraseBonus
	}
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			score += KeywordBonus
		}
	}
	if strings.Contains(title, query) || titleInQuery {
		score += TitleBonus
	}
	return score
}

func (s *Scorer) hasNarrativeTag(doc models.Document) bool {
	for _, tag := range doc.Tags {
		if _, ok := s.sets.narrativeTags[strings.ToLower(tag)]; ok {
			return true
		}
	}
	return false
}

// Haystack is the lowercased text a document is matched against.
func Haystack(doc models.Document) string {
	return strings.ToLower(doc.Title + " " + doc.Content + " " + strings.Join(doc.Tags, " "))
}

// Search scores docs and returns at most limit results (all when limit <= 0).
func (s *Scorer) Search(question string, docs []models.Document, limit int) []models.ScoredDocument {
	ranked := s.Score(question, docs)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
