package knowledge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/starford/lorekeeper/internal/models"
)

func TestClassify(t *testing.T) {
	b := NewContextBuilder(DefaultTopics())
	cases := []struct {
		question string
		want     QuestionClass
	}{
		{"What is the story of the six gods?", ClassStory},
		{"How does crafting work in the early levels?", ClassGameplay},
		{"What was the design vision behind the world map?", ClassStory}, // story wins over philosophy
		{"What inspired the design direction of the team?", ClassPhilosophy},
		{"release date?", ClassSimple},
		{"Tell me about the community events planned this year", ClassGeneral},
	}
	for _, tc := range cases {
		if got := b.Classify(tc.question); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.question, got, tc.want)
		}
	}
}

func TestBuild_SmallDocsNoTruncation(t *testing.T) {
	body := strings.Repeat("Crafting requires a station and materials. ", 4) // ~170 chars
	docs := []models.Document{
		doc("faq1", "Crafting", body, models.CategoryFAQ),
		doc("guide1", "Workbenches", body, models.CategoryGuides),
		doc("lore1", "Smiths of Old", body, models.CategoryLore),
	}

	out := NewContextBuilder(DefaultTopics()).Build("How does crafting work?", docs, 20000)

	for _, id := range []string{"[faq1]", "[guide1]", "[lore1]"} {
		if !strings.Contains(out, id) {
			t.Errorf("output missing %s", id)
		}
	}
	if n := strings.Count(out, Separator); n != 2 {
		t.Errorf("separator count = %d, want 2", n)
	}
	if strings.Contains(out, TruncationMarker) {
		t.Error("unexpected truncation marker")
	}
}

func TestBuild_TruncatesLastBlockWithinBudget(t *testing.T) {
	body := strings.Repeat("x", 2000)
	docs := []models.Document{
		doc("one", "One", body, models.CategoryFAQ),
		doc("two", "Two", body, models.CategoryFAQ),
		doc("three", "Three", body, models.CategoryFAQ),
	}
	budget := 700 // 2800 chars: block one fits, ~760 chars remain for block two

	out := NewContextBuilder(DefaultTopics()).Build("anything at all goes here ok", docs, budget)

	if len(out) > budget*CharsPerToken {
		t.Errorf("len = %d exceeds %d", len(out), budget*CharsPerToken)
	}
	if !strings.HasSuffix(out, TruncationMarker) {
		t.Error("expected truncated final block")
	}
	if !strings.Contains(out, "[two]") || strings.Contains(out, "[three]") {
		t.Error("expected block two truncated and block three omitted")
	}
}

func TestBuild_SkipsTinyRemainder(t *testing.T) {
	body := strings.Repeat("y", 1000)
	docs := []models.Document{
		doc("one", "One", body, models.CategoryFAQ),
		doc("two", "Two", body, models.CategoryFAQ),
	}
	// ~1030 chars for block one leaves < 100 tokens of room
	out := NewContextBuilder(DefaultTopics()).Build("anything at all goes here ok", docs, 300)
	if strings.Contains(out, TruncationMarker) || strings.Contains(out, "[two]") {
		t.Errorf("remainder below threshold should be dropped, got %d chars", len(out))
	}
	if !strings.Contains(out, "[one]") {
		t.Error("first block should be present")
	}
}

func TestBuild_BudgetBoundProperty(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 30; i++ {
		docs = append(docs, doc(fmt.Sprintf("d%d", i), "Title", strings.Repeat("z", 50+i*37), models.CategoryFAQ))
	}
	b := NewContextBuilder(DefaultTopics())
	for _, budget := range []int{1, 50, 120, 333, 1000, 5000} {
		out := b.Build("general question about everything", docs, budget)
		if len(out) > budget*CharsPerToken {
			t.Errorf("budget %d: len %d exceeds %d", budget, len(out), budget*CharsPerToken)
		}
	}
}

func TestBuild_DeduplicatesByID(t *testing.T) {
	docs := []models.Document{
		doc("dup", "Shared", "first copy", models.CategoryFAQ),
		doc("dup", "Shared", "second copy", models.CategoryPhilosophy),
		doc("other", "Other", "text", models.CategoryLore),
	}
	out := NewContextBuilder(DefaultTopics()).Build("general question about everything", docs, 20000)
	if n := strings.Count(out, "[dup] "); n != 1 {
		t.Errorf("[dup] appears %d times, want 1", n)
	}
	if strings.Contains(out, "second copy") {
		t.Error("first-seen copy should win")
	}

	all := NewContextBuilder(DefaultTopics()).BuildAll(docs)
	if n := strings.Count(all, "[dup] "); n != 1 {
		t.Errorf("BuildAll: [dup] appears %d times, want 1", n)
	}
}

func TestCandidates_StoryOrderAndCaps(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 7; i++ {
		docs = append(docs, doc(fmt.Sprintf("faq%d", i), "F", "f", models.CategoryFAQ))
	}
	docs = append(docs,
		doc("phil", "P", "p", models.CategoryPhilosophy),
		doc("lore", "L", "l", models.CategoryLore),
		doc("guide", "G", "g", models.CategoryGuides),
	)

	got := NewContextBuilder(DefaultTopics()).Candidates(ClassStory, docs)
	var ids []string
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	want := "lore,phil,faq0,faq1,faq2,faq3,faq4"
	if strings.Join(ids, ",") != want {
		t.Errorf("story candidates = %s, want %s", strings.Join(ids, ","), want)
	}
}

func TestCandidates_GameplayMergesFAQAndAlpha(t *testing.T) {
	docs := []models.Document{
		doc("lore", "L", "l", models.CategoryLore),
		doc("alpha", "A", "a", models.CategoryAlpha),
		doc("guide", "G", "g", models.CategoryGuides),
		doc("faq", "F", "f", models.CategoryFAQ),
		doc("phil", "P", "p", models.CategoryPhilosophy),
	}
	got := NewContextBuilder(DefaultTopics()).Candidates(ClassGameplay, docs)
	var ids []string
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	want := "alpha,faq,guide,phil,lore"
	if strings.Join(ids, ",") != want {
		t.Errorf("gameplay candidates = %s, want %s", strings.Join(ids, ","), want)
	}
}

func TestCandidates_SimpleStartsWithHighPriority(t *testing.T) {
	high := doc("hot", "H", "h", models.CategoryGuides)
	high.Priority = models.PriorityHigh
	docs := []models.Document{
		doc("faq", "F", "f", models.CategoryFAQ),
		high,
	}
	got := NewContextBuilder(DefaultTopics()).Candidates(ClassSimple, docs)
	if len(got) != 2 || got[0].ID != "hot" {
		t.Errorf("simple candidates = %+v, want high-priority first", got)
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	b := NewContextBuilder(DefaultTopics())
	if out := b.Build("anything", nil, 1000); out != "" {
		t.Errorf("expected empty context, got %q", out)
	}
}

func TestRenderBlock(t *testing.T) {
	d := doc("faq_1", "Mounts", "Mounts unlock at level 20.", models.CategoryFAQ)
	if got := RenderBlock(d); got != "[faq_1] Mounts\nMounts unlock at level 20.\nSource: Mounts" {
		t.Errorf("plain block = %q", got)
	}
	d.SourceURL = "https://forum.example/t/1"
	if got := RenderBlock(d); !strings.HasSuffix(got, "Source: [Mounts](https://forum.example/t/1)") {
		t.Errorf("linked block = %q", got)
	}
}

func TestRank(t *testing.T) {
	docs := []models.Document{
		doc("a", "A", "a", models.CategoryFAQ),
		doc("b", "B", "b", models.CategoryFAQ),
		doc("c", "C", "c", models.CategoryFAQ),
	}
	ranked := []models.ScoredDocument{{Document: docs[2], Score: 5}}
	got := Rank(ranked, docs)
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Errorf("Rank = %+v", got)
	}
}
