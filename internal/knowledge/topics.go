package knowledge

import "github.com/starford/lorekeeper/internal/textutil"

// Topics is the keyword configuration shared by the relevance scorer and the
// question classifier, so the two never drift apart.
type Topics struct {
	Story          []string `yaml:"story"`
	Gameplay       []string `yaml:"gameplay"`
	Philosophy     []string `yaml:"philosophy"`
	NarrativeTags  []string `yaml:"narrative_tags"`
	AnchorIDs      []string `yaml:"anchor_ids"`
	SimpleMaxChars int      `yaml:"simple_max_chars"`
}

// DefaultTopics returns the built-in keyword table.
func DefaultTopics() Topics {
	return Topics{
		Story: []string{
			"story", "lore", "history", "narrative", "world", "legend", "legends",
			"myth", "myths", "origin", "origins", "god", "gods", "goddess",
			"aspect", "aspects", "champion", "champions", "pantheon", "prophecy",
		},
		Gameplay: []string{
			"how", "class", "classes", "combat", "craft", "crafting", "level", "leveling",
			"skill", "skills", "quest", "quests", "item", "items", "death", "penalty",
			"mechanic", "mechanics", "play", "build", "gear", "spell", "spells",
			"raid", "dungeon", "dungeons", "pvp", "guild", "guilds", "alpha", "beta",
			"server", "servers", "group", "race", "races",
		},
		Philosophy: []string{
			"philosophy", "design", "vision", "goal", "goals", "why", "inspiration",
			"inspired", "approach", "pillar", "pillars", "intent", "values",
		},
		NarrativeTags:  []string{"lore", "story", "history", "gods", "aspects", "mythology", "world"},
		AnchorIDs:      []string{"six_aspects_overview", "world_overview"},
		SimpleMaxChars: 30,
	}
}

type topicSets struct {
	story, gameplay, philosophy map[string]struct{}
	narrativeTags               map[string]struct{}
	anchors                     map[string]struct{}
	simpleMaxChars              int
}

func (t Topics) compile() topicSets {
	limit := t.SimpleMaxChars
	if limit <= 0 {
		limit = DefaultTopics().SimpleMaxChars
	}
	return topicSets{
		story:          textutil.Set(t.Story...),
		gameplay:       textutil.Set(t.Gameplay...),
		philosophy:     textutil.Set(t.Philosophy...),
		narrativeTags:  textutil.Set(t.NarrativeTags...),
		anchors:        setExact(t.AnchorIDs),
		simpleMaxChars: limit,
	}
}

// document ids are case-sensitive
func setExact(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
