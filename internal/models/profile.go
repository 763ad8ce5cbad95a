package models

// Citation styles.
const (
	CitationFAQID        = "faq-id"
	CitationClickableURL = "clickable-url"
)

// Profile is a named system-prompt/behaviour configuration.
// Values are treated as immutable; switching profiles swaps a whole value.
type Profile struct {
	Key                        string `json:"-"`
	Name                       string `json:"name"`
	Description                string `json:"description"`
	SystemPrompt               string `json:"systemPrompt"`
	MaxTokens                  int    `json:"maxTokens"`
	ResponseLength             string `json:"responseLength,omitempty"`
	Personality                string `json:"personality,omitempty"`
	AllowSpeculation           bool   `json:"allowSpeculation"`
	AllowOffTopic              bool   `json:"allowOffTopic"`
	CitationStyle              string `json:"citationStyle"`
	IncludeConversationContext bool   `json:"includeConversationContext"`
}
