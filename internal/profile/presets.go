package profile

import (
	"fmt"
	"strings"

	"github.com/starford/lorekeeper/internal/models"
)

// DefaultMaxTokens is the context budget of the default profile.
const DefaultMaxTokens = 20000

// Default returns the locked-down profile: strict, cited, on-topic answers.
func Default() models.Profile {
	return models.Profile{
		Key:         DefaultKey,
		Name:        "Locked Down",
		Description: "Strict knowledge-base answers with FAQ citations and no speculation.",
		SystemPrompt: "You are a helpful FAQ assistant for the game. Answer only from the " +
			"knowledge base context provided. If the answer is not in the context, say so. " +
			"Cite the FAQ ids you used.",
		MaxTokens:      DefaultMaxTokens,
		ResponseLength: "concise",
		Personality:    "professional",
		CitationStyle:  models.CitationFAQID,
	}
}

// Presets returns the optional profiles written by the init subcommand.
func Presets() []models.Profile {
	return []models.Profile{
		{
			Key:         "casual",
			Name:        "Casual",
			Description: "Friendly tone with light conversation context.",
			SystemPrompt: "You are a friendly community helper for the game. Answer from the " +
				"knowledge base context, keep it conversational, and link sources when available.",
			MaxTokens:                  25000,
			ResponseLength:             "medium",
			Personality:                "friendly",
			AllowOffTopic:              true,
			CitationStyle:              models.CitationClickableURL,
			IncludeConversationContext: true,
		},
		{
			Key:         "creative",
			Name:        "Creative",
			Description: "Storyteller voice that may speculate about lore, clearly marked.",
			SystemPrompt: "You are a lore keeper for the game world. Answer from the knowledge " +
				"base context in an evocative voice. You may speculate, but mark speculation clearly.",
			MaxTokens:                  30000,
			ResponseLength:             "long",
			Personality:                "storyteller",
			AllowSpeculation:           true,
			CitationStyle:              models.CitationClickableURL,
			IncludeConversationContext: true,
		},
		{
			Key:         "technical",
			Name:        "Technical",
			Description: "Precise mechanics-focused answers with detailed citations.",
			SystemPrompt: "You are a precise game-mechanics reference. Answer from the knowledge " +
				"base context with exact numbers and rules, and cite every FAQ id used.",
			MaxTokens:      35000,
			ResponseLength: "detailed",
			Personality:    "analytical",
			CitationStyle:  models.CitationFAQID,
		},
	}
}

// Custom returns a new profile created from chat with the stock settings.
func Custom(key, description string) models.Profile {
	return models.Profile{
		Key:            key,
		Name:           key,
		Description:    description,
		SystemPrompt:   "You are a helpful assistant for the game. Answer from the knowledge base context provided.",
		MaxTokens:      DefaultMaxTokens,
		ResponseLength: "medium",
		Personality:    "friendly",
		CitationStyle:  models.CitationClickableURL,
	}
}

// SystemPrompt renders the profile's prompt plus behaviour guidance.
func SystemPrompt(p models.Profile) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.SystemPrompt))
	sb.WriteString("\n\n")
	if p.AllowSpeculation {
		sb.WriteString("- You may speculate beyond the context when clearly labelled as speculation.\n")
	} else {
		sb.WriteString("- Do not speculate beyond the provided context.\n")
	}
	if !p.AllowOffTopic {
		sb.WriteString("- Politely decline questions unrelated to the game.\n")
	}
	switch p.CitationStyle {
	case models.CitationClickableURL:
		sb.WriteString("- Cite sources as markdown links using the Source lines in the context.\n")
	default:
		sb.WriteString("- Cite sources by their [id] from the context.\n")
	}
	if p.ResponseLength != "" {
		fmt.Fprintf(&sb, "- Response length: %s.\n", p.ResponseLength)
	}
	if p.Personality != "" {
		fmt.Fprintf(&sb, "- Tone: %s.\n", p.Personality)
	}
	return strings.TrimRight(sb.String(), "\n")
}
