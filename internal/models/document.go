// Package models defines the domain types shared across lorekeeper packages.
package models

import "time"

// Document categories.
const (
	CategoryFAQ        = "faq"
	CategoryLore       = "lore"
	CategoryPhilosophy = "philosophy"
	CategoryGuides     = "guides"
	CategoryAlpha      = "alpha"
)

// Document priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Document is one knowledge-base entry. Optional fields are defaulted at load
// time, so consumers never need to nil-check them.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	SourceURL   string    `json:"source_url,omitempty"`
	Priority    string    `json:"priority"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// ScoredDocument pairs a document with its relevance for one question.
type ScoredDocument struct {
	Document Document `json:"document"`
	Score    int      `json:"score"`
}
