package models

import "time"

// Draft statuses.
const (
	DraftStatusDraft     = "draft"
	DraftStatusPublished = "published"
)

// Attachment is image metadata captured from a chat message.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// RawNote is one collected message from the patch-notes channel.
type RawNote struct {
	Author      string       `json:"author"`
	AuthorID    string       `json:"authorId"`
	Content     string       `json:"content"`
	TimestampMs int64        `json:"timestamp"`
	MessageID   string       `json:"messageId"`
	Attachments []Attachment `json:"attachments"`
}

// HasImages reports whether the note carries at least one image attachment.
func (n RawNote) HasImages() bool {
	return len(n.Attachments) > 0
}

// DownloadedImage records an image saved under the drafts image directory.
type DownloadedImage struct {
	OriginalURL  string `json:"originalUrl"`
	LocalPath    string `json:"localPath"`
	Filename     string `json:"filename"`
	MessageID    string `json:"messageId"`
	AttachmentID string `json:"attachmentId"`
	NoteIndex    int    `json:"noteIndex"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
}

// Categories maps a category name to its ordered notes.
type Categories map[string][]string

// PatchDraft is an editable set of categorised notes for one version.
type PatchDraft struct {
	Version           string            `json:"version"`
	Categories        Categories        `json:"categories"`
	RawNotes          []RawNote         `json:"rawNotes"`
	ImageAssociations map[string][]int  `json:"imageAssociations"`
	DownloadedImages  []DownloadedImage `json:"downloadedImages,omitempty"`
	Discord           string            `json:"discord"`
	HTML              string            `json:"html"`
	Status            string            `json:"status"`
	Generated         time.Time         `json:"generated"`
	Updated           time.Time         `json:"updated"`
	PublishedAt       *time.Time        `json:"publishedAt,omitempty"`
	MessageCount      int               `json:"messageCount"`
	ImageCount        int               `json:"imageCount"`
	WithImages        bool              `json:"withImages"`
	AIFormatted       bool              `json:"aiFormatted,omitempty"`
}
