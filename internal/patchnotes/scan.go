// Package patchnotes turns the developer posts of a patch-notes channel into
// categorised, editable drafts.
package patchnotes

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/textutil"
)

// PageSize is the number of messages requested per history page.
const PageSize = 100

var (
	markerPattern  = regexp.MustCompile(`(?i)^(patch\s+|version\s+)?\d+\.\d+\.\d+`)
	versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// IsVersionMarker reports whether text, once markdown is stripped, starts
// with a version number.
func IsVersionMarker(text string) bool {
	return markerPattern.MatchString(textutil.StripMarkdown(text))
}

// ExtractVersion returns the first x.y.z version in text, or "".
func ExtractVersion(text string) string {
	return versionPattern.FindString(textutil.StripMarkdown(text))
}

// Message is a chat message as seen by the scanner.
type Message struct {
	ID          string
	AuthorID    string
	Author      string
	Content     string
	Timestamp   time.Time
	Attachments []models.Attachment
}

// MessageSource pages through a channel's history.
type MessageSource interface {
	// Messages returns up to limit messages older than the message before,
	// newest first. An empty before starts at the newest message.
	Messages(ctx context.Context, channelID, before string, limit int) ([]Message, error)
}

// ScanState tracks the progress of a marker scan.
type ScanState int

const (
	ScanningBackward ScanState = iota
	FoundMarker
	Done
)

func (s ScanState) String() string {
	switch s {
	case ScanningBackward:
		return "scanning_backward"
	case FoundMarker:
		return "found_marker"
	default:
		return "done"
	}
}

// ScanResult holds the marker and everything posted after it, oldest first.
type ScanResult struct {
	Marker  Message
	Version string
	After   []Message
	Pages   int
}

// Scanner finds the latest version marker in a channel.
type Scanner struct {
	src            MessageSource
	channelID      string
	markerAuthorID string
	pageSize       int
}

// NewScanner creates a Scanner. Only messages by markerAuthorID count as markers.
func NewScanner(src MessageSource, channelID, markerAuthorID string) *Scanner {
	return &Scanner{src: src, channelID: channelID, markerAuthorID: markerAuthorID, pageSize: PageSize}
}

// Scan pages backward from the newest message until it meets a version
// marker. Messages seen on the way are the ones posted after the marker.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	var (
		state  = ScanningBackward
		before string
		newer  []Message
		res    ScanResult
	)

	for state != Done {
		switch state {
		case ScanningBackward:
			page, err := s.src.Messages(ctx, s.channelID, before, s.pageSize)
			if err != nil {
				return nil, fmt.Errorf("patchnotes: fetch history: %w", err)
			}
			res.Pages++
			if len(page) == 0 {
				return nil, apperr.ErrNoVersionMarker
			}
			for _, m := range page {
				if m.AuthorID == s.markerAuthorID && IsVersionMarker(m.Content) {
					res.Marker = m
					state = FoundMarker
					break
				}
				newer = append(newer, m)
			}
			before = page[len(page)-1].ID
			if state == ScanningBackward && len(page) < s.pageSize {
				return nil, apperr.ErrNoVersionMarker
			}

		case FoundMarker:
			res.Version = ExtractVersion(res.Marker.Content)
			res.After = make([]Message, 0, len(newer))
			for i := len(newer) - 1; i >= 0; i-- {
				if newer[i].Timestamp.After(res.Marker.Timestamp) {
					res.After = append(res.After, newer[i])
				}
			}
			state = Done
		}
	}
	return &res, nil
}

// CollectOptions filters collected messages.
type CollectOptions struct {
	BotUserID     string
	CommandPrefix string
}

// Collect converts chronological messages into raw notes, dropping the bot's
// own posts, commands, "reserve" placeholders, version markers and empty
// messages. Only image attachments are kept.
func Collect(msgs []Message, opts CollectOptions) []models.RawNote {
	var out []models.RawNote
	for _, m := range msgs {
		if opts.BotUserID != "" && m.AuthorID == opts.BotUserID {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if opts.CommandPrefix != "" && strings.HasPrefix(content, opts.CommandPrefix) {
			continue
		}
		if strings.EqualFold(content, "reserve") || IsVersionMarker(content) {
			continue
		}
		if content == "" && len(m.Attachments) == 0 {
			continue
		}

		note := models.RawNote{
			Author:      m.Author,
			AuthorID:    m.AuthorID,
			Content:     content,
			TimestampMs: m.Timestamp.UnixMilli(),
			MessageID:   m.ID,
			Attachments: []models.Attachment{},
		}
		for _, a := range m.Attachments {
			if strings.HasPrefix(a.ContentType, "image/") {
				note.Attachments = append(note.Attachments, a)
			}
		}
		out = append(out, note)
	}
	return out
}
