package bot

import (
	"context"
	"time"
)

// MaxMessageLen is the chat platform's message length limit.
const MaxMessageLen = 2000

// Message is an inbound chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Author    string
	Content   string
	IsBot     bool
	Timestamp time.Time
}

// EmbedField is one name/value row of an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich status card.
type Embed struct {
	Title  string
	Color  int
	Fields []EmbedField
	Footer string
}

// Embed colours.
const (
	ColorOK    = 0x00ff00
	ColorError = 0xff0000
	ColorInfo  = 0x0099ff
)

// Thread is a forum thread.
type Thread struct {
	ID      string
	Name    string
	GuildID string
}

// URL is the web link of the thread.
func (t Thread) URL() string {
	return "https://discord.com/channels/" + t.GuildID + "/" + t.ID
}

// Transport is the chat platform as seen by command handlers.
type Transport interface {
	// Reply answers msg. Content must fit one message.
	Reply(ctx context.Context, msg Message, content string) error
	// ReplyEmbed answers msg with a rich card.
	ReplyEmbed(ctx context.Context, msg Message, e Embed) error
	// Send posts content to a channel.
	Send(ctx context.Context, channelID, content string) error
	// Typing shows the typing indicator in a channel.
	Typing(ctx context.Context, channelID string) error
	// History returns up to limit messages older than before, newest first.
	History(ctx context.Context, channelID, before string, limit int) ([]Message, error)
	// ForumThreads lists the active and archived threads of a forum channel.
	ForumThreads(ctx context.Context, forumID string) ([]Thread, error)
	// ThreadMessages returns up to limit messages of a thread, oldest first.
	ThreadMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	// IsAdmin reports whether the author of msg holds an admin role or the
	// guild Administrator permission.
	IsAdmin(ctx context.Context, msg Message) bool
}
