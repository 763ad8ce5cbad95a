package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/patchnotes"
)

// DiscordConfig holds the gateway credentials and channel ids.
type DiscordConfig struct {
	Token               string `yaml:"token"`
	BotUserID           string `yaml:"bot_user_id"`
	PatchNotesChannelID string `yaml:"patch_notes_channel_id"`
	MarkerAuthorID      string `yaml:"marker_author_id"`
	PublishChannelID    string `yaml:"publish_channel_id"`
}

// Validate implements validation.Validatable.
func (c *DiscordConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
	)
}

// Discord adapts a discordgo session to Transport.
type Discord struct {
	session      *discordgo.Session
	cfg          DiscordConfig
	adminRoleIDs []string
	logger       *slog.Logger
}

var (
	_ Transport                = (*Discord)(nil)
	_ Bumper                   = (*Discord)(nil)
	_ patchnotes.MessageSource = (*Discord)(nil)
)

// NewDiscord creates a session for cfg. The gateway is not opened until Run.
func NewDiscord(cfg DiscordConfig, adminRoleIDs []string, logger *slog.Logger) (*Discord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return &Discord{session: s, cfg: cfg, adminRoleIDs: adminRoleIDs, logger: logger}, nil
}

// Run opens the gateway, feeds every created message to handle and blocks
// until ctx is cancelled.
func (d *Discord) Run(ctx context.Context, handle func(context.Context, Message)) error {
	remove := d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		handle(ctx, toMessage(m.Message))
	})
	defer remove()

	d.session.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord: connected", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
	})
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord: open: %w", err)
	}
	<-ctx.Done()
	d.logger.Info("discord: closing session")
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("discord: close: %w", err)
	}
	return nil
}

func toMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.Author = m.Author.Username
		msg.IsBot = m.Author.Bot
		if m.Author.GlobalName != "" {
			msg.Author = m.Author.GlobalName
		}
	}
	return msg
}

func (d *Discord) Reply(ctx context.Context, msg Message, content string) error {
	ref := &discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID}
	_, err := d.session.ChannelMessageSendReply(msg.ChannelID, content, ref, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) ReplyEmbed(ctx context.Context, msg Message, e Embed) error {
	embed := &discordgo.MessageEmbed{
		Title:     e.Title,
		Color:     e.Color,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	_, err := d.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: &discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID},
	}, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Send(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Typing(ctx context.Context, channelID string) error {
	return d.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

func (d *Discord) History(ctx context.Context, channelID, before string, limit int) ([]Message, error) {
	msgs, err := d.session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: history: %w", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

// Messages implements patchnotes.MessageSource.
func (d *Discord) Messages(ctx context.Context, channelID, before string, limit int) ([]patchnotes.Message, error) {
	msgs, err := d.session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: messages: %w", err)
	}
	out := make([]patchnotes.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := patchnotes.Message{ID: m.ID, Content: m.Content, Timestamp: m.Timestamp}
		if m.Author != nil {
			pm.AuthorID, pm.Author = m.Author.ID, m.Author.Username
		}
		for _, a := range m.Attachments {
			pm.Attachments = append(pm.Attachments, models.Attachment{
				ID:          a.ID,
				URL:         a.URL,
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Size:        a.Size,
				Width:       a.Width,
				Height:      a.Height,
			})
		}
		out = append(out, pm)
	}
	return out, nil
}

// ForumThreads returns the active threads of the forum followed by its
// archived ones.
func (d *Discord) ForumThreads(ctx context.Context, forumID string) ([]Thread, error) {
	forum, err := d.session.Channel(forumID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: forum %s: %w", forumID, err)
	}
	if forum.Type != discordgo.ChannelTypeGuildForum {
		return nil, apperr.Input("channel %s is not a forum", forumID)
	}

	active, err := d.session.GuildThreadsActive(forum.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: active threads: %w", err)
	}
	var threads []Thread
	seen := make(map[string]bool)
	add := func(c *discordgo.Channel) {
		if c.ParentID != forumID || seen[c.ID] {
			return
		}
		seen[c.ID] = true
		threads = append(threads, Thread{ID: c.ID, Name: c.Name, GuildID: c.GuildID})
	}
	for _, c := range active.Threads {
		add(c)
	}

	var before *time.Time
	for {
		archived, err := d.session.ThreadsArchived(forumID, before, 100, discordgo.WithContext(ctx))
		if err != nil {
			d.logger.Warn("discord: archived threads unavailable", slog.String("forum_id", forumID), slog.String("error", err.Error()))
			break
		}
		for _, c := range archived.Threads {
			add(c)
		}
		if !archived.HasMore || len(archived.Threads) == 0 {
			break
		}
		last := archived.Threads[len(archived.Threads)-1]
		if last.ThreadMetadata == nil {
			break
		}
		ts := last.ThreadMetadata.ArchiveTimestamp
		before = &ts
	}
	return threads, nil
}

// ThreadMessages returns the thread's messages oldest first.
func (d *Discord) ThreadMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	msgs, err := d.History(ctx, threadID, "", limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Unarchive reopens an archived thread. It reports whether anything changed.
func (d *Discord) Unarchive(ctx context.Context, threadID string) (bool, error) {
	c, err := d.session.Channel(threadID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	if c.ThreadMetadata == nil || !c.ThreadMetadata.Archived {
		return false, nil
	}
	archived := false
	if _, err := d.session.ChannelEditComplex(threadID, &discordgo.ChannelEdit{Archived: &archived}, discordgo.WithContext(ctx)); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Discord) IsAdmin(ctx context.Context, msg Message) bool {
	if msg.GuildID == "" {
		return false
	}
	if len(d.adminRoleIDs) > 0 {
		member, err := d.session.GuildMember(msg.GuildID, msg.AuthorID, discordgo.WithContext(ctx))
		if err == nil && slices.ContainsFunc(member.Roles, func(r string) bool { return slices.Contains(d.adminRoleIDs, r) }) {
			return true
		}
	}
	perms, err := d.session.UserChannelPermissions(msg.AuthorID, msg.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Debug("discord: permission lookup failed", slog.String("user_id", msg.AuthorID), slog.String("error", err.Error()))
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// Publish posts content to the publish channel.
func (d *Discord) Publish(ctx context.Context, content string) error {
	if d.cfg.PublishChannelID == "" {
		return apperr.Input("no publish channel configured")
	}
	return d.Send(ctx, d.cfg.PublishChannelID, content)
}
