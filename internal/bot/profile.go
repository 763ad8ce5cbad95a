package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/profile"
)

const profileHelp = "🤖 **Profile Management Commands** 🤖\n\n" +
	"**Usage:** `!profile <command> [options]`\n\n" +
	"`!profile list` - List all available profiles\n" +
	"`!profile current` - Show the currently active profile\n" +
	"`!profile switch <name>` - Switch to a different profile\n" +
	"`!profile info <name>` - Show detailed info about a profile\n" +
	"`!profile create <name> <description>` - Create a new profile\n" +
	"`!profile update <name> <field> <value>` - Change one field (name, description, prompt, maxtokens, length, personality, speculation, offtopic, citation, context)\n" +
	"`!profile delete <name>` - Delete a profile (cannot delete default)\n" +
	"`!profile context [on/off]` - Toggle conversation context for the current profile\n" +
	"`!profile init` - Initialize default profiles\n\n" +
	"**Note:** Profile changes affect all future !ask and !askall commands."

// profileMutations change shared state and need an administrator.
var profileMutations = map[string]bool{
	"switch": true, "set": true, "create": true, "update": true,
	"delete": true, "context": true, "conversation": true, "init": true,
}

func (b *Bot) profile(ctx context.Context, req *Request) error {
	sub := req.Cmd.Sub()
	if profileMutations[sub] && !b.isAdmin(ctx, req.Msg) {
		return b.reply(ctx, req.Msg, msgAdminOnly)
	}
	switch sub {
	case "list":
		return b.profileList(ctx, req)
	case "switch", "set":
		return b.profileSwitch(ctx, req, strings.ToLower(req.Cmd.Arg(1)))
	case "current", "active":
		return b.reply(ctx, req.Msg, "🎯 **Currently Active Profile** 🎯\n\n"+describeProfile(b.deps.Profiles.Active(), true))
	case "info":
		return b.profileInfo(ctx, req, strings.ToLower(req.Cmd.Arg(1)))
	case "create":
		return b.profileCreate(ctx, req)
	case "update":
		return b.profileUpdate(ctx, req)
	case "delete":
		return b.profileDelete(ctx, req, strings.ToLower(req.Cmd.Arg(1)))
	case "context", "conversation":
		return b.profileContext(ctx, req, strings.ToLower(req.Cmd.Arg(1)))
	case "init":
		created, err := b.deps.Profiles.InitDefaults()
		if err != nil {
			return err
		}
		if len(created) == 0 {
			return b.reply(ctx, req.Msg, "✅ Default profiles already exist.\n\nUse `!profile list` to see all available profiles.")
		}
		return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Initialized default profiles:** %s\n\nUse `!profile list` to see all available profiles.", strings.Join(created, ", ")))
	default:
		return b.reply(ctx, req.Msg, profileHelp)
	}
}

func (b *Bot) profileList(ctx context.Context, req *Request) error {
	profiles, err := b.deps.Profiles.List()
	if err != nil {
		return err
	}
	active := b.deps.Profiles.ActiveKey()
	var sb strings.Builder
	sb.WriteString("📋 **Available Profiles** 📋\n\n")
	for _, p := range profiles {
		if p.Key == active {
			fmt.Fprintf(&sb, "🟢 **%s** (%s) - *Currently Active*\n", p.Name, p.Key)
		} else {
			fmt.Fprintf(&sb, "⚪ **%s** (%s)\n", p.Name, p.Key)
		}
		fmt.Fprintf(&sb, "   %s\n\n", p.Description)
	}
	fmt.Fprintf(&sb, "**Current Active:** %s", b.deps.Profiles.Active().Name)
	return b.reply(ctx, req.Msg, sb.String())
}

func (b *Bot) profileSwitch(ctx context.Context, req *Request, key string) error {
	if key == "" {
		return b.reply(ctx, req.Msg, "❌ Please specify a profile name. Use `!profile list` to see available profiles.")
	}
	from := b.deps.Profiles.ActiveKey()
	p, err := b.deps.Profiles.Switch(key)
	if err != nil {
		return err
	}
	b.deps.Monitor.TrackProfileSwitch(from, key)
	return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Switched to profile:** %s\n\n%s\n\n*This will affect all future !ask and !askall commands.*", p.Name, p.Description))
}

func (b *Bot) profileInfo(ctx context.Context, req *Request, key string) error {
	if key == "" {
		return b.reply(ctx, req.Msg, "❌ Please specify a profile name. Use `!profile list` to see available profiles.")
	}
	p, err := b.deps.Profiles.Get(key)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📖 **Profile Information: %s** 📖\n\n%s", p.Name, describeProfile(p, false))
	if p.Key == b.deps.Profiles.ActiveKey() {
		text += "\n**Status:** 🟢 Currently Active"
	} else {
		text += fmt.Sprintf("\n**Status:** ⚪ Available\n\nUse `!profile switch %s` to activate this profile.", p.Key)
	}
	return b.reply(ctx, req.Msg, text)
}

func describeProfile(p models.Profile, preview bool) string {
	prompt := p.SystemPrompt
	if preview && len([]rune(prompt)) > 200 {
		prompt = string([]rune(prompt)[:200]) + "..."
	}
	return fmt.Sprintf("**Name:** %s\n**Description:** %s\n**Personality:** %s\n**Response Length:** %s\n**Max Tokens:** %d\n**Allow Speculation:** %s\n**Allow Off-Topic:** %s\n**Citation Style:** %s\n**Conversation Context:** %s\n\n**System Prompt:**\n```\n%s\n```",
		p.Name, p.Description, p.Personality, p.ResponseLength, p.MaxTokens,
		yesNo(p.AllowSpeculation), yesNo(p.AllowOffTopic), p.CitationStyle, yesNo(p.IncludeConversationContext), prompt)
}

func (b *Bot) profileCreate(ctx context.Context, req *Request) error {
	key := strings.ToLower(req.Cmd.Arg(1))
	description := req.Cmd.Rest(1)
	if key == "" || description == "" {
		return b.reply(ctx, req.Msg, "❌ Usage: `!profile create <name> <description>`\nExample: `!profile create myprofile A custom profile for testing`")
	}
	p, err := b.deps.Profiles.Create(profile.Custom(key, description))
	if err != nil {
		return err
	}
	return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Created profile:** %s\n\n%s\n\nUse `!profile switch %s` to activate it.", p.Name, p.Description, p.Key))
}

func (b *Bot) profileUpdate(ctx context.Context, req *Request) error {
	key := strings.ToLower(req.Cmd.Arg(1))
	field := strings.ToLower(req.Cmd.Arg(2))
	value := req.Cmd.Rest(2)
	if key == "" || field == "" || value == "" {
		return b.reply(ctx, req.Msg, "❌ Usage: `!profile update <name> <field> <value>`\nExample: `!profile update casual maxtokens 30000`")
	}
	patch, err := profilePatch(field, value)
	if err != nil {
		return err
	}
	p, err := b.deps.Profiles.Update(key, patch)
	if err != nil {
		return err
	}
	return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Updated profile:** %s (%s)", p.Name, field))
}

func profilePatch(field, value string) (profile.Patch, error) {
	var patch profile.Patch
	switch field {
	case "name":
		patch.Name = &value
	case "description":
		patch.Description = &value
	case "prompt", "systemprompt":
		patch.SystemPrompt = &value
	case "length", "responselength":
		patch.ResponseLength = &value
	case "personality":
		patch.Personality = &value
	case "citation", "citationstyle":
		patch.CitationStyle = &value
	case "maxtokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return patch, apperr.Input("maxtokens must be a number")
		}
		patch.MaxTokens = &n
	case "speculation", "offtopic", "context":
		on, ok := parseSwitch(value)
		if !ok {
			return patch, apperr.Input("%s must be on or off", field)
		}
		switch field {
		case "speculation":
			patch.AllowSpeculation = &on
		case "offtopic":
			patch.AllowOffTopic = &on
		default:
			patch.IncludeConversationContext = &on
		}
	default:
		return patch, apperr.Input("unknown profile field %q", field)
	}
	return patch, nil
}

// parseSwitch reads on/off style values.
func parseSwitch(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "on", "true", "enable", "yes":
		return true, true
	case "off", "false", "disable", "no":
		return false, true
	}
	return false, false
}

func (b *Bot) profileDelete(ctx context.Context, req *Request, key string) error {
	if key == "" {
		return b.reply(ctx, req.Msg, "❌ Usage: `!profile delete <name>`\nExample: `!profile delete myprofile`")
	}
	if err := b.deps.Profiles.Delete(key); err != nil {
		return err
	}
	return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Deleted profile:** %s", key))
}

func (b *Bot) profileContext(ctx context.Context, req *Request, action string) error {
	active := b.deps.Profiles.Active()
	if action == "" {
		status := "disabled"
		if active.IncludeConversationContext {
			status = "enabled"
		}
		return b.reply(ctx, req.Msg, fmt.Sprintf("📝 **Conversation Context:** %s\n\nUse `!profile context on/off` to toggle.", status))
	}
	on, ok := parseSwitch(action)
	if !ok {
		return b.reply(ctx, req.Msg, "Usage: `!profile context on/off`")
	}
	if _, err := b.deps.Profiles.Update(active.Key, profile.Patch{IncludeConversationContext: &on}); err != nil {
		return err
	}
	status := "disabled"
	if on {
		status = "enabled"
	}
	return b.reply(ctx, req.Msg, fmt.Sprintf("✅ **Conversation Context %s** for profile: %s\n\nThis will include the last bot reply and user question as context for new questions.", status, active.Key))
}
