package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/monitor"
	"github.com/starford/lorekeeper/internal/profile"
	"github.com/starford/lorekeeper/internal/quiz"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	adminID = "1"
	userID  = "2"
)

type fakeTransport struct {
	mu       sync.Mutex
	replies  []string
	sent     []string
	embeds   []Embed
	threads  []Thread
	messages map[string][]Message
	history  []Message
}

func (f *fakeTransport) Reply(_ context.Context, _ Message, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	return nil
}

func (f *fakeTransport) ReplyEmbed(_ context.Context, _ Message, e Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds = append(f.embeds, e)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, _ string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeTransport) Typing(context.Context, string) error { return nil }

func (f *fakeTransport) History(context.Context, string, string, int) ([]Message, error) {
	return f.history, nil
}

func (f *fakeTransport) ForumThreads(context.Context, string) ([]Thread, error) {
	return f.threads, nil
}

func (f *fakeTransport) ThreadMessages(_ context.Context, id string, _ int) ([]Message, error) {
	msgs, ok := f.messages[id]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return msgs, nil
}

func (f *fakeTransport) IsAdmin(context.Context, Message) bool { return false }

func (f *fakeTransport) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fakeLLM struct {
	mu             sync.Mutex
	contextPassing bool
	answer         string
	panicOnAsk     bool
	knowledge      []string
	fileCalls      int
	uploads        []string
	remote         []llm.RemoteFile
}

func (f *fakeLLM) Ask(_ context.Context, _, kb, _ string, _ int) (*llm.Response, error) {
	if f.panicOnAsk {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.knowledge = append(f.knowledge, kb)
	return &llm.Response{Text: f.answer}, nil
}

func (f *fakeLLM) AskWithFiles(context.Context, string, []string, string, int) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls++
	return &llm.Response{Text: f.answer}, nil
}

func (f *fakeLLM) ContextPassing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contextPassing
}

func (f *fakeLLM) SetContextPassing(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contextPassing = on
}

func (f *fakeLLM) UploadFile(_ context.Context, name string, _ []byte) (*llm.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	return &llm.RemoteFile{ID: "file_" + name, Filename: name}, nil
}

func (f *fakeLLM) ListFiles(context.Context) ([]llm.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, nil
}

func (f *fakeLLM) DeleteFile(context.Context, string) error { return nil }

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	bot       *Bot
	logs      *lockedBuffer
	transport *fakeTransport
	llm       *fakeLLM
	monitor   *monitor.Monitor
	profiles  *profile.Store
	files     *llm.FileCache
	knowledge *knowledge.Store
}

const knowledgeJSON = `[
	{"id": "death", "title": "Death Penalty", "content": "When you die you drop your corpse and lose experience.", "category": "faq", "priority": "high"},
	{"id": "ludos", "title": "The Heretic", "content": "Ludos seeks a seventh aspect.", "category": "lore"}
]`

func newHarness(t *testing.T) *harness {
	t.Helper()
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	dataFS, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := dataFS.Write("faq.json", []byte(knowledgeJSON)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	profileFS, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	profiles, err := profile.NewStore(profileFS, logger)
	if err != nil {
		t.Fatalf("profile.NewStore: %v", err)
	}
	cacheFS, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	files, err := llm.NewFileCache(cacheFS, "uploaded.json")
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	heretic := quiz.Template{
		Category: quiz.CategoryLore,
		Text:     "Who seeks a seventh aspect?",
		Extract: func(doc models.Document, _ *rand.Rand) (quiz.Fact, bool) {
			if !strings.Contains(doc.Content, "Ludos") {
				return quiz.Fact{}, false
			}
			return quiz.Fact{Answer: "Ludos", FullAnswer: "Ludos the Unbound"}, true
		},
	}

	h := &harness{
		logs:      logs,
		transport: &fakeTransport{},
		llm:       &fakeLLM{contextPassing: true, answer: "You lose experience."},
		monitor:   monitor.New(monitor.DefaultConfig(), logger),
		profiles:  profiles,
		files:     files,
		knowledge: knowledge.NewStore(dataFS, logger),
	}
	cfg := DefaultConfig()
	cfg.AdminUserIDs = []string{adminID}
	topics := knowledge.DefaultTopics()
	h.bot = New(cfg, Deps{
		Knowledge: h.knowledge,
		Scorer:    knowledge.NewScorer(topics),
		Builder:   knowledge.NewContextBuilder(topics),
		LLM:       h.llm,
		Files:     files,
		Profiles:  profiles,
		Limiter:   ratelimit.New(ratelimit.DefaultConfig()),
		Monitor:   h.monitor,
		Quizzes:   quiz.NewGenerator([]quiz.Template{heretic}, rand.New(rand.NewPCG(1, 2))),
	}, h.transport, logger)
	t.Cleanup(h.bot.Close)
	return h
}

func (h *harness) send(from, content string) {
	h.bot.Handle(context.Background(), Message{ID: "m", ChannelID: "c", AuthorID: from, Author: "tester", Content: content})
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want Command
	}{
		{in: "hello", ok: false},
		{in: "!", ok: false},
		{in: "!Ask  What is   death?", ok: true, want: Command{
			Name: "ask", Args: []string{"What", "is", "death?"}, Flags: map[string]bool{}, Text: "What is death?",
		}},
		{in: "!patchnotes --AI -withimages", ok: true, want: Command{
			Name: "patchnotes", Flags: map[string]bool{"ai": true, "with-images": true},
		}},
		{in: "!refreshfaq 123 --bump", ok: true, want: Command{
			Name: "refreshfaq", Args: []string{"123"}, Flags: map[string]bool{"bump": true}, Text: "123",
		}},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in, "!")
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if diff := cmp.Diff(tt.want, got); ok && diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestCommandRest(t *testing.T) {
	cmd, _ := Parse("!profile create mine A custom one", "!")
	if got := cmd.Rest(1); got != "A custom one" {
		t.Errorf("Rest(1) = %q", got)
	}
	if got := cmd.Rest(5); got != "" {
		t.Errorf("Rest(5) = %q, want empty", got)
	}
}

func TestHandle_IgnoresBotsAndUnknownCommands(t *testing.T) {
	h := newHarness(t)
	h.bot.Handle(context.Background(), Message{ChannelID: "c", AuthorID: "9", Content: "!help", IsBot: true})
	h.send(userID, "!nosuchcommand")
	h.send(userID, "just chatting")
	if len(h.transport.replies) != 0 {
		t.Errorf("replies = %q, want none", h.transport.replies)
	}
}

func TestHandle_AdminGate(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!askall what is death")
	if got := h.transport.lastReply(); got != msgAdminOnly {
		t.Errorf("reply = %q, want admin-only message", got)
	}
	if len(h.llm.knowledge) != 0 {
		t.Error("LLM called for a non-admin")
	}

	h.send(adminID, "!askall what is death")
	if len(h.llm.knowledge) != 1 || !strings.Contains(h.llm.knowledge[0], "Ludos") {
		t.Errorf("askall knowledge = %q, want the whole base", h.llm.knowledge)
	}
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!ask What is the death penalty?")

	want := "**Question:** What is the death penalty?\n\nYou lose experience."
	if got := h.transport.lastReply(); got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if len(h.llm.knowledge) != 1 || !strings.Contains(h.llm.knowledge[0], "Death Penalty") {
		t.Errorf("knowledge = %q", h.llm.knowledge)
	}
	if st := h.monitor.Status(); st.Messages != 1 || st.Commands["ask"] != 1 {
		t.Errorf("monitor = %+v", st)
	}
}

func TestAsk_NoInformation(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!ask xyzzy plugh")
	if got := h.transport.lastReply(); got != msgNoInformation {
		t.Errorf("reply = %q", got)
	}
}

func TestAsk_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!ask What is the death penalty?")
	h.send(userID, "!ask What is the death penalty?")
	if got := h.transport.lastReply(); !strings.HasPrefix(got, "⏰ **Rate Limited:**") {
		t.Errorf("reply = %q, want rate limit", got)
	}
	if len(h.llm.knowledge) != 1 {
		t.Errorf("LLM calls = %d, want 1", len(h.llm.knowledge))
	}
}

func TestAsk_FileMode(t *testing.T) {
	h := newHarness(t)
	if err := h.files.Put("faq.json", llm.CachedFile{FileID: "file_1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h.llm.SetContextPassing(false)
	h.send(userID, "!ask What is the death penalty?")
	if h.llm.fileCalls != 1 || len(h.llm.knowledge) != 0 {
		t.Errorf("fileCalls = %d, context calls = %d", h.llm.fileCalls, len(h.llm.knowledge))
	}
}

func TestAsk_ConversationContext(t *testing.T) {
	h := newHarness(t)
	on := true
	if _, err := h.profiles.Update(profile.DefaultKey, profile.Patch{IncludeConversationContext: &on}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	h.transport.history = []Message{
		{AuthorID: "bot", IsBot: true, Content: "You drop your corpse."},
		{AuthorID: userID, Content: "!ask what happens when I die"},
	}
	h.send(userID, "!ask What is the death penalty?")
	if len(h.llm.knowledge) != 1 {
		t.Fatalf("LLM calls = %d", len(h.llm.knowledge))
	}
	want := "RECENT CONVERSATION:\nUser: what happens when I die\nAssistant: You drop your corpse."
	if !strings.HasPrefix(h.llm.knowledge[0], want) {
		t.Errorf("knowledge does not start with the previous exchange:\n%s", h.llm.knowledge[0])
	}
}

func TestReply_ChunksLongAnswers(t *testing.T) {
	h := newHarness(t)
	line := strings.Repeat("a", 1200)
	h.llm.answer = line + "\n" + line + "\n" + strings.Repeat("b", 2500)
	h.send(userID, "!ask What is the death penalty?")

	if len(h.transport.replies) < 4 {
		t.Fatalf("replies = %d, want the answer split", len(h.transport.replies))
	}
	for i, r := range h.transport.replies {
		if n := utf8.RuneCountInString(r); n > DefaultConfig().ChunkSize {
			t.Errorf("reply %d has %d runes", i, n)
		}
	}
}

func TestHandle_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.llm.panicOnAsk = true
	h.send(userID, "!ask What is the death penalty?")
	if got := h.transport.lastReply(); !strings.HasPrefix(got, "Sorry") {
		t.Errorf("reply = %q, want a generic apology", got)
	}
	if st := h.monitor.Status(); st.Errors != 1 {
		t.Errorf("errors = %d, want 1", st.Errors)
	}
}

func TestQuiz(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!quiz")
	if got := h.transport.lastReply(); !strings.Contains(got, "Who seeks a seventh aspect?") {
		t.Fatalf("reply = %q", got)
	}
	h.send(adminID, "!quiz")
	if got := h.transport.lastReply(); !strings.Contains(got, "already active") {
		t.Errorf("reply = %q, want already active", got)
	}

	h.send(adminID, "is it morgoth?")
	h.send(userID, "I think it's LUDOS")
	got := h.transport.lastReply()
	if !strings.Contains(got, "CORRECT") || !strings.Contains(got, "**Attempts:** 2") {
		t.Errorf("reply = %q", got)
	}
	if _, ok := h.bot.quiz.Active("c"); ok {
		t.Error("quiz still active after a correct answer")
	}
}

func TestUploadData(t *testing.T) {
	h := newHarness(t)
	h.send(adminID, "!uploaddata toggle off")
	if h.llm.ContextPassing() {
		t.Error("context passing still on")
	}
	if got := h.transport.lastReply(); !strings.Contains(got, "File Usage") {
		t.Errorf("reply = %q", got)
	}

	h.send(adminID, "!uploaddata upload")
	if diff := cmp.Diff([]string{"faq.json"}, h.llm.uploads); diff != "" {
		t.Errorf("uploads mismatch (-want +got):\n%s", diff)
	}
	if f, ok := h.files.Get("faq.json"); !ok || f.FileID != "file_faq.json" {
		t.Errorf("cache = %+v, %v", f, ok)
	}
	if st := h.monitor.Status(); st.Uploads != 1 {
		t.Errorf("uploads = %d, want 1", st.Uploads)
	}

	h.send(adminID, "!uploaddata clear")
	if h.files.Len() != 0 {
		t.Errorf("cache len = %d after clear", h.files.Len())
	}
}

type failingCacheFS struct {
	storage.Provider
	fail bool
}

func (f *failingCacheFS) Write(path string, content []byte) error {
	if f.fail {
		return errors.New("read-only file system")
	}
	return f.Provider.Write(path, content)
}

func TestUploadData_DeleteAllLogsCacheFailure(t *testing.T) {
	h := newHarness(t)
	base, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	cacheFS := &failingCacheFS{Provider: base}
	files, err := llm.NewFileCache(cacheFS, "uploaded.json")
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	if err := files.Put("faq.json", llm.CachedFile{FileID: "file_a"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h.bot.deps.Files = files
	h.llm.remote = []llm.RemoteFile{{ID: "file_a", Filename: "faq.json"}}
	cacheFS.fail = true

	h.send(adminID, "!uploaddata deleteall")

	if got := h.transport.lastReply(); !strings.Contains(got, "Successfully deleted:** 1") {
		t.Errorf("reply = %q", got)
	}
	logs := h.logs.String()
	if !strings.Contains(logs, "file cache update failed") || !strings.Contains(logs, "file_a") || !strings.Contains(logs, "read-only file system") {
		t.Errorf("cache failure not logged:\n%s", logs)
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	h.send(adminID, "!profile init")
	h.send(userID, "!profile switch casual")
	if got := h.transport.lastReply(); got != msgAdminOnly {
		t.Errorf("reply = %q, want admin-only", got)
	}

	h.send(adminID, "!profile switch casual")
	if got := h.profiles.ActiveKey(); got != "casual" {
		t.Errorf("active = %q, want casual", got)
	}
	if st := h.monitor.Status(); st.ProfileSwitches != 1 {
		t.Errorf("profile switches = %d", st.ProfileSwitches)
	}

	h.send(userID, "!profile list")
	if got := h.transport.lastReply(); !strings.Contains(got, "🟢 **Casual** (casual)") {
		t.Errorf("list = %q", got)
	}

	h.send(adminID, "!profile create mine A custom profile")
	h.send(adminID, "!profile update mine maxtokens 30000")
	p, err := h.profiles.Get("mine")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.MaxTokens != 30000 || p.Description != "A custom profile" {
		t.Errorf("profile = %+v", p)
	}

	h.send(adminID, "!profile update mine maxtokens lots")
	if got := h.transport.lastReply(); !strings.Contains(got, "maxtokens must be a number") {
		t.Errorf("reply = %q", got)
	}
}

func TestMonitorEmbeds(t *testing.T) {
	h := newHarness(t)
	h.send(adminID, "!monitor status")
	h.send(adminID, "!monitor costs")
	if len(h.transport.embeds) != 2 {
		t.Fatalf("embeds = %d, want 2", len(h.transport.embeds))
	}
	if got := h.transport.embeds[0].Title; got != "🤖 Bot Status" {
		t.Errorf("title = %q", got)
	}
}

func TestRefreshFAQ(t *testing.T) {
	h := newHarness(t)
	h.transport.threads = []Thread{
		{ID: "10", Name: "How do I craft?", GuildID: "g"},
		{ID: "11", Name: "Broken thread", GuildID: "g"},
	}
	h.transport.messages = map[string][]Message{
		"10": {
			{Content: "Use a forge."},
			{Content: "bot noise", IsBot: true},
			{Content: "And ore."},
		},
	}
	h.send(adminID, "!refreshfaq 5")

	docs, err := h.knowledge.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	byID := make(map[string]models.Document)
	for _, d := range docs {
		byID[d.ID] = d
	}
	craft := byID["forum_10"]
	if craft.Content != "Use a forge.\n\nAnd ore." || craft.Priority != models.PriorityHigh || craft.SourceURL != "https://discord.com/channels/g/10" {
		t.Errorf("forum_10 = %+v", craft)
	}
	broken := byID["forum_11"]
	if broken.Content != "Forum thread: Broken thread" || broken.Priority != models.PriorityMedium {
		t.Errorf("forum_11 = %+v", broken)
	}
}

func TestIndexLines(t *testing.T) {
	threads := []Thread{{ID: "1", Name: "Crafting", GuildID: "g"}, {ID: "2", Name: "Races", GuildID: "g"}}
	tests := map[string][]string{
		"":         {"#Crafting", "#Races"},
		"markdown": {"- [Crafting](https://discord.com/channels/g/1)", "- [Races](https://discord.com/channels/g/2)"},
		"plain":    {"Crafting - https://discord.com/channels/g/1", "Races - https://discord.com/channels/g/2"},
		"numbered": {"1. [Crafting](https://discord.com/channels/g/1)", "2. [Races](https://discord.com/channels/g/2)"},
	}
	for style, want := range tests {
		if diff := cmp.Diff(want, IndexLines(threads, style)); diff != "" {
			t.Errorf("style %q mismatch (-want +got):\n%s", style, diff)
		}
	}
}

func TestHelp_HidesAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.send(userID, "!help")
	got := h.transport.lastReply()
	if strings.Contains(got, "askall") || !strings.Contains(got, "!ask <question>") {
		t.Errorf("help = %q", got)
	}
	h.send(adminID, "!help")
	if got := h.transport.lastReply(); !strings.Contains(got, "askall") {
		t.Errorf("admin help = %q", got)
	}
}
