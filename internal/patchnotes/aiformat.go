package patchnotes

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/models"
)

//go:embed guide.md
var formattingGuide string

const (
	formatterService   = "formatter"
	formatterMaxTokens = 4000

	formatterSystem = `You are a patch notes formatter. Format Discord patch notes according to the formatting guide provided. Return ONLY valid JSON with two fields: "discord" (Discord markdown format) and "html" (HTML div format).`
)

// Completer sends one completion request.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Formatted is the output of the AI formatter.
type Formatted struct {
	Discord    string            `json:"discord"`
	HTML       string            `json:"html"`
	Categories models.Categories `json:"-"`
}

// AIFormatter asks the language model to write the patch notes.
type AIFormatter struct {
	llm   Completer
	guide string
}

// NewAIFormatter creates an AIFormatter. An empty guide uses the built-in one.
func NewAIFormatter(c Completer, guide string) *AIFormatter {
	if strings.TrimSpace(guide) == "" {
		guide = formattingGuide
	}
	return &AIFormatter{llm: c, guide: guide}
}

// FormatterPrompt builds the user prompt for version and raw.
func FormatterPrompt(version, guide string, raw []models.RawNote) string {
	var notes strings.Builder
	for i, n := range raw {
		fmt.Fprintf(&notes, "%d. [%s] %s\n", i+1, n.Author, n.Content)
	}
	return fmt.Sprintf(`Format these patch notes for version %s according to the formatting guide:

%s

---

RAW PATCH NOTES:
%s
---

Return JSON with this exact structure:
{
  "discord": "**Category**\n- Note 1\n- Note 2\n\n**Next Category**\n- Note 3",
  "html": "<div class=\"patch-header2\">Category</div><div class=\"spacer-10\"></div><div class=\"patch-note\">- Note 1</div><div class=\"spacer-30\"></div>"
}

Important:
- Use Headline Case throughout
- Keep notes brief and concise
- Categorize properly (%s)
- Class names must be alphabetical in Class section
- Each change gets its own line
- Remove author names, timestamps, "reserve" text
- Fix typos (incomming -> Incoming, to high -> Too High)`,
		version, strings.TrimSpace(guide), notes.String(), strings.Join(CategoryOrder, ", "))
}

// Format sends the raw notes to the model and parses its JSON reply.
func (f *AIFormatter) Format(ctx context.Context, version string, raw []models.RawNote) (*Formatted, error) {
	resp, err := f.llm.Complete(llm.WithCommand(ctx, "patchnotes"), llm.Request{
		System:    formatterSystem,
		Messages:  []llm.Message{{Role: "user", Content: FormatterPrompt(version, f.guide, raw)}},
		MaxTokens: formatterMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return ParseFormatted(resp.Text)
}

var (
	codeFence  = regexp.MustCompile("```(?:json)?\\n?")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseFormatted extracts the {discord, html} object from a model reply,
// tolerating code fences and surrounding prose.
func ParseFormatted(text string) (*Formatted, error) {
	text = strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
	obj := jsonObject.FindString(text)
	if obj == "" {
		return nil, formatError("reply did not contain a JSON object")
	}
	var out Formatted
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, formatError("invalid JSON: " + err.Error())
	}
	if strings.TrimSpace(out.Discord) == "" {
		return nil, formatError("reply has no discord field")
	}
	out.Categories = Clean(ParseDiscord(out.Discord))
	return &out, nil
}

func formatError(msg string) error {
	return &apperr.UpstreamError{Service: formatterService, Code: "bad_format", Message: msg}
}
