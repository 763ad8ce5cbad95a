package patchnotes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
)

// Options controls one assembly run.
type Options struct {
	WithImages bool
	UseAI      bool
	// Progress, when set, receives short status lines for the chat user.
	Progress func(string)
}

func (o Options) progress(msg string) {
	if o.Progress != nil {
		o.Progress(msg)
	}
}

// AssemblerConfig wires an Assembler.
type AssemblerConfig struct {
	Source         MessageSource
	ChannelID      string
	MarkerAuthorID string
	Collect        CollectOptions
	Drafts         *DraftStore
	Thresholds     Thresholds
	// Downloader and Formatter are optional.
	Downloader *Downloader
	Formatter  *AIFormatter
	Logger     *slog.Logger
}

// Assembler builds a draft from the posts after the latest version marker.
type Assembler struct {
	cfg     AssemblerConfig
	scanner *Scanner
	logger  *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		cfg:     cfg,
		scanner: NewScanner(cfg.Source, cfg.ChannelID, cfg.MarkerAuthorID),
		logger:  logger,
	}
}

// Assemble scans the channel, categorises and renders the notes, matches
// images to notes and saves the draft.
func (a *Assembler) Assemble(ctx context.Context, opts Options) (*models.PatchDraft, error) {
	opts.progress("Searching for the last version post...")
	res, err := a.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("patchnotes: found version marker",
		slog.String("version", res.Version),
		slog.String("message_id", res.Marker.ID),
		slog.Int("pages", res.Pages))

	raw := Collect(res.After, a.cfg.Collect)
	if len(raw) == 0 {
		return nil, apperr.ErrNoNotesFound
	}
	opts.progress(fmt.Sprintf("Found version %s with %d notes. Formatting...", res.Version, len(raw)))

	cats := Categorize(raw)
	d := &models.PatchDraft{
		Version:      res.Version,
		RawNotes:     raw,
		Status:       models.DraftStatusDraft,
		MessageCount: len(raw),
		WithImages:   opts.WithImages,
	}
	for _, n := range raw {
		d.ImageCount += len(n.Attachments)
	}

	if opts.UseAI && a.cfg.Formatter != nil {
		f, err := a.cfg.Formatter.Format(ctx, res.Version, raw)
		if err != nil {
			return nil, fmt.Errorf("patchnotes: ai format: %w", err)
		}
		if len(f.Categories) > 0 {
			cats = f.Categories
		}
		d.Discord, d.HTML = f.Discord, f.HTML
		d.AIFormatted = true
	} else {
		d.Discord, d.HTML = RenderDiscord(cats), RenderHTML(cats)
	}
	d.Categories = cats
	d.ImageAssociations = Associate(raw, cats, a.cfg.Thresholds)

	if opts.WithImages && a.cfg.Downloader != nil && d.ImageCount > 0 {
		opts.progress(fmt.Sprintf("Downloading %d images...", d.ImageCount))
		d.DownloadedImages = a.cfg.Downloader.Download(ctx, res.Version, raw)
	}

	if _, err := a.cfg.Drafts.Save(d); err != nil {
		return nil, err
	}
	a.logger.Info("patchnotes: draft saved",
		slog.String("version", d.Version),
		slog.Int("notes", len(Flatten(cats))),
		slog.Int("images", d.ImageCount),
		slog.Int("associated", len(d.ImageAssociations)),
		slog.Bool("ai", d.AIFormatted))
	return d, nil
}
