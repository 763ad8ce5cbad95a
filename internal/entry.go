// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lorekeeper/internal/api"
	"github.com/starford/lorekeeper/internal/bot"
	"github.com/starford/lorekeeper/internal/knowledge"
	"github.com/starford/lorekeeper/internal/llm"
	"github.com/starford/lorekeeper/internal/monitor"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/profile"
	"github.com/starford/lorekeeper/internal/quiz"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/sse"
	"github.com/starford/lorekeeper/internal/storage"
	"github.com/starford/lorekeeper/internal/usage"
	"github.com/starford/lorekeeper/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	return app, nil
}

// newLogger installs the JSON logger as default. The MCP command logs to
// stderr because stdout carries the protocol.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// stores are the file-backed stores shared by every command.
type stores struct {
	knowledge *knowledge.Store
	profiles  *profile.Store
	drafts    *patchnotes.DraftStore
	images    storage.Provider
	files     *llm.FileCache
}

func openStores(cfg *Config, logger *slog.Logger) (*stores, error) {
	kbFS, err := storage.NewFS(cfg.Knowledge.Dir)
	if err != nil {
		return nil, fmt.Errorf("init knowledge storage: %w", err)
	}
	profileFS, err := storage.NewFS(cfg.Profiles.Dir)
	if err != nil {
		return nil, fmt.Errorf("init profile storage: %w", err)
	}
	draftFS, err := storage.NewFS(cfg.Drafts.Dir)
	if err != nil {
		return nil, fmt.Errorf("init draft storage: %w", err)
	}
	imageFS, err := storage.NewFS(cfg.Drafts.ImagesDir)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}
	uploadFS, err := storage.NewFS(filepath.Dir(cfg.Knowledge.UploadsFile))
	if err != nil {
		return nil, fmt.Errorf("init upload cache storage: %w", err)
	}

	profiles, err := profile.NewStore(profileFS, logger)
	if err != nil {
		return nil, fmt.Errorf("init profiles: %w", err)
	}
	files, err := llm.NewFileCache(uploadFS, filepath.Base(cfg.Knowledge.UploadsFile))
	if err != nil {
		return nil, fmt.Errorf("init upload cache: %w", err)
	}
	return &stores{
		knowledge: knowledge.NewStore(kbFS, logger),
		profiles:  profiles,
		drafts:    patchnotes.NewDraftStore(draftFS, cfg.Drafts.Thresholds),
		images:    imageFS,
		files:     files,
	}, nil
}

// Run starts the bot, the dashboard and the background loops and blocks
// until a shutdown signal arrives or one of them fails.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if err := cfg.Discord.Validate(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	if err := cfg.Dashboard.Validate(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	logger := newLogger(cfg, os.Stdout)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("knowledge_dir", cfg.Knowledge.Dir),
		slog.String("profiles_dir", cfg.Profiles.Dir),
		slog.String("drafts_dir", cfg.Drafts.Dir),
		slog.Bool("dashboard", cfg.Dashboard.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := openStores(cfg, logger)
	if err != nil {
		return err
	}

	var monOpts []monitor.Option
	ledger, err := usage.Open(cfg.Monitor.LedgerPath)
	if err != nil {
		logger.Warn("usage ledger unavailable, costs are kept in memory only", slog.String("error", err.Error()))
	} else {
		defer ledger.Close()
		monOpts = append(monOpts, monitor.WithLedger(ledger))
	}
	mon := monitor.New(cfg.Monitor, logger, monOpts...)

	client := llm.New(cfg.LLM, llm.WithLogger(logger), llm.WithUsageRecorder(mon))

	discord, err := bot.NewDiscord(cfg.Discord, cfg.Bot.AdminRoleIDs, logger)
	if err != nil {
		return err
	}

	var assembler bot.Assembler
	if cfg.Discord.PatchNotesChannelID != "" {
		assembler = patchnotes.NewAssembler(patchnotes.AssemblerConfig{
			Source:         discord,
			ChannelID:      cfg.Discord.PatchNotesChannelID,
			MarkerAuthorID: cfg.Discord.MarkerAuthorID,
			Collect: patchnotes.CollectOptions{
				BotUserID:     cfg.Discord.BotUserID,
				CommandPrefix: cfg.Bot.Prefix,
			},
			Drafts:     st.drafts,
			Thresholds: cfg.Drafts.Thresholds,
			Downloader: patchnotes.NewDownloader(&http.Client{Timeout: 30 * time.Second}, st.images, logger),
			Formatter:  patchnotes.NewAIFormatter(client, ""),
			Logger:     logger,
		})
	}

	botCfg := cfg.Bot
	if botCfg.DashboardURL == "" {
		botCfg.DashboardURL = cfg.Dashboard.PublicURL
	}
	b := bot.New(botCfg, bot.Deps{
		Knowledge:  st.knowledge,
		Scorer:     knowledge.NewScorer(cfg.Knowledge.Topics),
		Builder:    knowledge.NewContextBuilder(cfg.Knowledge.Topics),
		LLM:        client,
		Files:      st.files,
		Profiles:   st.profiles,
		Limiter:    ratelimit.New(cfg.RateLimit),
		Monitor:    mon,
		PatchNotes: assembler,
		Quizzes:    quiz.NewGenerator(quiz.DefaultTemplates(), nil),
	}, discord, logger)
	defer b.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	w := watcher.New([]watcher.Dir{
		{Topic: sse.TopicKnowledge, Path: cfg.Knowledge.Dir, Ext: ".json"},
		{Topic: sse.TopicDraft, Path: cfg.Drafts.Dir, Ext: ".json"},
		{Topic: sse.TopicProfile, Path: cfg.Profiles.Dir, Ext: ".json"},
	}, watcher.DefaultDebounce, logger, func(c sse.Change) {
		if c.Topic == sse.TopicProfile {
			st.profiles.Reload()
		}
		broker.PublishChange(c)
	})

	var httpServer *http.Server
	if cfg.Dashboard.Enabled {
		h := api.NewHandler(api.Deps{
			Monitor:   mon,
			Profiles:  st.profiles,
			Drafts:    st.drafts,
			Publisher: discord,
			ImagesDir: cfg.Drafts.ImagesDir,
			ChunkSize: cfg.Bot.ChunkSize,
			Broker:    broker,
			Logger:    logger,
		})
		apiRouter := api.NewRouter(h, api.Credentials{
			Username: cfg.Dashboard.Username,
			Password: cfg.Dashboard.Password,
		}, broker)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", apiRouter)

		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	logger.Info("Bot starting...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return discord.Run(gCtx, b.Handle)
	})

	g.Go(func() error {
		return w.Run(gCtx)
	})

	g.Go(func() error {
		return mon.Run(gCtx)
	})

	if httpServer != nil {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()
		// ends open event streams so Shutdown does not wait on them
		broker.Close()

		if httpServer == nil {
			return nil
		}
		logger.Info("Shutting down server...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Bot stopped successfully")
	return nil
}
