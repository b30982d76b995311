package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"paintsense/internal/advisor"
	"paintsense/internal/channel"
	"paintsense/internal/client"
	"paintsense/internal/config"
	"paintsense/internal/domain"
	"paintsense/internal/history"
	"paintsense/internal/preview"
	"paintsense/internal/transcript"
	"paintsense/internal/voice"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "paintsense",
		Short: "PaintSense: conversational paint color advisor",
		Long:  "PaintSense talks to a paint-advice service: describe a room, review the suggestion, and get color recommendations with preparation tips.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.paintsense/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(historyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if ws := config.ExpandPath(cfg.General.Workspace); ws != "" {
				if err := os.MkdirAll(ws, 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	applyLogLevel(cfg.General.LogLevel)
	return cfg
}

func applyLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// stack bundles everything a front end needs from the rest of the app.
type stack struct {
	cfg   *config.Config
	svc   *client.Client
	store *history.SQLiteStore // nil when history is disabled
	voice *voice.Adapter
}

func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	svc, err := client.New(client.Config{
		BaseURL:     cfg.Server.BaseURL,
		Timeout:     time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		TokenCookie: cfg.Server.TokenCookie,
		TokenHeader: cfg.Server.TokenHeader,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("advice client: %w", err)
	}
	if err := svc.Prime(ctx); err != nil {
		logger.Warn("could not prime session, first submission may be rejected",
			"server", cfg.Server.BaseURL, "err", err)
	}

	s := &stack{cfg: cfg, svc: svc}

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.DBPath, cfg.History.MaxMessagesPerConversation, logger)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		s.store = store
	}
	return s, nil
}

// buildVoice wires the speech adapter against an input buffer. A nil
// return means no voice features are configured.
func (s *stack) buildVoice(input voice.InputBuffer) *voice.Adapter {
	vc := s.cfg.Voice
	var stt domain.Transcriber
	var tts domain.Synthesizer
	if vc.STT.Enabled {
		stt = voice.NewSTT(voice.STTConfig{
			APIBase:  vc.STT.APIBase,
			APIKey:   vc.STT.APIKey,
			Model:    vc.STT.Model,
			Language: vc.STT.Language,
			Logger:   logger,
		})
	}
	if vc.TTS.Enabled {
		tts = voice.NewTTS(voice.TTSConfig{
			APIBase: vc.TTS.APIBase,
			APIKey:  vc.TTS.APIKey,
			Model:   vc.TTS.Model,
			Voice:   vc.TTS.Voice,
			Logger:  logger,
		})
	}
	if stt == nil && tts == nil {
		return nil
	}
	var player domain.Player
	if p := voice.NewCmdPlayer(); p != nil {
		player = p
	}
	s.voice = voice.NewAdapter(voice.AdapterConfig{
		STT:          stt,
		TTS:          tts,
		Player:       player,
		Input:        input,
		ReplyEnabled: vc.ReplyEnabled,
		Logger:       logger,
	})
	return s.voice
}

func (s *stack) previewer() advisor.Previewer {
	if !s.cfg.Review.OpenPreview {
		return nil
	}
	return preview.New(preview.Config{
		ReviewURL:  s.cfg.Server.BaseURL,
		ProfileDir: s.cfg.Review.PreviewProfileDir,
		Logger:     logger,
	})
}

// newAdvisor binds one advisor to a view/surface pair, with its own
// conversation transcript.
func (s *stack) newAdvisor(ctx context.Context, view domain.View, surface domain.ReviewSurface) *advisor.Advisor {
	var recorder transcript.Recorder
	if s.store != nil {
		recorder = s.store
	}
	log := transcript.NewLog(uuid.NewString(), recorder, logger)

	var speaker advisor.Speaker
	if s.voice != nil {
		speaker = s.voice
	}

	return advisor.New(ctx, advisor.Config{
		Service:           s.svc,
		View:              view,
		Surface:           surface,
		Transcript:        log,
		DescriptionSource: s.cfg.Review.DescriptionSource,
		Speaker:           speaker,
		Preview:           s.previewer(),
		Logger:            logger,
	})
}

func (s *stack) close() {
	if s.voice != nil {
		s.voice.Wait()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	cli := channel.NewCLI(channel.CLIConfig{Logger: logger})
	if v := s.buildVoice(cli); v != nil {
		cli.SetVoice(v)
	}
	adv := s.newAdvisor(ctx, cli, cli)
	cli.Bind(adv)

	return cli.Start(ctx)
}

func askCmd() *cobra.Command {
	var (
		imagePaths []string
		docPaths   []string
		accept     bool
		reject     bool
	)
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "One-shot consultation: submit, auto-resolve the review, print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accept && reject {
				return fmt.Errorf("--accept and --reject are mutually exclusive")
			}
			decision := !reject // default accepts the suggestion

			cfg := loadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			var bundle domain.Bundle
			if len(args) == 1 {
				bundle.Text = args[0]
			}
			for _, p := range imagePaths {
				att, err := readAttachment(p)
				if err != nil {
					return err
				}
				bundle.Images = append(bundle.Images, att)
			}
			for _, p := range docPaths {
				att, err := readAttachment(p)
				if err != nil {
					return err
				}
				bundle.Docs = append(bundle.Docs, att)
			}

			script := channel.NewScript(channel.ScriptConfig{
				Out:      os.Stdout,
				Decision: decision,
				Logger:   logger,
			})
			adv := s.newAdvisor(ctx, script, script)
			adv.Submit(ctx, bundle)
			if script.Failed() {
				return fmt.Errorf("consultation failed")
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&imagePaths, "image", "i", nil, "room photo to attach (repeatable)")
	cmd.Flags().StringArrayVarP(&docPaths, "doc", "d", nil, "document to attach (repeatable)")
	cmd.Flags().BoolVar(&accept, "accept", false, "accept the suggestion (default)")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the suggestion")
	return cmd
}

func readAttachment(path string) (domain.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.Attachment{
		Filename: filepath.Base(path),
		MimeType: channel.MimeByExt(path),
		Data:     data,
	}, nil
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the Telegram gateway",
		Long:  "Serves the advice pipeline over Telegram. Each chat gets its own conversation. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg.General.LogLevel)

	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram channel is disabled or has no token (see 'paintsense config set channels.telegram.token ...')")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()
	s.buildVoice(nil)

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Channels.Telegram.Token,
		AllowFrom: cfg.Channels.Telegram.AllowFrom,
		ParseMode: cfg.Channels.Telegram.ParseMode,
		Voice:     voiceControl(s.voice),
		Bind: func(view domain.View, surface domain.ReviewSurface) channel.Pipeline {
			return s.newAdvisor(ctx, view, surface)
		},
		Logger: logger,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.")
	return tg.Start(ctx)
}

// voiceControl avoids handing the channel a typed-nil interface when no
// voice backend is configured.
func voiceControl(a *voice.Adapter) channel.VoiceControl {
	if a == nil {
		return nil
	}
	return a
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show client status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			svc, err := client.New(client.Config{
				BaseURL:     cfg.Server.BaseURL,
				Timeout:     10 * time.Second,
				TokenCookie: cfg.Server.TokenCookie,
				TokenHeader: cfg.Server.TokenHeader,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			if err := svc.Prime(ctx); err != nil {
				logger.Info("server", "url", cfg.Server.BaseURL, "reachable", false, "err", err)
			} else {
				logger.Info("server", "url", cfg.Server.BaseURL, "reachable", true)
			}
			logger.Info("history", "enabled", cfg.History.Enabled, "dbPath", cfg.History.DBPath)
			logger.Info("voice", "stt", cfg.Voice.STT.Enabled, "tts", cfg.Voice.TTS.Enabled)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.baseUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. review.descriptionSource confirm)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
