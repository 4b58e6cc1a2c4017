package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/redalert/redalert/internal/api"
	"github.com/redalert/redalert/internal/audio"
	"github.com/redalert/redalert/internal/config"
	"github.com/redalert/redalert/internal/overlay"
	"github.com/redalert/redalert/internal/session"
	"github.com/redalert/redalert/internal/transport"
	"github.com/redalert/redalert/internal/version"
	"github.com/redalert/redalert/internal/webui"
)

type watchOptions struct {
	ui      string
	listen  string
	logFile string
	noAudio bool
}

var watchFlags watchOptions

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the alert stream and present alerts (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&watchFlags.ui, "ui", "", "presentation: tui or headless; overrides config")
	cmd.Flags().StringVar(&watchFlags.listen, "listen", "", "address for the local API and overlay page; enables it")
	cmd.Flags().StringVar(&watchFlags.logFile, "log-file", "", "also append logs to this file")
	cmd.Flags().BoolVar(&watchFlags.noAudio, "no-audio", false, "disable the arrival cue")
	return cmd
}

func applyWatchFlags(cfg *config.Config) error {
	if watchFlags.ui != "" {
		cfg.UI.Mode = watchFlags.ui
	}
	if watchFlags.listen != "" {
		cfg.API.Enabled = true
		cfg.API.Listen = watchFlags.listen
	}
	if watchFlags.logFile != "" {
		cfg.Log.File = watchFlags.logFile
	}
	if watchFlags.noAudio {
		off := false
		cfg.Audio.Enabled = &off
	}
	// headless has no other way to show alerts
	if cfg.UI.Mode == "headless" {
		cfg.API.Enabled = true
	}
	return config.Validate(cfg)
}

func runWatch(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyWatchFlags(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	tui := cfg.UI.Mode == "tui"

	logBuffer := webui.NewLogBuffer(1000)
	logger, closeLog, err := newLogger(cfg.Log, !tui, logBuffer)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info().
		Str("stream", cfg.Stream.URL).
		Str("topic", cfg.Stream.Topic).
		Str("ui", cfg.UI.Mode).
		Msg("Starting Red Alert")

	var opts []transport.Option
	tlsCfg, err := transport.TLSConfig(cfg.Stream.TLS)
	if err != nil {
		return fmt.Errorf("stream tls: %w", err)
	}
	if tlsCfg != nil {
		opts = append(opts, transport.WithTLS(tlsCfg))
	}
	client := transport.New(cfg.Stream, logger, opts...)

	tone := audio.DefaultTone
	tone.Frequency = cfg.Audio.Frequency
	tone.Duration = cfg.Audio.Duration
	var cue audio.Emitter = audio.Nop{}
	if cfg.Audio.AudioEnabled() {
		cue = audio.NewBeeper(tone, logger)
	} else {
		logger.Info().Msg("Audio cue disabled")
	}

	sess := session.New(client, cue, logger)
	defer sess.Close()
	presenter := overlay.NewPresenter(sess, overlay.BrowserOpener{}, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(sess, presenter, client.Health, logger, cfg.API.Listen)
		apiServer.SetLogBuffer(logBuffer)
		apiServer.SetVersion(version.GetVersion(), version.GetCommit(), version.GetBuildDate())
		apiServer.SetCue(tone)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
				stop()
			}
		}()
		logger.Info().Str("url", "http://"+cfg.API.Listen+"/").Msg("Overlay page available")
	}

	sess.Start()

	if tui {
		err = runOverlay(ctx, sess, presenter)
	} else {
		logSnapshots(sess, logger)
		<-ctx.Done()
	}

	logger.Info().Msg("Shutting down...")
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API server shutdown")
		}
	}
	sess.Close()
	logger.Info().Msg("Red Alert stopped")
	return err
}

func runOverlay(ctx context.Context, sess *session.Session, presenter *overlay.Presenter) error {
	events, cancel := overlay.Snapshots(sess)
	defer cancel()

	program := tea.NewProgram(
		overlay.NewModel(sess, presenter, events),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("overlay: %w", err)
	}
	return nil
}

// logSnapshots narrates connection status in headless mode
func logSnapshots(sess *session.Session, logger zerolog.Logger) {
	var mu sync.Mutex
	last := sess.Snapshot().Status
	sess.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Status == last {
			return
		}
		last = snap.Status
		logger.Info().Stringer("status", snap.Status).Msg(snap.Status.StatusText())
	})
}
