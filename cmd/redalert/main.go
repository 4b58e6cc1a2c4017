// Command redalert keeps a live connection to the Red Alert backend and
// puts every incoming class alert in front of the user.
//
// Usage:
//
//	redalert [flags]             watch the alert stream (default)
//	redalert history [--limit]   list recent alerts from the backend
//	redalert history clear       delete the backend's alert history
//	redalert stats               alert counts
//	redalert poll                run one mail polling cycle now
//	redalert simulate            broadcast a test alert
//	redalert version             print build information
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/redalert/redalert/internal/config"
	"github.com/redalert/redalert/internal/version"
	"github.com/redalert/redalert/internal/webui"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redalert",
		Short: "Real-time class alert overlay",
		Long: `redalert subscribes to the Red Alert backend's alert topic and shows
each alert as a full-screen overlay with a short audio cue.

Configuration is read from redalert.yaml (see --config). A missing file
means defaults: ws://localhost:8081/ws-red-alert/websocket, /topic/alerts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "redalert.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	watch := newWatchCmd()
	root.RunE = watch.RunE
	root.Flags().AddFlagSet(watch.Flags())

	root.AddCommand(
		watch,
		newHistoryCmd(),
		newStatsCmd(),
		newPollCmd(),
		newSimulateCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Lines always go to the ring
// buffer; stdout is skipped while the terminal belongs to the overlay.
func newLogger(cfg config.Log, stdout bool, logBuffer *webui.LogBuffer) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{logBuffer}
	if stdout {
		writers = append(writers, os.Stdout)
	}
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = func() { f.Close() }
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("version", version.GetVersion()).
		Logger()
	return logger, closer, nil
}

// cliLogger is used by the one-shot backend commands
func cliLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || logLevel == "" {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
