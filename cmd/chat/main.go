package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"gugudan/internal/config"
	"gugudan/internal/liveness"
	"gugudan/internal/logging"
	"gugudan/internal/prefs"
	"gugudan/internal/relay"
	"gugudan/internal/tui"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logFile := flag.String("log", cfg.LogFile, "log file (the terminal is used by the UI)")
	altScreen := flag.Bool("alt-screen", true, "run in the terminal's alternate screen")
	flag.Parse()

	if err := run(cfg, *logFile, *altScreen); err != nil {
		fmt.Fprintf(os.Stderr, "gugudan-chat: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logPath string, altScreen bool) error {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	logger := logging.New(f, "production", cfg.LogLevel)

	prefsPath := cfg.PreferencesPath
	if prefsPath == "" {
		if prefsPath, err = prefs.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := prefs.Open(prefsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", prefsPath).Msg("preferences unreadable, using defaults")
	}

	r := relay.New(cfg.RelayURL(),
		relay.WithLogger(logger),
		relay.WithReconnectDelay(cfg.ReconnectDelay),
		relay.WithPreferences(store),
	)
	defer r.Dispose()

	tracker := liveness.New([]liveness.Service{
		{Name: liveness.Supervisor, URL: cfg.SupervisorHealthURL},
		{Name: liveness.Agent1, URL: cfg.Agent1HealthURL},
		{Name: liveness.Agent2, URL: cfg.Agent2HealthURL},
	}, liveness.WithTimeout(cfg.HealthTimeout), liveness.WithLogger(logger))

	ui := tui.New(r, tracker, cfg.HealthInterval)
	r.Start()

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if _, err := tea.NewProgram(ui, opts...).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
