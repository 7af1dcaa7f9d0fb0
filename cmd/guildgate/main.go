// ABOUTME: Entry point for the guildgate bot control plane
// ABOUTME: Loads configuration, opens the store, and runs the gateway lifecycle

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/vanidev/guildgate/internal/config"
	"github.com/vanidev/guildgate/internal/control"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _ _     _             _
  __ _ _   _(_) | __| | __ _  __ _| |_ ___
 / _' | | | | | |/ _' |/ _' |/ _' | __/ _ \
| (_| | |_| | | | (_| | (_| | (_| | ||  __/
 \__, |\__,_|_|_|\__,_|\__, |\__,_|\__\___|
 |___/                 |___/
`

// getConfigPath returns the path to the guildgate config file.
// Priority: GUILDGATE_CONFIG env var > XDG_CONFIG_HOME/guildgate/config.yaml > ~/.config/guildgate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("GUILDGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "guildgate", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: guildgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the bot control plane")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(ctx context.Context) error {
	// Token and friends may live in a local .env during development
	_ = godotenv.Load()

	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Token:     ")
	if cfg.Discord.Token != "" {
		fmt.Println("configured")
	} else {
		yellow.Println("missing (gateway stays offline)")
	}
	fmt.Println()

	logger.Info("starting guildgate",
		"config", configPath,
		"database", cfg.Database.Path,
		"auto_start", cfg.Discord.AutoStart,
	)

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	bus := events.NewBus(logger)
	svc := control.New(cfg, st, bus, logger)

	if cfg.Discord.AutoStart && cfg.Discord.Token != "" {
		if err := svc.Start(ctx); err != nil {
			logger.Error("gateway auto-start failed", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return svc.Close(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("guildgate configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Discord Configuration ---")
	token := prompt(reader, "Bot token (leave empty to use ${DISCORD_BOT_TOKEN})", "")
	autoStartStr := prompt(reader, "Connect on startup?", "yes")
	autoStart := strings.ToLower(autoStartStr) == "yes" || strings.ToLower(autoStartStr) == "y"

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", "guildgate.db")

	fmt.Println("\n--- Presence Configuration ---")
	activity := prompt(reader, "Activity text", "VaniDEV Dashboard")
	activityType := prompt(reader, "Activity type (playing/streaming/listening/watching/competing)", "watching")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# guildgate configuration\n")
	cfg.WriteString("# Generated by guildgate init\n\n")

	cfg.WriteString("discord:\n")
	if token != "" {
		cfg.WriteString(fmt.Sprintf("  token: %q\n", token))
	} else {
		cfg.WriteString("  token: \"${DISCORD_BOT_TOKEN}\"\n")
	}
	cfg.WriteString(fmt.Sprintf("  auto_start: %t\n", autoStart))
	cfg.WriteString("\n")

	cfg.WriteString("gateway:\n")
	cfg.WriteString("  restart_cooldown: \"1s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("presence:\n")
	cfg.WriteString(fmt.Sprintf("  activity: %q\n", activity))
	cfg.WriteString(fmt.Sprintf("  type: %q\n", activityType))
	cfg.WriteString("  status: \"online\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the bot:")
	fmt.Printf("  guildgate serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
