package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
)

var rootCmd = &cobra.Command{
	Use:   "gameward",
	Short: "Supervise a game server and serve its console over the web",
	Long: `gameward launches a game server, relays its console, and exposes the console
together with stop, kill and start controls over a small authenticated web page.

Running gameward without a subcommand is the same as "gameward serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(viper.GetString("log_level"))
		return initConfig()
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./gameward.yaml or $HOME/.config/gameward/gameward.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseLogLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func setupLogging(raw string) {
	level, ok := parseLogLevel(raw)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if !ok {
		logger.Warn("unknown log level, using info", "level", raw)
	}
}

// initConfig wires the config file, GAMEWARD_* environment variables and
// defaults into viper. A missing default config file is not an error.
func initConfig() error {
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("gameward")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "gameward"))
		}
	}
	viper.SetEnvPrefix("GAMEWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(api.DefaultConfig())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errx.Wrap(ErrReadConfig, err)
		}
		return nil
	}
	slog.Debug("loaded config file", "path", viper.ConfigFileUsed())
	return nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(d *api.Config) {
	defaults := map[string]any{
		"server.command":           d.Server.Command,
		"server.dir":               d.Server.Dir,
		"server.env":               d.Server.Env,
		"server.tty":               d.Server.TTY,
		"server.stop_command":      d.Server.StopCommand,
		"server.startup_delay":     d.Server.StartupDelay,
		"listen.address":           d.Listen.Address,
		"listen.workers":           d.Listen.Workers,
		"listen.queue_size":        d.Listen.QueueSize,
		"listen.read_timeout":      d.Listen.ReadTimeout,
		"listen.handshake_timeout": d.Listen.HandshakeTimeout,
		"listen.tls.enabled":       d.Listen.TLS.Enabled,
		"listen.tls.cert_file":     d.Listen.TLS.CertFile,
		"listen.tls.key_file":      d.Listen.TLS.KeyFile,
		"listen.tls.self_signed":   d.Listen.TLS.SelfSigned,
		"listen.tls.hosts":         d.Listen.TLS.Hosts,
		"console.max_lines":        d.Console.MaxLines,
		"console.mirror":           d.Console.Mirror,
		"auth.login.username":      d.Auth.Login.Username,
		"auth.login.password":      d.Auth.Login.Password,
		"auth.start.username":      d.Auth.Start.Username,
		"auth.start.password":      d.Auth.Start.Password,
		"events.jsonl_path":        d.Events.JSONLPath,
		"events.sqlite_path":       d.Events.SQLitePath,
		"tick_interval":            d.TickInterval,
		"shutdown_timeout":         d.ShutdownTimeout,
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

// decodeConfig returns the effective configuration without validating it.
func decodeConfig() (*api.Config, error) {
	cfg := api.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errx.Wrap(ErrDecodeConfig, err)
	}
	return cfg, nil
}

func loadConfig() (*api.Config, error) {
	cfg, err := decodeConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
