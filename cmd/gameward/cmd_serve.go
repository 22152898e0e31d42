package main

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
	"github.com/jingkaihe/gameward/pkg/control"
	"github.com/jingkaihe/gameward/pkg/logging"
	gamenet "github.com/jingkaihe/gameward/pkg/net"
	"github.com/jingkaihe/gameward/pkg/relay"
	"github.com/jingkaihe/gameward/pkg/render"
	"github.com/jingkaihe/gameward/pkg/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server under supervision and serve its console",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	d := api.DefaultConfig()
	f := serveCmd.Flags()
	f.String("command", d.Server.Command, "Server launch command (shell-quoted)")
	f.String("dir", d.Server.Dir, "Working directory for the server")
	f.Bool("tty", d.Server.TTY, "Run the server on a pseudo-terminal")
	f.String("stop-command", d.Server.StopCommand, "Console line that asks the server to stop")
	f.String("address", d.Listen.Address, "Address the console listens on")
	f.Int("workers", d.Listen.Workers, "Number of acceptor workers")
	f.Duration("read-timeout", d.Listen.ReadTimeout, "Per-request read deadline (0 = none)")
	f.Bool("tls", d.Listen.TLS.Enabled, "Serve the console over TLS")
	f.String("cert", d.Listen.TLS.CertFile, "TLS certificate file")
	f.String("key", d.Listen.TLS.KeyFile, "TLS private key file")
	f.Bool("self-signed", d.Listen.TLS.SelfSigned, "Generate a self-signed certificate when cert/key are missing")
	f.Int("max-lines", d.Console.MaxLines, "Console lines kept for the web view")
	f.Bool("mirror", d.Console.Mirror, "Mirror server output to this terminal")
	f.String("events-jsonl", d.Events.JSONLPath, "Append audit events to this JSON-lines file")
	f.String("events-db", d.Events.SQLitePath, "Record audit events in this SQLite database")

	viper.BindPFlag("server.command", f.Lookup("command"))
	viper.BindPFlag("server.dir", f.Lookup("dir"))
	viper.BindPFlag("server.tty", f.Lookup("tty"))
	viper.BindPFlag("server.stop_command", f.Lookup("stop-command"))
	viper.BindPFlag("listen.address", f.Lookup("address"))
	viper.BindPFlag("listen.workers", f.Lookup("workers"))
	viper.BindPFlag("listen.read_timeout", f.Lookup("read-timeout"))
	viper.BindPFlag("listen.tls.enabled", f.Lookup("tls"))
	viper.BindPFlag("listen.tls.cert_file", f.Lookup("cert"))
	viper.BindPFlag("listen.tls.key_file", f.Lookup("key"))
	viper.BindPFlag("listen.tls.self_signed", f.Lookup("self-signed"))
	viper.BindPFlag("console.max_lines", f.Lookup("max-lines"))
	viper.BindPFlag("console.mirror", f.Lookup("mirror"))
	viper.BindPFlag("events.jsonl_path", f.Lookup("events-jsonl"))
	viper.BindPFlag("events.sqlite_path", f.Lookup("events-db"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	executable, argv, err := cfg.Server.Argv()
	if err != nil {
		return errx.Wrap(ErrParseCommand, err)
	}

	var tlsConfig *tls.Config
	if cfg.Listen.TLS.Enabled {
		if tlsConfig, err = gamenet.LoadTLSConfig(cfg.Listen.TLS); err != nil {
			return err
		}
	}

	renderer, err := render.NewTemplates()
	if err != nil {
		return errx.Wrap(ErrLoadViews, err)
	}

	emitter, err := openEmitter(cmd.Context(), cfg.Events)
	if err != nil {
		return err
	}
	defer emitter.Close()

	pool, err := gamenet.Listen(gamenet.PoolOptions{
		Address:          cfg.Listen.Address,
		Workers:          cfg.Listen.Workers,
		QueueSize:        cfg.Listen.QueueSize,
		TLS:              tlsConfig,
		HandshakeTimeout: cfg.Listen.HandshakeTimeout,
		Logger:           logger.With("component", "pool"),
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var mirror io.Writer
	if cfg.Console.Mirror {
		mirror = os.Stdout
	}
	console := relay.New(os.Stdin, relay.Options{
		Capacity: cfg.Console.MaxLines,
		Mirror:   mirror,
		Logger:   logger.With("component", "relay"),
	})

	spawn := func() (control.Process, error) {
		proc, err := supervisor.Spawn(supervisor.Options{
			Executable: executable,
			Args:       argv,
			Dir:        cfg.Server.Dir,
			Env:        cfg.Server.Env,
			TTY:        cfg.Server.TTY,
			Logger:     logger.With("component", "supervisor"),
		})
		if err != nil {
			return nil, err
		}
		return proc, nil
	}

	loop, err := control.New(control.Options{
		Spawn:           spawn,
		Relay:           console,
		Conns:           pool,
		Renderer:        renderer,
		Auth:            cfg.Auth,
		Events:          emitter,
		Command:         cfg.Server.Command,
		StopCommand:     cfg.Server.StopCommand,
		StartupDelay:    cfg.Server.StartupDelay,
		TickInterval:    cfg.TickInterval,
		ReadTimeout:     cfg.Listen.ReadTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := contextWithSignal(cmd.Context())
	defer cancel()
	return loop.Run(ctx)
}

// openEmitter builds the audit emitter for one gameward invocation. With no
// sinks configured events are dropped.
func openEmitter(ctx context.Context, cfg api.EventsConfig) (*logging.Emitter, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	var sinks []logging.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	if cfg.JSONLPath != "" {
		w, err := logging.NewJSONLWriter(cfg.JSONLPath)
		if err != nil {
			return nil, errx.Wrap(ErrOpenEventSink, err)
		}
		sinks = append(sinks, w)
	}
	if cfg.SQLitePath != "" {
		s, err := logging.OpenSQLiteSink(ctx, cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, errx.Wrap(ErrOpenEventSink, err)
		}
		sinks = append(sinks, s)
	}

	return logging.NewEmitter(logging.EmitterConfig{
		RunID: uuid.NewString(),
		Host:  host,
	}, sinks...), nil
}
