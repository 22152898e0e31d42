package api

import (
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/jingkaihe/gameward/internal/errx"
)

const (
	DefaultCommand          = "bash ./server/run.sh"
	DefaultStopCommand      = "stop"
	DefaultStartupDelay     = 500 * time.Millisecond
	DefaultListenAddress    = "0.0.0.0:8443"
	DefaultWorkers          = 4
	DefaultQueueSize        = 64
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCertFile         = "cert.pem"
	DefaultKeyFile          = "key.pem"
	DefaultMaxLines         = 500
	DefaultTickInterval     = 10 * time.Millisecond
	DefaultShutdownTimeout  = 30 * time.Second
)

// Config is the full gameward configuration. It is loaded once before the
// control loop starts and treated as read-only afterwards.
type Config struct {
	Server          ServerConfig  `mapstructure:"server" yaml:"server"`
	Listen          ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Console         ConsoleConfig `mapstructure:"console" yaml:"console"`
	Auth            AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Events          EventsConfig  `mapstructure:"events" yaml:"events"`
	TickInterval    time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ServerConfig describes the supervised launcher.
type ServerConfig struct {
	// Command is shell-quoted: the first word is the executable.
	Command      string        `mapstructure:"command" yaml:"command"`
	Dir          string        `mapstructure:"dir" yaml:"dir,omitempty"`
	Env          []string      `mapstructure:"env" yaml:"env,omitempty"`
	TTY          bool          `mapstructure:"tty" yaml:"tty"`
	StopCommand  string        `mapstructure:"stop_command" yaml:"stop_command"`
	StartupDelay time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
}

type ListenConfig struct {
	Address          string        `mapstructure:"address" yaml:"address"`
	Workers          int           `mapstructure:"workers" yaml:"workers"`
	QueueSize        int           `mapstructure:"queue_size" yaml:"queue_size"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	TLS              TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	CertFile   string   `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile    string   `mapstructure:"key_file" yaml:"key_file"`
	SelfSigned bool     `mapstructure:"self_signed" yaml:"self_signed"`
	Hosts      []string `mapstructure:"hosts" yaml:"hosts,omitempty"`
}

type ConsoleConfig struct {
	MaxLines int  `mapstructure:"max_lines" yaml:"max_lines"`
	Mirror   bool `mapstructure:"mirror" yaml:"mirror"`
}

// Credential is a username/password pair. Password is either plaintext or a
// bcrypt hash from "gameward hash-password".
type Credential struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// AuthConfig holds the two distinguished credential pairs. Login opens a
// console session; Start additionally starts the server while it is offline.
type AuthConfig struct {
	Login Credential `mapstructure:"login" yaml:"login"`
	Start Credential `mapstructure:"start" yaml:"start"`
}

type EventsConfig struct {
	JSONLPath  string `mapstructure:"jsonl_path" yaml:"jsonl_path,omitempty"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Command:      DefaultCommand,
			StopCommand:  DefaultStopCommand,
			StartupDelay: DefaultStartupDelay,
		},
		Listen: ListenConfig{
			Address:          DefaultListenAddress,
			Workers:          DefaultWorkers,
			QueueSize:        DefaultQueueSize,
			HandshakeTimeout: DefaultHandshakeTimeout,
			TLS: TLSConfig{
				Enabled:  true,
				CertFile: DefaultCertFile,
				KeyFile:  DefaultKeyFile,
			},
		},
		Console: ConsoleConfig{
			MaxLines: DefaultMaxLines,
			Mirror:   true,
		},
		TickInterval:    DefaultTickInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Argv splits the server command into executable and arguments.
func (s *ServerConfig) Argv() (string, []string, error) {
	words, err := shellquote.Split(s.Command)
	if err != nil {
		return "", nil, errx.With(ErrInvalidConfig, ": server.command: %w", err)
	}
	if len(words) == 0 {
		return "", nil, errx.With(ErrInvalidConfig, ": server.command is empty")
	}
	return words[0], words[1:], nil
}

// Validate checks config invariants. It does not touch the filesystem.
func (c *Config) Validate() error {
	if _, _, err := c.Server.Argv(); err != nil {
		return err
	}
	for _, kv := range c.Server.Env {
		if !strings.Contains(kv, "=") {
			return errx.With(ErrInvalidConfig, ": server.env entry %q must be KEY=VALUE", kv)
		}
	}
	if strings.TrimSpace(c.Listen.Address) == "" {
		return errx.With(ErrInvalidConfig, ": listen.address is required")
	}
	if c.Listen.Workers < 1 {
		return errx.With(ErrInvalidConfig, ": listen.workers must be >= 1")
	}
	if c.Listen.QueueSize < 0 {
		return errx.With(ErrInvalidConfig, ": listen.queue_size must be >= 0")
	}
	if c.Listen.ReadTimeout < 0 || c.Listen.HandshakeTimeout < 0 {
		return errx.With(ErrInvalidConfig, ": listen timeouts must be >= 0")
	}
	if tls := c.Listen.TLS; tls.Enabled && (tls.CertFile == "" || tls.KeyFile == "") {
		return errx.With(ErrInvalidConfig, ": listen.tls.cert_file and listen.tls.key_file are required when TLS is enabled")
	}
	if c.Console.MaxLines < 1 {
		return errx.With(ErrInvalidConfig, ": console.max_lines must be >= 1")
	}
	if err := c.Auth.Login.validate("auth.login"); err != nil {
		return err
	}
	if err := c.Auth.Start.validate("auth.start"); err != nil {
		return err
	}
	if c.Auth.Login == c.Auth.Start {
		return errx.With(ErrInvalidConfig, ": auth.login and auth.start must differ")
	}
	if c.TickInterval <= 0 {
		return errx.With(ErrInvalidConfig, ": tick_interval must be > 0")
	}
	if c.ShutdownTimeout < 0 {
		return errx.With(ErrInvalidConfig, ": shutdown_timeout must be >= 0")
	}
	return nil
}

func (c Credential) validate(field string) error {
	if c.Username == "" || c.Password == "" {
		return errx.With(ErrInvalidConfig, ": %s requires username and password", field)
	}
	return nil
}

// Redacted returns a copy with passwords masked, suitable for printing.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.Env = append([]string(nil), c.Server.Env...)
	out.Listen.TLS.Hosts = append([]string(nil), c.Listen.TLS.Hosts...)
	if out.Auth.Login.Password != "" {
		out.Auth.Login.Password = "<redacted>"
	}
	if out.Auth.Start.Password != "" {
		out.Auth.Start.Password = "<redacted>"
	}
	return &out
}
