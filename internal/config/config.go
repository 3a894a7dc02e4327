package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultPath is read when neither CONFIG_PATH nor an explicit path is
// given.
const DefaultPath = "configs/development.yaml"

type Config struct {
	Server Server `yaml:"server"`

	Printer Printer `yaml:"printer"`

	Ticket Ticket `yaml:"ticket"`

	Events Events `yaml:"events"`

	Log Log `yaml:"log"`
}

type Server struct {
	Address        string        `yaml:"address"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type Printer struct {
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	StatusTimeout  time.Duration `yaml:"status_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	CutFeedLines   int           `yaml:"cut_feed_lines"`
}

type Ticket struct {
	Locale string `yaml:"locale"`
	Width  int    `yaml:"width"` // Columns at normal size
}

type Events struct {
	WebSocket   bool   `yaml:"websocket"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:        ":3500",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Printer: Printer{
			Port:           9100,
			ConnectTimeout: 5 * time.Second,
			StatusTimeout:  10 * time.Second,
			WriteTimeout:   10 * time.Second,
			CutFeedLines:   3,
		},
		Ticket: Ticket{
			Locale: "it",
			Width:  48,
		},
		Events: Events{
			WebSocket:   true,
			NATSSubject: "tickets.printed",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file named by CONFIG_PATH, or DefaultPath.
func Load() (*Config, error) {
	configPath := DefaultPath
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	return LoadFile(configPath)
}

// LoadFile reads path on top of the defaults. A missing file yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if c.Printer.Port < 1 || c.Printer.Port > 65535 {
		return fmt.Errorf("printer.port %d out of range", c.Printer.Port)
	}

	timeouts := map[string]time.Duration{
		"printer.connect_timeout": c.Printer.ConnectTimeout,
		"printer.status_timeout":  c.Printer.StatusTimeout,
		"printer.write_timeout":   c.Printer.WriteTimeout,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if c.Printer.CutFeedLines < 0 {
		return fmt.Errorf("printer.cut_feed_lines %d must not be negative", c.Printer.CutFeedLines)
	}
	if c.Ticket.Width < 8 {
		return fmt.Errorf("ticket.width %d is too narrow", c.Ticket.Width)
	}
	if c.Ticket.Locale == "" {
		return errors.New("ticket.locale is required")
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return errors.New("events.nats_subject is required when events.nats_url is set")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}
