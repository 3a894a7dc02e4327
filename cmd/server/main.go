package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/pflag"

	"github.com/pizza-nz/ticket-printer/internal/config"
)

var controlActions = []string{"install", "uninstall", "start", "stop", "restart", "status"}

func main() {
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [%s]\n", filepath.Base(os.Args[0]), joinActions())
		flags.PrintDefaults()
	}
	configPath := flags.StringP("config", "c", "", "YAML configuration file (default $CONFIG_PATH or "+config.DefaultPath+")")
	addr := flags.String("addr", "", "listen address, overrides server.address")
	logLevel := flags.String("log-level", "", "debug, info, warn or error, overrides log.level")
	flags.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath, *addr, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		os.Exit(1)
	}

	prg := &program{cfg: cfg, logger: logger}
	svc, err := service.New(prg, serviceConfig(*configPath))
	if err != nil {
		logger.Error("cannot set up service", "error", err)
		os.Exit(1)
	}

	if action := flags.Arg(0); action != "" {
		if err := control(svc, action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := svc.Run(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, addr, logLevel string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Server.Address = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

func serviceConfig(configPath string) *service.Config {
	cfg := &service.Config{
		Name:        "TicketPrinter",
		DisplayName: "Ticket Printer",
		Description: "Prints queue and order tickets on network ESC/POS printers",
		Option: service.KeyValue{
			"RunAtLoad":        true,
			"DelayedAutoStart": false,
			"StartType":        "automatic",
		},
	}
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			cfg.Arguments = []string{"--config", abs}
		}
	}
	return cfg
}

func control(svc service.Service, action string) error {
	if !slices.Contains(controlActions, action) {
		return fmt.Errorf("unknown command %q, want one of %s", action, joinActions())
	}

	if action == "status" {
		status, err := svc.Status()
		if err != nil {
			return fmt.Errorf("cannot read service status: %w", err)
		}
		fmt.Println("Service status:", statusName(status))
		return nil
	}

	if err := service.Control(svc, action); err != nil {
		return fmt.Errorf("service %s failed: %w", action, err)
	}
	fmt.Printf("Service %s done\n", action)
	return nil
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func joinActions() string {
	return strings.Join(controlActions, "|")
}
