package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kardianos/service"

	"github.com/pizza-nz/ticket-printer/internal/clock"
	"github.com/pizza-nz/ticket-printer/internal/config"
	"github.com/pizza-nz/ticket-printer/internal/events"
	"github.com/pizza-nz/ticket-printer/internal/router"
	ticketsvc "github.com/pizza-nz/ticket-printer/internal/service"
	"github.com/pizza-nz/ticket-printer/internal/websockets"
)

const shutdownTimeout = 10 * time.Second

// program runs the HTTP server under the service manager, or in the
// foreground where Stop is driven by SIGINT and SIGTERM.
type program struct {
	cfg    *config.Config
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	ln, err := net.Listen("tcp", p.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.cfg.Server.Address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		p.done <- p.run(ctx, ln)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.logger.Info("shutting down server")
	p.cancel()
	return <-p.done
}

func (p *program) run(ctx context.Context, ln net.Listener) error {
	var (
		publishers events.Multi
		hub        *websockets.Hub
		natsPub    *events.NATSPublisher
	)

	if p.cfg.Events.WebSocket {
		hub = websockets.NewHub(p.logger)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
	}
	if p.cfg.Events.NATSURL != "" {
		var err error
		natsPub, err = events.NewNATSPublisher(p.cfg.Events.NATSURL)
		if err != nil {
			// Printing must not depend on the event bus.
			p.logger.Warn("job events will not reach NATS", "url", p.cfg.Events.NATSURL, "error", err)
		} else {
			publishers = append(publishers, natsPub)
		}
	}

	deps := ticketsvc.PrintServiceDeps{
		Clock:  clock.Real(),
		Topic:  p.cfg.Events.NATSSubject,
		Logger: p.logger,
	}
	if len(publishers) > 0 {
		deps.Publisher = publishers
	}

	printService, err := ticketsvc.NewPrintService(p.cfg.Printer, p.cfg.Ticket, deps)
	if err != nil {
		ln.Close()
		return err
	}

	server := &http.Server{
		Handler:      router.New(printService, hub, p.cfg, p.logger),
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		p.logger.Info("server starting", "addr", ln.Addr().String(), "locale", p.cfg.Ticket.Locale)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// In-flight print jobs finish and answer before Shutdown returns.
	err = server.Shutdown(shutdownCtx)
	if natsPub != nil {
		if cerr := natsPub.Close(); cerr != nil {
			p.logger.Warn("failed to drain NATS connection", "error", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	p.logger.Info("server exited properly")
	return nil
}
