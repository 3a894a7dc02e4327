package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pizza-nz/ticket-printer/internal/clock"
	"github.com/pizza-nz/ticket-printer/internal/config"
	"github.com/pizza-nz/ticket-printer/internal/escpos"
	"github.com/pizza-nz/ticket-printer/internal/events"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

// PrintServiceDeps are the collaborators a PrintService talks to. Zero
// values fall back to the real network, wall clock and default logger.
type PrintServiceDeps struct {
	Dialer    escpos.Dialer
	Clock     clock.Clock
	Publisher events.Publisher
	Topic     string
	Logger    *slog.Logger
}

// PrintService runs print jobs. Each job opens its own session to the
// printer named in the request, checks the device status, prints, closes
// the session and then answers exactly once.
type PrintService struct {
	cfg       config.Printer
	dialer    escpos.Dialer
	clock     clock.Clock
	evaluator *Evaluator
	renderer  *Renderer
	publisher events.Publisher
	topic     string
	logger    *slog.Logger
}

// NewPrintService creates a print service. It fails if the ticket locale is
// not supported.
func NewPrintService(printer config.Printer, ticket config.Ticket, deps PrintServiceDeps) (*PrintService, error) {
	locale, err := LookupLocale(ticket.Locale)
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &PrintService{
		cfg:       printer,
		dialer:    deps.Dialer,
		clock:     deps.Clock,
		evaluator: NewEvaluator(locale),
		renderer:  NewRenderer(locale, ticket.Width, printer.CutFeedLines),
		publisher: deps.Publisher,
		topic:     deps.Topic,
		logger:    deps.Logger,
	}, nil
}

// PrintQueue prints a numbered queue ticket.
func (s *PrintService) PrintQueue(ctx context.Context, t models.QueueTicket) models.PrintResponse {
	return s.print(ctx, t.TicketRequest, models.TicketKindQueue, func(p *escpos.Printer) {
		s.renderer.Queue(p, t)
	})
}

// PrintConsolidated prints a whole order on one ticket.
func (s *PrintService) PrintConsolidated(ctx context.Context, t models.OrderTicket) models.PrintResponse {
	return s.print(ctx, t.TicketRequest, models.TicketKindConsolidated, func(p *escpos.Printer) {
		s.renderer.Consolidated(p, t)
	})
}

// PrintSplit prints an order as one cut segment per category.
func (s *PrintService) PrintSplit(ctx context.Context, t models.OrderTicket) models.PrintResponse {
	return s.print(ctx, t.TicketRequest, models.TicketKindSplit, func(p *escpos.Printer) {
		s.renderer.Split(p, t)
	})
}

// CheckStatus runs a status round against a printer without printing.
func (s *PrintService) CheckStatus(ctx context.Context, req models.PrinterStatusRequest) models.PrinterStatusResponse {
	target := models.TicketRequest{PrinterIPAddress: req.PrinterIPAddress, PrinterPort: req.PrinterPort}

	var report escpos.StatusReport
	j, address := s.run(ctx, target, "status", nil, func(r escpos.StatusReport) {
		report = r
	})

	resp := models.PrinterStatusResponse{
		Printer:  address,
		Healthy:  j.Outcome() == nil,
		Faults:   s.evaluator.Evaluate(report),
		Warnings: s.evaluator.Warnings(report),
	}
	if perr := j.Outcome(); perr != nil && len(resp.Faults) == 0 {
		resp.Error = perr
	}

	s.emit(ctx, events.JobEvent{
		ID:      j.id,
		Kind:    events.KindPrinterStatus,
		Printer: address,
	}, j.Outcome())
	return resp
}

func (s *PrintService) print(ctx context.Context, req models.TicketRequest, kind models.TicketKind, layout func(*escpos.Printer)) models.PrintResponse {
	j, address := s.run(ctx, req, string(kind), layout, nil)
	outcome := j.Outcome()

	ev := events.JobEvent{
		ID:                j.id,
		Kind:              events.KindTicketPrinted,
		Ticket:            kind,
		RequestID:         req.RequestID,
		DepartmentQueueID: req.DepartmentQueueID,
		LedID:             req.LedID,
		Printer:           address,
	}
	if outcome != nil {
		ev.Kind = events.KindTicketFailed
	}
	s.emit(ctx, ev, outcome)

	return req.Response(outcome)
}

// run drives one job to a settled outcome and closes its session. With a
// nil layout the job ends after a clean status check.
func (s *PrintService) run(ctx context.Context, req models.TicketRequest, kind string, layout func(*escpos.Printer), inspect func(escpos.StatusReport)) (*job, string) {
	j := newJob()
	logger := s.logger.With("job_id", j.id, "kind", kind)
	sess := escpos.NewSession(s.dialer, req.PrinterIPAddress, s.port(req), s.cfg.WriteTimeout, logger)
	logger = logger.With("printer", sess.Address())

	var wg sync.WaitGroup

	j.advance(stateIdle, stateConnecting)
	if err := sess.Open(ctx, s.cfg.ConnectTimeout); err != nil {
		logger.Error("cannot connect to printer", "error", err)
		j.settle(s.evaluator.Failure(models.ErrorTypeOffline), stateConnecting)
	} else if j.advance(stateConnecting, stateStatusCheck) {
		j.armDeadline(s.clock, s.cfg.StatusTimeout, s.evaluator.Failure(models.ErrorTypeStatusTimeout))

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, j, sess, layout, inspect, logger)
		}()
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		// A job already rendering runs to completion and reports the device
		// result.
		if j.settle(s.evaluator.Failure(models.ErrorTypeRequestCanceled), stateConnecting, stateStatusCheck) {
			logger.Warn("request canceled", "error", ctx.Err())
		}
		<-j.done
	}

	if perr := j.Outcome(); perr != nil && perr.ErrorType == models.ErrorTypeStatusTimeout {
		logger.Warn("printer status check timed out", "timeout", s.cfg.StatusTimeout)
	}

	j.enter(stateClosing)
	if err := sess.Close(); err != nil {
		logger.Warn("failed to close printer session", "error", err)
	}
	wg.Wait()
	j.enter(stateResponded)

	if perr := j.Outcome(); perr == nil {
		logger.Info("job finished")
	} else {
		logger.Info("job failed", "error_type", perr.ErrorType)
	}
	return j, sess.Address()
}

// work runs the status check and, if the printer is healthy, the layout. It
// only ever settles the job from the state it expects, so a late status
// reply after the deadline changes nothing.
func (s *PrintService) work(ctx context.Context, j *job, sess *escpos.Session, layout func(*escpos.Printer), inspect func(escpos.StatusReport), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			if j.settle(s.evaluator.Failure(models.ErrorTypePrinter), stateStatusCheck, stateRendering) {
				logger.Error("panic while printing", "panic", fmt.Sprint(r))
			}
		}
	}()

	report, err := sess.QueryStatus(ctx)
	if err != nil {
		errorType := models.ErrorTypeStatusUnavailable
		if ctx.Err() != nil {
			errorType = models.ErrorTypeRequestCanceled
		}
		if j.settle(s.evaluator.Failure(errorType), stateStatusCheck) {
			logger.Error("cannot read printer status", "error", err)
		}
		return
	}
	if inspect != nil {
		inspect(report)
	}

	for _, w := range s.evaluator.Warnings(report) {
		logger.Warn("printer warning", "error_type", w.ErrorType)
	}
	if faults := s.evaluator.Evaluate(report); len(faults) > 0 {
		if j.settle(&faults[0], stateStatusCheck) {
			logger.Warn("printer reported faults", "faults", len(faults), "error_type", faults[0].ErrorType)
		}
		return
	}

	if layout == nil {
		j.settle(nil, stateStatusCheck)
		return
	}
	if !j.advance(stateStatusCheck, stateRendering) {
		return
	}

	p := escpos.NewPrinter()
	layout(p)
	_, err = sess.Write(p.Bytes())
	if err == nil {
		err = sess.Flush()
	}
	if err != nil {
		if j.settle(s.evaluator.Failure(models.ErrorTypePrinter), stateRendering) {
			logger.Error("cannot print ticket", "error", err)
		}
		return
	}

	j.settle(nil, stateRendering)
}

func (s *PrintService) port(req models.TicketRequest) int {
	if req.PrinterPort != 0 {
		return req.PrinterPort
	}
	return s.cfg.Port
}

func (s *PrintService) emit(ctx context.Context, ev events.JobEvent, outcome *models.PrintError) {
	if s.publisher == nil {
		return
	}
	ev.At = s.clock.Now()
	if outcome != nil {
		ev.ErrorType = outcome.ErrorType
		ev.Message = outcome.Message
	}
	if err := events.Emit(context.WithoutCancel(ctx), s.publisher, s.topic, ev); err != nil {
		s.logger.Warn("failed to publish job event", "job_id", ev.ID, "error", err)
	}
}
