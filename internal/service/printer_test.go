package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pizza-nz/ticket-printer/internal/clock"
	"github.com/pizza-nz/ticket-printer/internal/config"
	"github.com/pizza-nz/ticket-printer/internal/escpos/escpostest"
	"github.com/pizza-nz/ticket-printer/internal/events"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	var ev events.JobEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Events() []events.JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.JobEvent(nil), r.events...)
}

func testPrinterConfig() config.Printer {
	return config.Printer{
		Port:           9100,
		ConnectTimeout: 2 * time.Second,
		StatusTimeout:  10 * time.Second,
		WriteTimeout:   2 * time.Second,
		CutFeedLines:   3,
	}
}

func newTestService(t *testing.T, clk clock.Clock) (*PrintService, *recordingPublisher) {
	t.Helper()
	return newTestServiceWith(t, testPrinterConfig(), PrintServiceDeps{Clock: clk})
}

func newTestServiceWith(t *testing.T, cfg config.Printer, deps PrintServiceDeps) (*PrintService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	deps.Publisher = pub
	deps.Topic = "tickets.printed"
	deps.Logger = slog.New(slog.DiscardHandler)

	svc, err := NewPrintService(cfg, config.Ticket{Locale: "it", Width: 32}, deps)
	if err != nil {
		t.Fatalf("NewPrintService() error: %v", err)
	}
	return svc, pub
}

// hookDialer connects for real and hands the command stream written after
// the status round to onPrint before it reaches the device.
type hookDialer struct {
	net.Dialer
	onPrint func(p []byte) error
}

func (d *hookDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &hookConn{Conn: conn, onPrint: d.onPrint}, nil
}

type hookConn struct {
	net.Conn
	onPrint func(p []byte) error
}

func (c *hookConn) Write(p []byte) (int, error) {
	if bytes.HasPrefix(p, []byte{0x1b, '@'}) {
		if err := c.onPrint(p); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

func ticketFor(printer *escpostest.Printer, ahead int) models.QueueTicket {
	ticket := queueTicket("42", ahead)
	ticket.RequestID = json.RawMessage(`"req-1"`)
	ticket.DepartmentQueueID = json.RawMessage(`3`)
	ticket.LedID = json.RawMessage(`null`)
	ticket.PrinterIPAddress = printer.Host()
	ticket.PrinterPort = printer.Port()
	return ticket
}

func wantErrorType(t *testing.T, resp models.PrintResponse, want string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("response error = nil, want %s", want)
	}
	if resp.Error.ErrorType != want {
		t.Errorf("ErrorType = %q, want %q (message %q)", resp.Error.ErrorType, want, resp.Error.Message)
	}
	if resp.Error.Message == "" {
		t.Error("error message is empty")
	}
}

func TestPrintQueueSuccess(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	clk := clock.Fake(time.Unix(0, 0))
	svc, pub := newTestService(t, clk)

	resp := svc.PrintQueue(context.Background(), ticketFor(printer, 5))
	if resp.Error != nil {
		t.Fatalf("PrintQueue() error = %+v", resp.Error)
	}
	if string(resp.RequestID) != `"req-1"` || string(resp.DepartmentQueueID) != `3` {
		t.Errorf("correlation ids = %s %s, want echoed", resp.RequestID, resp.DepartmentQueueID)
	}
	if n := clk.Pending(); n != 0 {
		t.Errorf("status deadline still pending after success: %d timers", n)
	}

	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed")
	}
	lines := printedLines(printer.Received())
	want := []string{"Reparto", "Macelleria", "Il tuo numero e'", "42", "Davanti a te ci sono 5 persone"}
	equalLines(t, lines, want)
	if n := bytes.Count(printer.Received(), cutCommand); n != 1 {
		t.Errorf("cuts = %d, want 1", n)
	}

	evs := pub.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindTicketPrinted || evs[0].Ticket != models.TicketKindQueue {
		t.Errorf("events = %+v, want one ticket.printed", evs)
	}
}

func TestPrintSplitSendsEverySegment(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	svc, _ := newTestService(t, clock.Fake(time.Unix(0, 0)))

	order := sampleOrder()
	order.PrinterIPAddress = printer.Host()
	order.PrinterPort = printer.Port()

	if resp := svc.PrintSplit(context.Background(), order); resp.Error != nil {
		t.Fatalf("PrintSplit() error = %+v", resp.Error)
	}
	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed")
	}
	if n := bytes.Count(printer.Received(), cutCommand); n != 2 {
		t.Errorf("cuts = %d, want 2", n)
	}
}

func TestPrintConsolidated(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	svc, _ := newTestService(t, clock.Fake(time.Unix(0, 0)))

	order := sampleOrder()
	order.PrinterIPAddress = printer.Host()
	order.PrinterPort = printer.Port()

	if resp := svc.PrintConsolidated(context.Background(), order); resp.Error != nil {
		t.Fatalf("PrintConsolidated() error = %+v", resp.Error)
	}
	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed")
	}
	lines := printedLines(printer.Received())
	if len(lines) == 0 || lines[0] != "Ordine n. 1001" {
		t.Errorf("lines = %q, want the order header first", lines)
	}
}

func TestPrintQueueOffline(t *testing.T) {
	printer := escpostest.NewPrinter()
	ticket := ticketFor(printer, 0)
	printer.Close()

	svc, pub := newTestService(t, clock.Fake(time.Unix(0, 0)))

	resp := svc.PrintQueue(context.Background(), ticket)
	wantErrorType(t, resp, models.ErrorTypeOffline)
	if string(resp.RequestID) != `"req-1"` {
		t.Errorf("RequestID = %s, want echoed on failure", resp.RequestID)
	}

	evs := pub.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindTicketFailed || evs[0].ErrorType != models.ErrorTypeOffline {
		t.Errorf("events = %+v, want one ticket.failed", evs)
	}
}

func TestPrintQueueDeviceFault(t *testing.T) {
	tests := []struct {
		name    string
		opts    []escpostest.Option
		wantErr string
	}{
		{
			name:    "paperEnd",
			opts:    []escpostest.Option{escpostest.WithStatus(4, 0x72)},
			wantErr: "PaperEnd",
		},
		{
			name:    "firstFaultWins",
			opts:    []escpostest.Option{escpostest.WithStatus(4, 0x72), escpostest.WithStatus(2, 0x16)},
			wantErr: "PaperEnd",
		},
		{
			name:    "coverOpen",
			opts:    []escpostest.Option{escpostest.WithStatus(2, 0x16)},
			wantErr: "CoverOpen",
		},
		{
			name:    "malformedReply",
			opts:    []escpostest.Option{escpostest.WithStatus(1, 0x00)},
			wantErr: models.ErrorTypeStatusUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer := escpostest.NewPrinter(tt.opts...)
			defer printer.Close()

			svc, _ := newTestService(t, clock.Fake(time.Unix(0, 0)))
			resp := svc.PrintQueue(context.Background(), ticketFor(printer, 0))
			wantErrorType(t, resp, tt.wantErr)

			if !printer.WaitClosed(1, 2*time.Second) {
				t.Fatal("session was not closed")
			}
			if got := printer.Received(); len(got) != 0 {
				t.Errorf("printer received % x, want nothing printed", got)
			}
		})
	}
}

func TestPrintQueueStatusTimeout(t *testing.T) {
	printer := escpostest.NewPrinter(escpostest.WithReplyDelay(300 * time.Millisecond))
	defer printer.Close()

	clk := clock.Fake(time.Unix(0, 0))
	svc, _ := newTestService(t, clk)

	done := make(chan models.PrintResponse, 1)
	go func() {
		done <- svc.PrintQueue(context.Background(), ticketFor(printer, 0))
	}()

	clk.BlockUntil(1)
	clk.Advance(10 * time.Second)

	select {
	case resp := <-done:
		wantErrorType(t, resp, models.ErrorTypeStatusTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("PrintQueue() did not return after the status deadline")
	}

	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed")
	}
	// Let the delayed reply arrive; nothing is printed afterwards.
	time.Sleep(400 * time.Millisecond)
	if got := printer.Received(); len(got) != 0 {
		t.Errorf("printer received % x after timeout, want nothing", got)
	}
}

func TestPrintQueueCanceled(t *testing.T) {
	printer := escpostest.NewPrinter(escpostest.Silent())
	defer printer.Close()

	clk := clock.Fake(time.Unix(0, 0))
	svc, _ := newTestService(t, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.PrintResponse, 1)
	go func() {
		done <- svc.PrintQueue(ctx, ticketFor(printer, 0))
	}()

	clk.BlockUntil(1)
	cancel()

	select {
	case resp := <-done:
		wantErrorType(t, resp, models.ErrorTypeRequestCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("PrintQueue() did not return after cancellation")
	}
	if n := clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d after cancel, want 0", n)
	}
}

func TestPrintQueueWriteFailure(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	dialer := &hookDialer{onPrint: func([]byte) error {
		return errors.New("broken pipe")
	}}
	svc, pub := newTestServiceWith(t, testPrinterConfig(), PrintServiceDeps{
		Dialer: dialer,
		Clock:  clock.Fake(time.Unix(0, 0)),
	})

	resp := svc.PrintQueue(context.Background(), ticketFor(printer, 0))
	wantErrorType(t, resp, models.ErrorTypePrinter)

	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed after the write failed")
	}
	if got := printer.Received(); len(got) != 0 {
		t.Errorf("printer received % x, want nothing", got)
	}
	evs := pub.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindTicketFailed || evs[0].ErrorType != models.ErrorTypePrinter {
		t.Errorf("events = %+v, want one ticket.failed with %s", evs, models.ErrorTypePrinter)
	}
}

func TestPrintQueueCancelWhileRendering(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	rendering := make(chan struct{})
	release := make(chan struct{})
	dialer := &hookDialer{onPrint: func([]byte) error {
		close(rendering)
		<-release
		return nil
	}}
	svc, pub := newTestServiceWith(t, testPrinterConfig(), PrintServiceDeps{
		Dialer: dialer,
		Clock:  clock.Fake(time.Unix(0, 0)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan models.PrintResponse, 1)
	go func() {
		done <- svc.PrintQueue(ctx, ticketFor(printer, 0))
	}()

	select {
	case <-rendering:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started printing")
	}
	cancel()

	select {
	case resp := <-done:
		t.Fatalf("PrintQueue() returned %+v while the ticket was still being written", resp.Error)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case resp := <-done:
		if resp.Error != nil {
			t.Fatalf("PrintQueue() error = %+v, want the printed result", resp.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("PrintQueue() did not return after the write finished")
	}
	if !printer.WaitClosed(1, 2*time.Second) {
		t.Fatal("session was not closed")
	}
	if len(printer.Received()) == 0 {
		t.Error("nothing printed")
	}
	if evs := pub.Events(); len(evs) != 1 || evs[0].Kind != events.KindTicketPrinted {
		t.Errorf("events = %+v, want one ticket.printed", evs)
	}
}

func TestPrintQueueDeadlineRace(t *testing.T) {
	const jobs = 40

	cfg := testPrinterConfig()
	cfg.StatusTimeout = 40 * time.Millisecond
	svc, pub := newTestServiceWith(t, cfg, PrintServiceDeps{Clock: clock.Real()})

	printers := make([]*escpostest.Printer, jobs)
	for i := range printers {
		// Four replies per status round, so the round takes 0 to 80ms.
		delay := time.Duration(rand.IntN(20)) * time.Millisecond
		printers[i] = escpostest.NewPrinter(escpostest.WithReplyDelay(delay))
		defer printers[i].Close()
	}

	var wg sync.WaitGroup
	responses := make([]models.PrintResponse, jobs)
	for i := range printers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = svc.PrintQueue(context.Background(), ticketFor(printers[i], i))
		}(i)
	}
	wg.Wait()

	for i, resp := range responses {
		printer := printers[i]
		if !printer.WaitClosed(1, 2*time.Second) {
			t.Errorf("job %d: session was not closed", i)
			continue
		}
		switch {
		case resp.Error == nil:
			if len(printer.Received()) == 0 {
				t.Errorf("job %d succeeded but printed nothing", i)
			}
		case resp.Error.ErrorType == models.ErrorTypeStatusTimeout:
			if got := printer.Received(); len(got) != 0 {
				t.Errorf("job %d timed out but printed % x", i, got)
			}
		default:
			t.Errorf("job %d error = %+v, want success or %s", i, resp.Error, models.ErrorTypeStatusTimeout)
		}
		if n := printer.Accepted(); n != 1 {
			t.Errorf("job %d: connections = %d, want 1", i, n)
		}
	}

	ids := make(map[uuid.UUID]int)
	for _, ev := range pub.Events() {
		ids[ev.ID]++
	}
	if len(ids) != jobs {
		t.Errorf("distinct job events = %d, want %d", len(ids), jobs)
	}
	for id, n := range ids {
		if n != 1 {
			t.Errorf("job %s published %d events, want 1", id, n)
		}
	}
}

func TestPrintQueueConcurrentJobs(t *testing.T) {
	printer := escpostest.NewPrinter()
	defer printer.Close()

	svc, pub := newTestService(t, clock.Real())

	const jobs = 20
	var wg sync.WaitGroup
	responses := make([]models.PrintResponse, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = svc.PrintQueue(context.Background(), ticketFor(printer, i))
		}(i)
	}
	wg.Wait()

	for i, resp := range responses {
		if resp.Error != nil {
			t.Errorf("job %d error = %+v", i, resp.Error)
		}
	}
	if !printer.WaitClosed(jobs, 5*time.Second) {
		t.Fatal("not every session was closed")
	}
	if n := printer.Accepted(); n != jobs {
		t.Errorf("connections = %d, want one per job (%d)", n, jobs)
	}

	ids := make(map[uuid.UUID]bool)
	for _, ev := range pub.Events() {
		ids[ev.ID] = true
	}
	if len(ids) != jobs {
		t.Errorf("distinct job events = %d, want %d", len(ids), jobs)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name         string
		opts         []escpostest.Option
		wantHealthy  bool
		wantFaults   int
		wantWarnings int
	}{
		{name: "healthy", wantHealthy: true},
		{name: "paperNearEnd", opts: []escpostest.Option{escpostest.WithStatus(4, 0x1e)}, wantHealthy: true, wantWarnings: 1},
		{name: "coverOpen", opts: []escpostest.Option{escpostest.WithStatus(2, 0x16)}, wantFaults: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer := escpostest.NewPrinter(tt.opts...)
			defer printer.Close()

			svc, pub := newTestService(t, clock.Fake(time.Unix(0, 0)))
			resp := svc.CheckStatus(context.Background(), models.PrinterStatusRequest{
				PrinterIPAddress: printer.Host(),
				PrinterPort:      printer.Port(),
			})

			if resp.Healthy != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v", resp.Healthy, tt.wantHealthy)
			}
			if len(resp.Faults) != tt.wantFaults || len(resp.Warnings) != tt.wantWarnings {
				t.Errorf("faults %v warnings %v, want %d and %d", resp.Faults, resp.Warnings, tt.wantFaults, tt.wantWarnings)
			}
			if resp.Error != nil {
				t.Errorf("Error = %+v, want nil", resp.Error)
			}
			if got := printer.Received(); len(got) != 0 {
				t.Errorf("status probe printed % x", got)
			}
			if evs := pub.Events(); len(evs) != 1 || evs[0].Kind != events.KindPrinterStatus {
				t.Errorf("events = %+v, want one printer.status", evs)
			}
		})
	}
}

func TestCheckStatusOffline(t *testing.T) {
	printer := escpostest.NewPrinter()
	host, port := printer.Host(), printer.Port()
	printer.Close()

	svc, _ := newTestService(t, clock.Fake(time.Unix(0, 0)))
	resp := svc.CheckStatus(context.Background(), models.PrinterStatusRequest{PrinterIPAddress: host, PrinterPort: port})

	if resp.Healthy {
		t.Error("Healthy = true for an unreachable printer")
	}
	if resp.Error == nil || resp.Error.ErrorType != models.ErrorTypeOffline {
		t.Errorf("Error = %+v, want %s", resp.Error, models.ErrorTypeOffline)
	}
}

func TestNewPrintServiceUnknownLocale(t *testing.T) {
	_, err := NewPrintService(config.Printer{}, config.Ticket{Locale: "xx"}, PrintServiceDeps{})
	if err == nil {
		t.Error("NewPrintService() with unknown locale succeeded")
	}
}
