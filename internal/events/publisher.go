// Package events announces the outcome of print jobs to interested
// listeners such as dashboards and queue displays.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"

	"github.com/pizza-nz/ticket-printer/internal/models"
)

// Publisher delivers an encoded event on topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg []byte) error
}

type Kind string

const (
	KindTicketPrinted Kind = "ticket.printed"
	KindTicketFailed  Kind = "ticket.failed"
	KindPrinterStatus Kind = "printer.status"
)

// JobEvent describes a finished job. It is published after the caller's
// response has been decided.
type JobEvent struct {
	ID                uuid.UUID         `json:"id"`
	Kind              Kind              `json:"kind"`
	Ticket            models.TicketKind `json:"ticket,omitempty"`
	RequestID         json.RawMessage   `json:"requestId,omitempty"`
	DepartmentQueueID json.RawMessage   `json:"departmentQueueId,omitempty"`
	LedID             json.RawMessage   `json:"ledId,omitempty"`
	Printer           string            `json:"printer"`
	ErrorType         string            `json:"errorType,omitempty"`
	Message           string            `json:"message,omitempty"`
	At                time.Time         `json:"at"`
}

// Emit encodes ev and publishes it. A nil publisher discards the event.
func Emit(ctx context.Context, p Publisher, topic string, ev JobEvent) error {
	if p == nil {
		return nil
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return p.Publish(ctx, topic, msg)
}

// Multi publishes to every publisher in turn and reports all failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, msg []byte) error {
	var result error
	for _, p := range m {
		if err := p.Publish(ctx, topic, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(topic, msg)
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
