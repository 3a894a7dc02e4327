package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TicketKind selects the layout a print job renders.
type TicketKind string

const (
	TicketKindQueue        TicketKind = "queue"
	TicketKindConsolidated TicketKind = "consolidated"
	TicketKindSplit        TicketKind = "split"
)

// Label is printable text the caller may send as a JSON string or number.
type Label string

// UnmarshalJSON accepts strings and numbers verbatim.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("label must be a string or a number: %w", err)
	}
	*l = Label(n.String())
	return nil
}

// TicketRequest holds the fields every print request carries. The
// correlation ids are opaque and echoed back byte for byte.
type TicketRequest struct {
	RequestID         json.RawMessage `json:"requestId"`
	DepartmentQueueID json.RawMessage `json:"departmentQueueId"`
	LedID             json.RawMessage `json:"ledId"`
	PrinterIPAddress  string          `json:"printerIpAddress"`
	PrinterPort       int             `json:"printerPort,omitempty"`
}

// Validate checks the fields needed to reach the printer.
func (r TicketRequest) Validate() error {
	if r.PrinterIPAddress == "" {
		return errors.New("printerIpAddress is required")
	}
	if r.PrinterPort < 0 || r.PrinterPort > 65535 {
		return fmt.Errorf("printerPort %d out of range", r.PrinterPort)
	}
	return nil
}

// QueueTicket is a numbered ticket handed out at a department queue.
type QueueTicket struct {
	TicketRequest
	DepartmentName    string `json:"departmentName"`
	CurrentLastNumber Label  `json:"currentLastNumber"`
	QueueLength       *int   `json:"queueLength,omitempty"`
}

func (t QueueTicket) Validate() error {
	if err := t.TicketRequest.Validate(); err != nil {
		return err
	}
	if t.QueueLength != nil && *t.QueueLength < 0 {
		return fmt.Errorf("queueLength %d must not be negative", *t.QueueLength)
	}
	return nil
}

// Ahead returns how many people are in front of the ticket holder.
func (t QueueTicket) Ahead() int {
	if t.QueueLength == nil {
		return 0
	}
	return *t.QueueLength
}

// OrderTicket is an itemized order, printed either as one ticket or split
// into one segment per category.
type OrderTicket struct {
	TicketRequest
	ID         Label      `json:"id"`
	Customer   string     `json:"customer"`
	Address    string     `json:"address"`
	BookedSlot string     `json:"bookedSlot"`
	Products   Categories `json:"products"`
}

func (t OrderTicket) Validate() error {
	if err := t.TicketRequest.Validate(); err != nil {
		return err
	}
	if len(t.Products) == 0 {
		return errors.New("products must contain at least one category")
	}
	for _, c := range t.Products {
		if c.Name == "" {
			return errors.New("category name must not be empty")
		}
	}
	return nil
}

// Addon is an extra attached to a product.
type Addon struct {
	Name string `json:"name"`
}

// Product is one order line.
type Product struct {
	Name        string      `json:"name"`
	Quantity    Label       `json:"quantity"`
	UnitMeasure string      `json:"unitMeasure"`
	Addons      []Addon     `json:"addons"`
}

// Category groups the products of one kitchen or bar station.
type Category struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// Categories is the products mapping of an order, in the order the keys
// appear in the request body.
type Categories []Category

// UnmarshalJSON decodes a JSON object of category name to product list,
// keeping key order.
func (c *Categories) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("products must be an object of category name to product list")
	}

	var out Categories
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected category key %v", keyTok)
		}
		var products []Product
		if err := dec.Decode(&products); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		out = append(out, Category{Name: name, Products: products})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = out
	return nil
}

// MarshalJSON encodes the categories back into an object in order.
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cat.Name)
		if err != nil {
			return nil, err
		}
		products := cat.Products
		if products == nil {
			products = []Product{}
		}
		value, err := json.Marshal(products)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns the category names in order.
func (c Categories) Names() []string {
	names := make([]string, len(c))
	for i, cat := range c {
		names[i] = cat.Name
	}
	return names
}
