package service

import (
	"fmt"
	"strings"

	"github.com/pizza-nz/ticket-printer/internal/escpos"
	"github.com/pizza-nz/ticket-printer/internal/models"
	"github.com/pizza-nz/ticket-printer/internal/sanitize"
)

// Renderer lays tickets out as ESC/POS commands. Every piece of text goes
// through sanitize.Sanitize before reaching the printer.
type Renderer struct {
	locale  Locale
	width   int
	cutFeed int
}

// NewRenderer returns a renderer for paper width columns wide that feeds
// cutFeed lines before each cut.
func NewRenderer(locale Locale, width, cutFeed int) *Renderer {
	return &Renderer{
		locale:  locale,
		width:   width,
		cutFeed: cutFeed,
	}
}

// Queue renders a numbered queue ticket.
func (r *Renderer) Queue(p *escpos.Printer, t models.QueueTicket) {
	p.Font(escpos.FontA).Align(escpos.AlignCenter)

	p.Size(2, 2)
	r.text(p, r.locale.Department)
	r.text(p, t.DepartmentName)

	p.Size(1, 1)
	r.text(p, r.locale.YourNumber)

	p.Size(7, 7)
	r.text(p, string(t.CurrentLastNumber))

	p.Size(1, 1)
	r.text(p, r.locale.Ahead(t.Ahead()))

	p.Feed(2)
	p.Cut(escpos.PartialCut, r.cutFeed)
}

// Consolidated renders the whole order on one ticket.
func (r *Renderer) Consolidated(p *escpos.Printer, t models.OrderTicket) {
	r.header(p, t)
	for _, c := range t.Products {
		r.category(p, c)
		p.Feed(1)
	}
	p.Cut(escpos.PartialCut, r.cutFeed)
}

// Split renders one cut segment per category, each repeating the order
// header and naming the categories printed on the other segments.
func (r *Renderer) Split(p *escpos.Printer, t models.OrderTicket) {
	names := t.Products.Names()
	for i, c := range t.Products {
		r.header(p, t)
		r.category(p, c)
		r.separator(p)

		others := make([]string, 0, len(names)-1)
		others = append(others, names[:i]...)
		others = append(others, names[i+1:]...)
		if len(others) > 0 {
			r.text(p, r.locale.Continues+" "+strings.Join(others, ", "))
		}

		p.Cut(escpos.PartialCut, r.cutFeed)
	}
	p.Feed(1)
}

func (r *Renderer) header(p *escpos.Printer, t models.OrderTicket) {
	p.Font(escpos.FontA).Align(escpos.AlignCenter)

	p.Size(2, 2)
	r.text(p, fmt.Sprintf(r.locale.Order, t.ID))

	p.Size(1, 1).Align(escpos.AlignLeft)
	r.field(p, r.locale.Customer, t.Customer)
	r.field(p, r.locale.Address, t.Address)
	r.field(p, r.locale.Slot, t.BookedSlot)
	r.separator(p)
}

func (r *Renderer) category(p *escpos.Printer, c models.Category) {
	p.Bold(true).Size(1, 2)
	r.text(p, c.Name)
	p.Bold(false).Size(1, 1)

	for _, product := range c.Products {
		r.text(p, productLine(product))
		for _, addon := range product.Addons {
			r.text(p, "  +"+addon.Name)
		}
	}
}

// field prints "label: value", or nothing when value is empty.
func (r *Renderer) field(p *escpos.Printer, label, value string) {
	if value == "" {
		return
	}
	r.text(p, label+": "+value)
}

func (r *Renderer) separator(p *escpos.Printer) {
	p.Text(strings.Repeat("-", r.width))
}

func (r *Renderer) text(p *escpos.Printer, s string) {
	p.Text(sanitize.Sanitize(s))
}

// productLine formats "<quantity> <unit> <name>", skipping empty parts.
func productLine(product models.Product) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{string(product.Quantity), product.UnitMeasure, product.Name} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
