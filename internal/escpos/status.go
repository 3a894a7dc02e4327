package escpos

import (
	"errors"
	"fmt"
)

// ErrMalformedStatus is returned when a status reply does not carry the
// fixed bit pattern every DLE EOT response has.
var ErrMalformedStatus = errors.New("escpos: malformed status byte")

// StatusClass names the DLE EOT n query a sub-report answers.
type StatusClass string

const (
	PrinterStatus         StatusClass = "PrinterStatus"
	OfflineCauseStatus    StatusClass = "OfflineCauseStatus"
	ErrorCauseStatus      StatusClass = "ErrorCauseStatus"
	RollPaperSensorStatus StatusClass = "RollPaperSensorStatus"
)

// Level classifies a single status bit.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// FaultCode identifies a device condition independent of which bit
// reported it.
type FaultCode string

const (
	FaultPrinterOffline        FaultCode = "PrinterOffline"
	FaultWaitingOnlineRecovery FaultCode = "WaitingOnlineRecovery"
	FaultFeedButtonPressed     FaultCode = "FeedButtonPressed"
	FaultPaperNearEnd          FaultCode = "PaperNearEnd"
	FaultPaperEnd              FaultCode = "PaperEnd"
	FaultCoverOpen             FaultCode = "CoverOpen"
	FaultPaperFeeding          FaultCode = "PaperFeeding"
	FaultPaperEndStop          FaultCode = "PaperEndStop"
	FaultErrorOccurred         FaultCode = "ErrorOccurred"
	FaultRecoverableError      FaultCode = "RecoverableError"
	FaultAutocutterError       FaultCode = "AutocutterError"
	FaultUnrecoverableError    FaultCode = "UnrecoverableError"
	FaultAutoRecoverableError  FaultCode = "AutoRecoverableError"
)

// Bit is one decoded condition of a status byte.
type Bit struct {
	Bit   int       `json:"bit"`
	Set   bool      `json:"set"`
	Code  FaultCode `json:"code"`
	Label string    `json:"label"`
	Level Level     `json:"status"`
}

// SubReport is the decoded answer to one DLE EOT query.
type SubReport struct {
	Class StatusClass `json:"className"`
	Byte  byte        `json:"byte"`
	Bits  []Bit       `json:"statuses"`
}

// StatusReport is everything the device said in one status round, in query
// order.
type StatusReport struct {
	Reports []SubReport `json:"reports"`
}

// Errors returns the bits reporting an error, in report order.
func (r StatusReport) Errors() []Bit {
	return r.withLevel(LevelError)
}

// Warnings returns the bits reporting a warning, in report order.
func (r StatusReport) Warnings() []Bit {
	return r.withLevel(LevelWarning)
}

func (r StatusReport) withLevel(level Level) []Bit {
	var out []Bit
	for _, sub := range r.Reports {
		for _, b := range sub.Bits {
			if b.Level == level {
				out = append(out, b)
			}
		}
	}
	return out
}

type bitSpec struct {
	bits       []int
	code       FaultCode
	clearLabel string
	setLabel   string
	setLevel   Level
}

type classSpec struct {
	class StatusClass
	query byte
	bits  []bitSpec
}

// statusQueries is the order a status round queries the device in.
var statusQueries = []classSpec{
	{
		class: PrinterStatus,
		query: 1,
		bits: []bitSpec{
			{bits: []int{3}, code: FaultPrinterOffline, clearLabel: "Online", setLabel: "Offline", setLevel: LevelError},
			{bits: []int{5}, code: FaultWaitingOnlineRecovery, clearLabel: "Not waiting for online recovery", setLabel: "Waiting for online recovery", setLevel: LevelError},
			{bits: []int{6}, code: FaultFeedButtonPressed, clearLabel: "Paper feed button is not being pressed", setLabel: "Paper feed button is being pressed", setLevel: LevelWarning},
		},
	},
	{
		class: RollPaperSensorStatus,
		query: 4,
		bits: []bitSpec{
			{bits: []int{2, 3}, code: FaultPaperNearEnd, clearLabel: "Roll paper near-end sensor: paper adequate", setLabel: "Roll paper near-end sensor: paper near end", setLevel: LevelWarning},
			{bits: []int{5, 6}, code: FaultPaperEnd, clearLabel: "Roll paper end sensor: paper present", setLabel: "Roll paper end sensor: paper not present", setLevel: LevelError},
		},
	},
	{
		class: OfflineCauseStatus,
		query: 2,
		bits: []bitSpec{
			{bits: []int{2}, code: FaultCoverOpen, clearLabel: "Cover is closed", setLabel: "Cover is open", setLevel: LevelError},
			{bits: []int{3}, code: FaultPaperFeeding, clearLabel: "Paper is not being fed by the feed button", setLabel: "Paper is being fed by the feed button", setLevel: LevelWarning},
			{bits: []int{5}, code: FaultPaperEndStop, clearLabel: "No paper-end stop", setLabel: "Printing stops due to a paper-end", setLevel: LevelError},
			{bits: []int{6}, code: FaultErrorOccurred, clearLabel: "No error", setLabel: "Error occurred", setLevel: LevelError},
		},
	},
	{
		class: ErrorCauseStatus,
		query: 3,
		bits: []bitSpec{
			{bits: []int{2}, code: FaultRecoverableError, clearLabel: "No recoverable error", setLabel: "Recoverable error occurred", setLevel: LevelError},
			{bits: []int{3}, code: FaultAutocutterError, clearLabel: "No autocutter error", setLabel: "Autocutter error occurred", setLevel: LevelError},
			{bits: []int{5}, code: FaultUnrecoverableError, clearLabel: "No unrecoverable error", setLabel: "Unrecoverable error occurred", setLevel: LevelError},
			{bits: []int{6}, code: FaultAutoRecoverableError, clearLabel: "No auto-recoverable error", setLabel: "Auto-recoverable error occurred", setLevel: LevelError},
		},
	},
}

// Bits 0 and 7 are always clear and bits 1 and 4 always set in a status
// reply.
const (
	fixedMask  = 0x93
	fixedValue = 0x12
)

// ParseStatus decodes the reply byte to the DLE EOT query for class.
func ParseStatus(class StatusClass, b byte) (SubReport, error) {
	spec, ok := lookupClass(class)
	if !ok {
		return SubReport{}, fmt.Errorf("escpos: unknown status class %q", class)
	}
	if b&fixedMask != fixedValue {
		return SubReport{}, fmt.Errorf("%w: %s 0x%02x", ErrMalformedStatus, class, b)
	}

	sub := SubReport{Class: class, Byte: b}
	for _, bs := range spec.bits {
		set := false
		for _, n := range bs.bits {
			if b&(1<<n) != 0 {
				set = true
			}
		}
		bit := Bit{Bit: bs.bits[0], Set: set, Code: bs.code, Label: bs.clearLabel, Level: LevelOK}
		if set {
			bit.Label = bs.setLabel
			bit.Level = bs.setLevel
		}
		sub.Bits = append(sub.Bits, bit)
	}
	return sub, nil
}

func lookupClass(class StatusClass) (classSpec, bool) {
	for _, spec := range statusQueries {
		if spec.class == class {
			return spec, true
		}
	}
	return classSpec{}, false
}

// StatusQuery returns the DLE EOT command for class.
func StatusQuery(class StatusClass) []byte {
	spec, ok := lookupClass(class)
	if !ok {
		return nil
	}
	return []byte{dle, eot, spec.query}
}

// StatusClasses returns the classes a status round queries, in order.
func StatusClasses() []StatusClass {
	out := make([]StatusClass, len(statusQueries))
	for i, spec := range statusQueries {
		out[i] = spec.class
	}
	return out
}
