package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error types that are not device fault codes.
const (
	ErrorTypeOffline           = "OfflineCauseStatus"
	ErrorTypeStatusTimeout     = "StatusCheckTimeout"
	ErrorTypeStatusUnavailable = "StatusUnavailable"
	ErrorTypePrinter           = "PrinterError"
	ErrorTypeRequestCanceled   = "RequestCanceled"
	ErrorTypeUnknownFault      = "UnknownFault"
)

// PrintError is the classification of a failed print job.
type PrintError struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
}

func (e *PrintError) Error() string {
	return e.ErrorType + ": " + e.Message
}

// PrintResponse is the single answer to a print request.
type PrintResponse struct {
	RequestID         json.RawMessage `json:"requestId"`
	DepartmentQueueID json.RawMessage `json:"departmentQueueId"`
	LedID             json.RawMessage `json:"ledId"`
	Error             *PrintError     `json:"error,omitempty"`
}

// Response builds the answer to r, carrying perr when the job failed.
func (r TicketRequest) Response(perr *PrintError) PrintResponse {
	return PrintResponse{
		RequestID:         r.RequestID,
		DepartmentQueueID: r.DepartmentQueueID,
		LedID:             r.LedID,
		Error:             perr,
	}
}

// PrinterStatusRequest asks for a device's status without printing.
type PrinterStatusRequest struct {
	PrinterIPAddress string `json:"printerIpAddress"`
	PrinterPort      int    `json:"printerPort,omitempty"`
}

func (r PrinterStatusRequest) Validate() error {
	if r.PrinterIPAddress == "" {
		return errors.New("printerIpAddress is required")
	}
	if r.PrinterPort < 0 || r.PrinterPort > 65535 {
		return fmt.Errorf("printerPort %d out of range", r.PrinterPort)
	}
	return nil
}

// PrinterStatusResponse lists every classified condition the device
// reported.
type PrinterStatusResponse struct {
	Printer  string       `json:"printer"`
	Healthy  bool         `json:"healthy"`
	Faults   []PrintError `json:"faults"`
	Warnings []PrintError `json:"warnings"`
	Error    *PrintError  `json:"error,omitempty"`
}
