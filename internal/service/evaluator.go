package service

import (
	"fmt"

	"github.com/pizza-nz/ticket-printer/internal/escpos"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

// knownFaults are the device conditions with their own error type. Anything
// else a status round reports is classified as an unknown fault.
var knownFaults = map[escpos.FaultCode]bool{
	escpos.FaultPrinterOffline:        true,
	escpos.FaultWaitingOnlineRecovery: true,
	escpos.FaultFeedButtonPressed:     true,
	escpos.FaultPaperNearEnd:          true,
	escpos.FaultPaperEnd:              true,
	escpos.FaultCoverOpen:             true,
	escpos.FaultPaperFeeding:          true,
	escpos.FaultPaperEndStop:          true,
	escpos.FaultErrorOccurred:         true,
	escpos.FaultRecoverableError:      true,
	escpos.FaultAutocutterError:       true,
	escpos.FaultUnrecoverableError:    true,
	escpos.FaultAutoRecoverableError:  true,
}

// Evaluator turns status reports and job failures into the classified
// errors returned to callers.
type Evaluator struct {
	locale Locale
}

func NewEvaluator(locale Locale) *Evaluator {
	return &Evaluator{locale: locale}
}

// Evaluate returns one classified error per error-level bit, in report
// order. An empty result means the printer can print.
func (e *Evaluator) Evaluate(report escpos.StatusReport) []models.PrintError {
	return e.classifyAll(report.Errors())
}

// Warnings classifies the warning-level bits, which never block printing.
func (e *Evaluator) Warnings(report escpos.StatusReport) []models.PrintError {
	return e.classifyAll(report.Warnings())
}

func (e *Evaluator) classifyAll(bits []escpos.Bit) []models.PrintError {
	out := make([]models.PrintError, 0, len(bits))
	for _, b := range bits {
		out = append(out, e.Classify(b.Code))
	}
	return out
}

// Classify maps a device fault code to its error.
func (e *Evaluator) Classify(code escpos.FaultCode) models.PrintError {
	if !knownFaults[code] {
		return models.PrintError{
			Message:   fmt.Sprintf("%s (%s)", e.locale.Message(models.ErrorTypeUnknownFault), code),
			ErrorType: models.ErrorTypeUnknownFault,
		}
	}
	return models.PrintError{
		Message:   e.locale.Message(string(code)),
		ErrorType: string(code),
	}
}

// Failure builds the error for a job that failed outside the device's
// status report, such as models.ErrorTypeOffline.
func (e *Evaluator) Failure(errorType string) *models.PrintError {
	return &models.PrintError{
		Message:   e.locale.Message(errorType),
		ErrorType: errorType,
	}
}
