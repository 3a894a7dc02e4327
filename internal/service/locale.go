package service

import (
	"fmt"
	"sort"

	"github.com/pizza-nz/ticket-printer/internal/escpos"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

// Locale holds the phrasing printed on tickets and returned in error
// messages for one language.
type Locale struct {
	Code string

	Department  string
	YourNumber  string
	NobodyAhead string
	OneAhead    string
	ManyAhead   string // takes the number of people

	Order     string // takes the order id
	Customer  string
	Address   string
	Slot      string
	Continues string

	// Messages is keyed by error type: a device fault code or one of the
	// models.ErrorType constants.
	Messages map[string]string
}

// Ahead returns the line telling the holder how many people precede them.
func (l Locale) Ahead(n int) string {
	switch n {
	case 0:
		return l.NobodyAhead
	case 1:
		return l.OneAhead
	default:
		return fmt.Sprintf(l.ManyAhead, n)
	}
}

// Message returns the message for errorType, or the unknown fault message.
func (l Locale) Message(errorType string) string {
	if msg, ok := l.Messages[errorType]; ok {
		return msg
	}
	return l.Messages[models.ErrorTypeUnknownFault]
}

var locales = map[string]Locale{
	"it": {
		Code:        "it",
		Department:  "Reparto",
		YourNumber:  "Il tuo numero è",
		NobodyAhead: "Davanti a te non ci sono persone",
		OneAhead:    "Davanti a te c'è una persona",
		ManyAhead:   "Davanti a te ci sono %d persone",
		Order:       "Ordine n. %s",
		Customer:    "Cliente",
		Address:     "Indirizzo",
		Slot:        "Orario",
		Continues:   "Continua:",
		Messages: map[string]string{
			models.ErrorTypeOffline:           "Impossibile connettersi alla stampante: la stampante è spenta, non è collegata alla rete oppure l'indirizzo IP è errato",
			models.ErrorTypeStatusTimeout:     "La stampante è connessa ma non risponde alla richiesta di stato",
			models.ErrorTypeStatusUnavailable: "Impossibile leggere lo stato della stampante",
			models.ErrorTypePrinter:           "Impossibile stampare il biglietto",
			models.ErrorTypeRequestCanceled:   "Richiesta annullata prima della stampa",
			models.ErrorTypeUnknownFault:      "La stampante ha segnalato un errore sconosciuto",

			string(escpos.FaultPrinterOffline):        "La stampante è offline",
			string(escpos.FaultWaitingOnlineRecovery): "La stampante è in attesa di tornare online",
			string(escpos.FaultFeedButtonPressed):     "Il tasto di avanzamento carta è premuto",
			string(escpos.FaultPaperNearEnd):          "La carta sta per finire",
			string(escpos.FaultPaperEnd):              "La carta è finita",
			string(escpos.FaultCoverOpen):             "Il coperchio della stampante è aperto",
			string(escpos.FaultPaperFeeding):          "La carta è in avanzamento",
			string(escpos.FaultPaperEndStop):          "Stampa interrotta per fine carta",
			string(escpos.FaultErrorOccurred):         "La stampante ha segnalato un errore",
			string(escpos.FaultRecoverableError):      "Si è verificato un errore recuperabile",
			string(escpos.FaultAutocutterError):       "Errore della taglierina",
			string(escpos.FaultUnrecoverableError):    "Si è verificato un errore non recuperabile",
			string(escpos.FaultAutoRecoverableError):  "Si è verificato un errore, la stampante riprenderà da sola",
		},
	},
	"en": {
		Code:        "en",
		Department:  "Department",
		YourNumber:  "Your number is",
		NobodyAhead: "There are no people ahead of you",
		OneAhead:    "There is 1 person ahead of you",
		ManyAhead:   "There are %d people ahead of you",
		Order:       "Order #%s",
		Customer:    "Customer",
		Address:     "Address",
		Slot:        "Slot",
		Continues:   "Continues:",
		Messages: map[string]string{
			models.ErrorTypeOffline:           "Cannot connect to the printer: it is off, not on the network, or the IP address is wrong",
			models.ErrorTypeStatusTimeout:     "The printer is connected but did not answer the status request",
			models.ErrorTypeStatusUnavailable: "Cannot read the printer status",
			models.ErrorTypePrinter:           "Cannot print the ticket",
			models.ErrorTypeRequestCanceled:   "Request canceled before printing",
			models.ErrorTypeUnknownFault:      "The printer reported an unknown fault",

			string(escpos.FaultPrinterOffline):        "The printer is offline",
			string(escpos.FaultWaitingOnlineRecovery): "The printer is waiting to come back online",
			string(escpos.FaultFeedButtonPressed):     "The paper feed button is pressed",
			string(escpos.FaultPaperNearEnd):          "Paper is running low",
			string(escpos.FaultPaperEnd):              "Out of paper",
			string(escpos.FaultCoverOpen):             "The printer cover is open",
			string(escpos.FaultPaperFeeding):          "Paper is being fed",
			string(escpos.FaultPaperEndStop):          "Printing stopped at paper end",
			string(escpos.FaultErrorOccurred):         "The printer reported an error",
			string(escpos.FaultRecoverableError):      "A recoverable error occurred",
			string(escpos.FaultAutocutterError):       "Autocutter error",
			string(escpos.FaultUnrecoverableError):    "An unrecoverable error occurred",
			string(escpos.FaultAutoRecoverableError):  "An error occurred, the printer will recover on its own",
		},
	},
}

// LookupLocale returns the catalog for code.
func LookupLocale(code string) (Locale, error) {
	l, ok := locales[code]
	if !ok {
		return Locale{}, fmt.Errorf("unknown locale %q, have %v", code, LocaleCodes())
	}
	return l, nil
}

// LocaleCodes lists the supported locale codes.
func LocaleCodes() []string {
	codes := make([]string, 0, len(locales))
	for code := range locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
