package connectors

import (
	"fmt"
	"strings"
)

// LedgerResultCodes maps ledger transaction and operation result codes to human-readable messages.
var LedgerResultCodes = map[string]string{
	"tx_failed":               "one of the operations failed",
	"tx_too_early":            "ledger close time before min time bound",
	"tx_too_late":             "ledger close time after max time bound",
	"tx_missing_operation":    "no operation was specified",
	"tx_bad_seq":              "sequence number does not match source account",
	"tx_bad_auth":             "too few valid signatures or wrong network",
	"tx_insufficient_balance": "fee would bring account below reserve",
	"tx_no_source_account":    "source account not found",
	"tx_insufficient_fee":     "fee is too small",
	"tx_bad_auth_extra":       "unused signatures attached to transaction",
	"tx_internal_error":       "unknown error",

	"op_success":            "payment applied",
	"op_malformed":          "invalid destination or amount",
	"op_underfunded":        "source account does not hold enough of the asset",
	"op_src_not_authorized": "source not authorized to transfer the asset",
	"op_src_no_trust":       "source does not trust the asset",
	"op_no_destination":     "destination account does not exist",
	"op_no_trust":           "destination does not trust the asset",
	"op_not_authorized":     "destination not authorized to hold the asset",
	"op_line_full":          "destination would exceed its trust limit",
	"op_no_issuer":          "asset issuer does not exist",
	"op_low_reserve":        "account would fall below its reserve",
	"op_already_exists":     "account already exists",
}

// GetErrorMsg returns a human-readable message for a ledger result code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code string) string {
	if msg, ok := LedgerResultCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_LEDGER_RESULT_%s", code)
}

type ResultCodes struct {
	Transaction string   `json:"transaction"`
	Operations  []string `json:"operations,omitempty"`
}

// LedgerError is a rejection reported by the ledger bridge.
type LedgerError struct {
	Status      int
	Title       string
	ResultCodes ResultCodes
	Raw         []byte
}

// Reason is the structured, loggable cause: the transaction code followed by the operation codes.
func (e *LedgerError) Reason() string {
	if e.ResultCodes.Transaction == "" && len(e.ResultCodes.Operations) == 0 {
		return e.Title
	}
	parts := []string{e.ResultCodes.Transaction}
	parts = append(parts, e.ResultCodes.Operations...)
	return strings.Join(parts, ",")
}

func (e *LedgerError) Error() string {
	msgs := make([]string, 0, len(e.ResultCodes.Operations)+1)
	if e.ResultCodes.Transaction != "" {
		msgs = append(msgs, GetErrorMsg(e.ResultCodes.Transaction))
	}
	for _, op := range e.ResultCodes.Operations {
		if op != "op_success" {
			msgs = append(msgs, GetErrorMsg(op))
		}
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("ledger error %d: %s", e.Status, e.Title)
	}
	return fmt.Sprintf("ledger error %d: %s (%s)", e.Status, e.Title, strings.Join(msgs, "; "))
}
