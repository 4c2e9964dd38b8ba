package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/engine"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps engine errors onto status codes. Unknown errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var subErr *engine.LedgerSubmissionError

	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": []string{err.Error()}})
	case errors.Is(err, engine.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "order not found"})
	case errors.Is(err, engine.ErrWalletNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "source wallet not found"})
	case errors.Is(err, engine.ErrInsufficientBalance):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
	case errors.As(err, &subErr):
		logger.WithError(err).WithField("path", r.URL.Path).Warn("ledger rejected request")
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "ledger submission failed", "reason": subErr.Reason})
	default:
		logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
