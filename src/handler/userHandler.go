package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/engine"
	"atcpay/src/model"
)

type walletService interface {
	WalletBalances(ctx context.Context, userID, walletType string) ([]engine.WalletBalance, error)
	Withdraw(ctx context.Context, req engine.WithdrawRequest) (*model.Transaction, error)
	WithdrawHistory(ctx context.Context, userID, publicKey string) ([]model.Transaction, error)
}

func WalletBalancesHandler(svc walletService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallets, err := svc.WalletBalances(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "type"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"wallets": wallets})
	}
}

// WithdrawHandler pays out of a user's holding wallet. The body carries destination and amount.
func WithdrawHandler(svc walletService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload engine.WithdrawRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid withdraw payload")
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": []string{"invalid payload"}})
			return
		}
		payload.UserID = chi.URLParam(r, "userId")
		payload.PublicKey = chi.URLParam(r, "publicKey")

		record, err := svc.Withdraw(r.Context(), payload)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func WithdrawHistoryHandler(svc walletService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.WithdrawHistory(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "publicKey"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if data == nil {
			data = []model.Transaction{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
	}
}
