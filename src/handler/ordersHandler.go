package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/auth"
	"atcpay/src/engine"
	"atcpay/src/mapper"
	"atcpay/src/model"
)

type orderCreator interface {
	CreateOrder(ctx context.Context, req engine.CreateOrderRequest) (*model.Order, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]model.Order, error)
}

type priceReader interface {
	Prices(ctx context.Context) (*engine.Prices, error)
}

// CreateOrderHandler prices a new order for the authenticated API client and returns its
// public view, including the deposit address to pay into.
func CreateOrderHandler(svc orderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.GetCallerFromContext(r.Context())
		if !ok || caller == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload engine.CreateOrderRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid order payload")
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": []string{"invalid payload"}})
			return
		}
		payload.APIUser = caller.ID

		order, err := svc.CreateOrder(r.Context(), payload)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, mapper.MapOrderToView(order))
	}
}

func GetOrderHandler(svc orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapper.MapOrderToView(order))
	}
}

func ListUserOrdersHandler(svc orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListUserOrders(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapper.MapOrdersToViews(orders))
	}
}

// PriceHandler returns the asset's current quote in every accepted currency.
func PriceHandler(svc priceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prices, err := svc.Prices(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to quote prices")
			http.Error(w, "Price feed unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, prices)
	}
}
