package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"atcpay/src/auth"
	"atcpay/src/engine"
	"atcpay/src/handler"
	"atcpay/src/model"
)

// Service is everything the HTTP surface asks of the engine.
type Service interface {
	CreateOrder(ctx context.Context, req engine.CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]model.Order, error)
	Prices(ctx context.Context) (*engine.Prices, error)
	WalletBalances(ctx context.Context, userID, walletType string) ([]engine.WalletBalance, error)
	Withdraw(ctx context.Context, req engine.WithdrawRequest) (*model.Transaction, error)
	WithdrawHistory(ctx context.Context, userID, publicKey string) ([]model.Transaction, error)
}

func NewRouter(svc Service, jwtKey string) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Protected routes
	r.Route("/atc", func(r chi.Router) {
		r.Use(auth.Middleware(jwtKey))

		r.Get("/price", handler.PriceHandler(svc))
		r.Post("/order", handler.CreateOrderHandler(svc))
		r.Get("/orders/{orderId}", handler.GetOrderHandler(svc))

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/orders", handler.ListUserOrdersHandler(svc))
			r.Get("/wallets/{type}", handler.WalletBalancesHandler(svc))
			r.Post("/wallets/{publicKey}/withdraw", handler.WithdrawHandler(svc))
			r.Get("/wallets/{publicKey}/withdraw/history", handler.WithdrawHistoryHandler(svc))
		})
	})

	return r
}

// Serve runs the API on the configured port until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *Config, h http.Handler) error {
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
