package engine

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

// capture records an order incident for operators, logs it locally, and
// persists it when a recorder is configured.
func capture(
	ctx context.Context,
	repo ExceptionRecorder,
	orderID string,
	kind string,
	module string,
	reason string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	level := "error"
	if kind == model.ExceptionKindInvalidTransition {
		level = "warn"
	}

	exc := &model.Exception{
		OrderID:   orderID,
		Kind:      kind,
		Module:    module,
		Message:   err.Error(),
		Reason:    reason,
		Level:     level,
		Context:   contextData,
		CreatedAt: time.Now(),
	}

	logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"kind":     kind,
		"module":   module,
		"reason":   reason,
	}).WithError(err).Error("Order exception captured")

	if repo == nil {
		return
	}

	// The incident must survive a cancelled caller.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if dbErr := repo.Create(persistCtx, exc); dbErr != nil {
		logger.WithError(errors.Join(err, dbErr)).
			WithField("order_id", orderID).
			Error("Failed to persist order exception")
	}
}
