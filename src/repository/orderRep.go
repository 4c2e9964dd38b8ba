package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"atcpay/src/database"
	"atcpay/src/model"
)

// ErrClaimLost is returned when a settlement claim no longer matches the stored order.
var ErrClaimLost = errors.New("settlement claim lost")

// lifecycleColumns are the only order columns trackers and the sweeper may write.
var lifecycleColumns = []string{
	"status",
	"confirmations",
	"chain_transaction",
	"tx_hash",
	"payment_block_height",
	"transaction_received_at",
	"transaction_confirmed_at",
	"expired_at",
	"user_id",
}

// OrderFilter narrows Find. Zero values are ignored.
type OrderFilter struct {
	Statuses      []string
	Currency      string
	UserID        string
	ExpiresBefore *time.Time
	ExpiresAfter  *time.Time
	// Claimed selects orders by whether a settlement claim is held.
	Claimed *bool
	Limit   int
}

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// NewOrderReadRepository serves read endpoints from the read-only connection.
func NewOrderReadRepository() *OrderRepository {
	return &OrderRepository{db: database.ReadOnlyDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating OrderRepository with custom DB instance")

	return &OrderRepository{db: db}
}

// Create inserts a new order into the database.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Create",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
		"currency": order.AcceptableCurrency,
		"total":    order.TotalPrice.String(),
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// Find lists orders matching filter, oldest first.
func (r *OrderRepository) Find(
	ctx context.Context,
	filter OrderFilter,
) ([]model.Order, error) {

	query := r.db.WithContext(ctx).Model(&model.Order{})

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Currency != "" {
		query = query.Where("acceptable_currency = ?", filter.Currency)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expiration_date < ?", *filter.ExpiresBefore)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expiration_date > ?", *filter.ExpiresAfter)
	}
	if filter.Claimed != nil {
		if *filter.Claimed {
			query = query.Where("settlement_claim IS NOT NULL")
		} else {
			query = query.Where("settlement_claim IS NULL")
		}
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var orders []model.Order
	if err := query.Order("created_at ASC, id ASC").Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Find",
			"statuses": filter.Statuses,
		}).WithError(err).Error("Failed to find orders")

		return nil, err
	}

	return orders, nil
}

// FindByUser lists every order owned by userID.
func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.Find(ctx, OrderFilter{UserID: userID})
}

// SaveIfStatus writes the lifecycle columns of order only if the stored status is still
// expected. It returns false when another writer moved the order first.
func (r *OrderRepository) SaveIfStatus(
	ctx context.Context,
	order *model.Order,
	expected string,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Model(order).
		Where("status = ?", expected).
		Select(lifecycleColumns).
		Updates(order)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "SaveIfStatus",
			"order_id": order.ID,
			"expected": expected,
			"status":   order.Status,
		}).WithError(res.Error).Error("Failed to save order")

		return false, res.Error
	}

	saved := res.RowsAffected == 1
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "SaveIfStatus",
		"order_id": order.ID,
		"expected": expected,
		"status":   order.Status,
		"saved":    saved,
	}).Debug("Order lifecycle saved")

	return saved, nil
}

// CompareAndSetStatus atomically moves order id from expected to next, writing changes
// alongside. It returns false when the stored status is not expected.
func (r *OrderRepository) CompareAndSetStatus(
	ctx context.Context,
	id string,
	expected string,
	next string,
	changes map[string]interface{},
) (bool, error) {

	values := map[string]interface{}{"status": next}
	for k, v := range changes {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(values)

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "CompareAndSetStatus",
			"order_id": id,
			"expected": expected,
			"next":     next,
		}).WithError(res.Error).Error("Failed to compare and set order status")

		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// ClaimSettlement takes the exclusive right to settle a confirmed order.
// Exactly one caller gets true per order until the claim is released.
func (r *OrderRepository) ClaimSettlement(
	ctx context.Context,
	id string,
	claim string,
	at time.Time,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ? AND settlement_claim IS NULL", id, model.StatusConfirmed).
		Updates(map[string]interface{}{
			"settlement_claim":      claim,
			"settlement_claimed_at": at,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "ClaimSettlement",
			"order_id": id,
		}).WithError(res.Error).Error("Failed to claim settlement")

		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// CompleteSettlement records the ledger transaction and settles the order in one
// database transaction, provided claim still owns the order.
func (r *OrderRepository) CompleteSettlement(
	ctx context.Context,
	id string,
	claim string,
	record *model.Transaction,
	at time.Time,
) error {

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ? AND settlement_claim = ?", id, model.StatusConfirmed, claim).
			Updates(map[string]interface{}{
				"status":                model.StatusSettled,
				"settled_at":            at,
				"asset_transaction_id":  record.ID,
				"last_settlement_error": "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrClaimLost
		}
		return nil
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "CompleteSettlement",
			"order_id": id,
		}).WithError(err).Error("Failed to complete settlement")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":           "OrderRepository",
		"op":             "CompleteSettlement",
		"order_id":       id,
		"transaction_id": record.ID,
	}).Info("Order settled")

	return nil
}

// ReleaseSettlement drops claim so a later reconciliation can retry, keeping reason for operators.
func (r *OrderRepository) ReleaseSettlement(
	ctx context.Context,
	id string,
	claim string,
	reason string,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND settlement_claim = ?", id, claim).
		Updates(map[string]interface{}{
			"settlement_claim":      nil,
			"settlement_claimed_at": nil,
			"last_settlement_error": reason,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "ReleaseSettlement",
			"order_id": id,
		}).WithError(err).Error("Failed to release settlement claim")
	}

	return err
}

// ForceReleaseSettlement clears a claim left behind by a crashed process. Operators must
// check the ledger for a payment before calling it.
func (r *OrderRepository) ForceReleaseSettlement(
	ctx context.Context,
	id string,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ? AND settlement_claim IS NOT NULL", id, model.StatusConfirmed).
		Updates(map[string]interface{}{
			"settlement_claim":      nil,
			"settlement_claimed_at": nil,
		})

	if res.Error != nil {
		return false, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "ForceReleaseSettlement",
		"order_id": id,
		"released": res.RowsAffected == 1,
	}).Warn("Settlement claim force released")

	return res.RowsAffected == 1, nil
}
