package mapper

import (
	"time"
	_ "time/tzdata"

	logger "github.com/sirupsen/logrus"

	"atcpay/src/model"
)

// londonLayout renders an instant with its numeric UTC offset, also when the offset is zero.
const londonLayout = "2006-01-02T15:04:05-07:00"

var london = loadLondon()

func loadLondon() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		logger.WithError(err).Error("Failed to load Europe/London, falling back to UTC")
		return time.UTC
	}
	return loc
}

// OrderView is the public shape of an order. The deposit secret, the API client and the
// raw chain payload never leave the service; model.Order hides them from JSON.
type OrderView struct {
	model.Order
	ExpirationDateLondon string `json:"expirationDateLondon"`
}

// MapOrderToView converts a stored order into its public view.
func MapOrderToView(order *model.Order) *OrderView {
	if order == nil {
		logger.WithField("mapper", "MapOrderToView").Error("Nil order received")
		return nil
	}

	view := &OrderView{Order: *order}
	view.WalletSecret = ""
	view.APIUser = ""
	view.Transaction = nil
	view.SettlementClaim = nil
	view.SettlementClaimedAt = nil
	view.LastSettlementError = ""
	view.ExpirationDateLondon = FormatLondon(order.ExpirationDate)
	return view
}

func MapOrdersToViews(orders []model.Order) []*OrderView {
	views := make([]*OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, MapOrderToView(&orders[i]))
	}
	return views
}

// FormatLondon formats t in Europe/London local time.
func FormatLondon(t time.Time) string {
	return t.In(london).Format(londonLayout)
}
