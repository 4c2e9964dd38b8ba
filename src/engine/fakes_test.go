package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"atcpay/src/connectors"
	"atcpay/src/model"
	"atcpay/src/repository"
)

// memOrders is an OrderStore with the same conditional-write semantics as the SQL repository.
type memOrders struct {
	mu           sync.Mutex
	orders       map[string]model.Order
	created      []string
	transactions []model.Transaction

	failComplete error
	findHook     func(filter repository.OrderFilter, out []model.Order) []model.Order
}

func newMemOrders(orders ...*model.Order) *memOrders {
	s := &memOrders{orders: map[string]model.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = *o
		s.created = append(s.created, o.ID)
	}
	return s
}

func (s *memOrders) Create(_ context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return errors.New("duplicate order id")
	}
	s.orders[order.ID] = *order
	s.created = append(s.created, order.ID)
	return nil
}

func (s *memOrders) FindByID(_ context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memOrders) get(id string) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memOrders) Find(_ context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	s.mu.Lock()
	var out []model.Order
	for _, id := range s.created {
		o := s.orders[id]
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, o.Status) {
			continue
		}
		if filter.Currency != "" && o.AcceptableCurrency != filter.Currency {
			continue
		}
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.ExpiresBefore != nil && !o.ExpirationDate.Before(*filter.ExpiresBefore) {
			continue
		}
		if filter.ExpiresAfter != nil && !o.ExpirationDate.After(*filter.ExpiresAfter) {
			continue
		}
		if filter.Claimed != nil && *filter.Claimed != (o.SettlementClaim != nil) {
			continue
		}
		out = append(out, o)
	}
	hook := s.findHook
	s.mu.Unlock()

	if hook != nil {
		out = hook(filter, out)
	}
	return out, nil
}

func (s *memOrders) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.Find(ctx, repository.OrderFilter{UserID: userID})
}

func (s *memOrders) SaveIfStatus(_ context.Context, order *model.Order, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[order.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	stored.Status = order.Status
	stored.Confirmations = order.Confirmations
	stored.Transaction = order.Transaction
	stored.TxHash = order.TxHash
	stored.PaymentBlockHeight = order.PaymentBlockHeight
	stored.TransactionReceivedAt = order.TransactionReceivedAt
	stored.TransactionConfirmedAt = order.TransactionConfirmedAt
	stored.ExpiredAt = order.ExpiredAt
	stored.UserID = order.UserID
	s.orders[order.ID] = stored
	return true, nil
}

func (s *memOrders) CompareAndSetStatus(_ context.Context, id, expected, next string, changes map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok || stored.Status != expected {
		return false, nil
	}
	stored.Status = next
	if at, ok := changes["expired_at"].(time.Time); ok {
		stored.ExpiredAt = &at
	}
	if user, ok := changes["user_id"].(string); ok {
		stored.UserID = user
	}
	s.orders[id] = stored
	return true, nil
}

func (s *memOrders) ClaimSettlement(_ context.Context, id, claim string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok || stored.Status != model.StatusConfirmed || stored.SettlementClaim != nil {
		return false, nil
	}
	stored.SettlementClaim = &claim
	stored.SettlementClaimedAt = &at
	s.orders[id] = stored
	return true, nil
}

func (s *memOrders) CompleteSettlement(_ context.Context, id, claim string, record *model.Transaction, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failComplete != nil {
		return s.failComplete
	}
	stored, ok := s.orders[id]
	if !ok || stored.Status != model.StatusConfirmed || stored.SettlementClaim == nil || *stored.SettlementClaim != claim {
		return repository.ErrClaimLost
	}
	s.transactions = append(s.transactions, *record)
	stored.Status = model.StatusSettled
	stored.SettledAt = &at
	stored.AssetTransactionID = &record.ID
	stored.LastSettlementError = ""
	s.orders[id] = stored
	return nil
}

func (s *memOrders) ReleaseSettlement(_ context.Context, id, claim, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok || stored.SettlementClaim == nil || *stored.SettlementClaim != claim {
		return nil
	}
	stored.SettlementClaim = nil
	stored.SettlementClaimedAt = nil
	stored.LastSettlementError = reason
	s.orders[id] = stored
	return nil
}

func (s *memOrders) settlementRecords() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.transactions...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type memTransactions struct {
	mu      sync.Mutex
	records []model.Transaction
}

func (m *memTransactions) Create(_ context.Context, record *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *memTransactions) FindWithdrawals(_ context.Context, userID, wallet string) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, r := range m.records {
		if r.Type == model.TransactionTypeWithdraw && r.UserID == userID && r.Wallet == wallet {
			out = append(out, r)
		}
	}
	return out, nil
}

type memWallets struct {
	mu      sync.Mutex
	wallets []model.Wallet
}

func (m *memWallets) FindByOwner(_ context.Context, userID, walletType, assetCode string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == userID && w.Type == walletType && w.AssetCode == assetCode {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memWallets) FindByPublicKey(_ context.Context, userID, publicKey string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == userID && w.PublicKey == publicKey {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memWallets) FindByUser(_ context.Context, userID, walletType string) ([]model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID && w.Type == walletType {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memWallets) CreateIfAbsent(_ context.Context, wallet *model.Wallet) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == wallet.UserID && w.Type == wallet.Type && w.AssetCode == wallet.AssetCode {
			return false, nil
		}
	}
	m.wallets = append(m.wallets, *wallet)
	return true, nil
}

type memExceptions struct {
	mu      sync.Mutex
	records []model.Exception
}

func (m *memExceptions) Create(_ context.Context, exc *model.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *exc)
	return nil
}

func (m *memExceptions) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.records {
		out = append(out, r.Kind)
	}
	return out
}

// fakeLedger records payments. submitErr, when set, is returned for every payment to dest
// matching failDestination (or every payment when failDestination is empty).
type fakeLedger struct {
	mu              sync.Mutex
	payments        []connectors.PaymentRequest
	accounts        map[string]*connectors.Account
	createdAccounts int
	submitErr       error
	failDestination string
	inFlight        int32
	maxInFlight     int32
	delay           time.Duration
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: map[string]*connectors.Account{}}
}

func (l *fakeLedger) LoadAccount(_ context.Context, id string) (*connectors.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[id]
	if !ok {
		return nil, connectors.ErrAccountNotFound
	}
	return acc, nil
}

func (l *fakeLedger) SubmitPayment(_ context.Context, req connectors.PaymentRequest) (*connectors.PaymentResult, error) {
	n := atomic.AddInt32(&l.inFlight, 1)
	defer atomic.AddInt32(&l.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&l.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&l.maxInFlight, peak, n) {
			break
		}
	}
	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submitErr != nil && (l.failDestination == "" || l.failDestination == req.Destination) {
		return nil, l.submitErr
	}
	l.payments = append(l.payments, req)
	return &connectors.PaymentResult{
		Hash:   "ledger-tx-" + req.Destination,
		Ledger: int64(len(l.payments)),
		Raw:    []byte(`{"successful":true}`),
	}, nil
}

func (l *fakeLedger) CreateAccount(
	_ context.Context,
	_ string,
	_ []string,
	_ decimal.Decimal,
	_, _ string,
) (*connectors.CreatedAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createdAccounts++
	return &connectors.CreatedAccount{
		PublicKey: "GHOLDING" + strings.Repeat("X", l.createdAccounts),
		Secret:    "SHOLDING",
	}, nil
}

func (l *fakeLedger) submitted() []connectors.PaymentRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]connectors.PaymentRequest(nil), l.payments...)
}

func (l *fakeLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

// fakeBitcoin hands out channels the test drives directly.
type fakeBitcoin struct {
	mu        sync.Mutex
	addresses map[string]chan model.Observation
	blocks    chan model.Block
	lookups   map[string]*model.Observation
	calls     int32

	// dropAddressFeeds makes every address subscription close straight away.
	dropAddressFeeds bool
	addressSubs      int32
}

func newFakeBitcoin() *fakeBitcoin {
	return &fakeBitcoin{
		addresses: map[string]chan model.Observation{},
		blocks:    make(chan model.Block),
		lookups:   map[string]*model.Observation{},
	}
}

func (b *fakeBitcoin) SubscribeBlocks(ctx context.Context) (<-chan model.Block, error) {
	atomic.AddInt32(&b.calls, 1)
	out := make(chan model.Block)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case blk := <-b.blocks:
				select {
				case out <- blk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *fakeBitcoin) SubscribeAddress(ctx context.Context, address string) (<-chan model.Observation, error) {
	atomic.AddInt32(&b.calls, 1)
	atomic.AddInt32(&b.addressSubs, 1)
	b.mu.Lock()
	if b.dropAddressFeeds {
		b.mu.Unlock()
		dropped := make(chan model.Observation)
		close(dropped)
		return dropped, nil
	}
	in, ok := b.addresses[address]
	if !ok {
		in = make(chan model.Observation)
		b.addresses[address] = in
	}
	b.mu.Unlock()

	out := make(chan model.Observation)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case obs := <-in:
				select {
				case out <- obs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *fakeBitcoin) LookupTransaction(_ context.Context, hash, _ string) (*model.Observation, error) {
	atomic.AddInt32(&b.calls, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	obs, ok := b.lookups[hash]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	return obs, nil
}

func (b *fakeBitcoin) addressFeed(address string) chan model.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.addresses[address]
	if !ok {
		in = make(chan model.Observation)
		b.addresses[address] = in
	}
	return in
}

// fakeObserver serves a fixed balance and listing that tests update between polls.
type fakeObserver struct {
	mu      sync.Mutex
	balance decimal.Decimal
	txs     []model.Observation
	calls   int32
}

func (o *fakeObserver) Balance(context.Context, string) (decimal.Decimal, error) {
	atomic.AddInt32(&o.calls, 1)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.balance, nil
}

func (o *fakeObserver) ListTransactions(context.Context, string) ([]model.Observation, error) {
	atomic.AddInt32(&o.calls, 1)
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Observation(nil), o.txs...), nil
}

func (o *fakeObserver) set(balance decimal.Decimal, txs ...model.Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balance = balance
	o.txs = txs
}

type fakeQuotes map[string]decimal.Decimal

func (q fakeQuotes) QuoteUSD(_ context.Context, currency string) (decimal.Decimal, error) {
	p, ok := q[currency]
	if !ok {
		return decimal.Zero, errors.New("no quote for " + currency)
	}
	return p, nil
}

type fakeKeys struct{ n int32 }

func (k *fakeKeys) Generate(currency string) (connectors.DepositKey, error) {
	n := atomic.AddInt32(&k.n, 1)
	return connectors.DepositKey{
		Address: strings.ToLower(currency) + "-deposit-" + string(rune('a'+n)),
		Secret:  "deposit-secret",
	}, nil
}

type prefixSealer struct{}

func (prefixSealer) EncryptString(plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (prefixSealer) DecryptString(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

func testConfig() Config {
	return Config{
		AssetCode:           "ATC",
		AssetIssuer:         "GISSUER",
		AssetUSD:            decimal.NewFromInt(1),
		DistributorAccount:  "GDISTRIBUTOR",
		DistributorSecret:   "SDISTRIBUTOR",
		FundingAccount:      "GFUNDING",
		FundingSecret:       "SFUNDING",
		StartingBalance:     decimal.NewFromInt(2),
		WithdrawFee:         decimal.RequireFromString("0.5"),
		OrderTTL:            time.Hour,
		PaymentPoll:         5 * time.Millisecond,
		ConfirmationPoll:    5 * time.Millisecond,
		TrackerCeiling:      time.Hour,
		TrackerPoolSize:     64,
		StuckClaimAfter:     10 * time.Minute,
		BlockFeedMinBackoff: time.Millisecond,
		BlockFeedMaxBackoff: 10 * time.Millisecond,
	}
}

type harness struct {
	engine     *Engine
	orders     *memOrders
	txs        *memTransactions
	wallets    *memWallets
	exceptions *memExceptions
	ledger     *fakeLedger
	bitcoin    *fakeBitcoin
	ether      *fakeObserver
	tether     *fakeObserver
	keys       *fakeKeys
}

func newHarness(cfg Config, orders ...*model.Order) *harness {
	h := &harness{
		orders:     newMemOrders(orders...),
		txs:        &memTransactions{},
		wallets:    &memWallets{},
		exceptions: &memExceptions{},
		ledger:     newFakeLedger(),
		bitcoin:    newFakeBitcoin(),
		ether:      &fakeObserver{},
		tether:     &fakeObserver{},
		keys:       &fakeKeys{},
	}
	e, err := New(cfg, Deps{
		Orders:       h.orders,
		Transactions: h.txs,
		Wallets:      h.wallets,
		Exceptions:   h.exceptions,
		Ledger:       h.ledger,
		Bitcoin:      h.bitcoin,
		Ether:        h.ether,
		Tether:       h.tether,
		Prices: fakeQuotes{
			model.CurrencyBTC:  decimal.NewFromInt(50000),
			model.CurrencyETH:  decimal.NewFromInt(2000),
			model.CurrencyUSDT: decimal.NewFromInt(1),
		},
		Keys:   h.keys,
		Sealer: prefixSealer{},
	})
	if err != nil {
		panic(err)
	}
	h.engine = e
	return h
}

func testOrder(id, currency, status string, total decimal.Decimal, expires time.Time) *model.Order {
	return &model.Order{
		ID:                  id,
		Pair:                "ATC" + currency,
		AssetUSD:            decimal.NewFromInt(1),
		AcceptableCurrency:  currency,
		Amount:              decimal.NewFromInt(100),
		TotalPrice:          total,
		WalletAddress:       "addr-" + id,
		WalletSecret:        "sealed:deposit",
		AssetCode:           "ATC",
		AssetIssuer:         "GISSUER",
		UserID:              "7",
		Status:              status,
		ExpirationDate:      expires,
		ConfirmationsNeeded: model.ConfirmationsNeededFor(currency),
	}
}

func height(h int64) *int64 { return &h }
