package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zenmode/internal/domain"
)

type memStore struct {
	mu          sync.Mutex
	enrollments map[string]*domain.Enrollment
	listErr     error
}

func newMemStore() *memStore {
	return &memStore{enrollments: make(map[string]*domain.Enrollment)}
}

func (s *memStore) add(e domain.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.UserAddress] = &e
}

func (s *memStore) ListActive() ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var active []domain.Enrollment
	for _, e := range s.enrollments {
		if e.IsActive {
			active = append(active, *e)
		}
	}
	return active, nil
}

func (s *memStore) MarkChecked(userAddress string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.enrollments[userAddress]; ok {
		t := ts
		e.LastCheckedAt = &t
	}
	return nil
}

func (s *memStore) lastChecked(userAddress string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[userAddress].LastCheckedAt
}

type memOrders struct {
	mu        sync.Mutex
	orders    []*domain.Order
	createErr error
}

func (o *memOrders) Create(order *domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.createErr != nil {
		return o.createErr
	}
	o.orders = append(o.orders, order)
	return nil
}

func (o *memOrders) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.orders)
}

type stubOracle struct {
	mu         sync.Mutex
	market     *domain.MarketData
	marketErr  error
	balances   map[string]*big.Int
	balanceErr map[string]error
	queried    []string
}

func (o *stubOracle) GetMarketSnapshot(ctx context.Context) (*domain.MarketData, error) {
	if o.marketErr != nil {
		return nil, o.marketErr
	}
	return o.market, nil
}

func (o *stubOracle) GetBalance(ctx context.Context, address, token string) (*domain.Balance, error) {
	o.mu.Lock()
	o.queried = append(o.queried, address)
	o.mu.Unlock()

	if err, ok := o.balanceErr[address]; ok {
		return nil, err
	}
	if amount, ok := o.balances[address]; ok {
		return &domain.Balance{Amount: amount, Decimals: 18}, nil
	}
	return &domain.Balance{Amount: big.NewInt(0), Decimals: 18}, nil
}

func newTestMonitor(store *memStore, orders *memOrders, oracle *stubOracle, policy Policy) *Monitor {
	m := NewMonitor(MonitorConfig{
		Store:      store,
		Orders:     orders,
		Oracle:     oracle,
		Policy:     policy,
		Builder:    testBuilder(&stubSigner{address: "0xmaker"}),
		Interval:   30 * time.Second,
		OracleTime: time.Second,
		Log:        zerolog.Nop(),
	})
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	return m
}

func defaultPolicy() Policy {
	return All{IntervalPolicy{Window: 5 * time.Minute}, BalancePolicy{}}
}

func TestRunTick_FirstEvaluation(t *testing.T) {
	store := newMemStore()
	store.add(activeEnrollment(nil))
	orders := &memOrders{}
	oracle := &stubOracle{balances: map[string]*big.Int{"0xuser1": big.NewInt(1000)}}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())

	n := m.runTick()
	assert.Equal(t, 1, n)
	require.Equal(t, 1, orders.count())

	order := orders.orders[0]
	assert.Equal(t, 0, order.MakingAmount.Cmp(big.NewInt(100)))
	assert.Equal(t, 0, order.TakingAmount.Cmp(big.NewInt(101)))
	assert.Equal(t, m.now().Add(24*time.Hour).Unix(), order.ExpiresAt.Unix())

	// Cursor advanced to the evaluation time
	last := store.lastChecked("0xuser1")
	require.NotNil(t, last)
	assert.Equal(t, m.now().Unix(), last.Unix())
}

func TestRunTick_WithinWindowPlacesNothing(t *testing.T) {
	store := newMemStore()
	store.add(activeEnrollment(nil))
	orders := &memOrders{}
	oracle := &stubOracle{balances: map[string]*big.Int{"0xuser1": big.NewInt(1000)}}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())

	m.runTick()
	require.Equal(t, 1, orders.count())

	// Next tick 30 seconds later, still inside the 5 minute window
	m.now = func() time.Time { return time.Unix(1700000030, 0) }
	m.runTick()
	assert.Equal(t, 1, orders.count())

	// One full window later the user is due again
	m.now = func() time.Time { return time.Unix(1700000300, 0) }
	m.runTick()
	assert.Equal(t, 2, orders.count())
}

func TestRunTick_PerUserFailureIsolation(t *testing.T) {
	store := newMemStore()
	for _, user := range []string{"0xuser1", "0xuser2", "0xuser3"} {
		e := activeEnrollment(nil)
		e.UserAddress = user
		store.add(e)
	}
	orders := &memOrders{}
	oracle := &stubOracle{
		balances: map[string]*big.Int{
			"0xuser1": big.NewInt(1000),
			"0xuser3": big.NewInt(1000),
		},
		balanceErr: map[string]error{
			"0xuser2": domain.Transient("oracle", errors.New("upstream timeout")),
		},
	}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())

	n := m.runTick()
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, orders.count())

	// The failing user keeps a nil cursor and is retried next tick
	assert.Nil(t, store.lastChecked("0xuser2"))
	assert.NotNil(t, store.lastChecked("0xuser1"))
	assert.NotNil(t, store.lastChecked("0xuser3"))
}

func TestRunTick_PersistFailureLeavesCursor(t *testing.T) {
	store := newMemStore()
	store.add(activeEnrollment(nil))
	orders := &memOrders{createErr: errors.New("disk full")}
	oracle := &stubOracle{balances: map[string]*big.Int{"0xuser1": big.NewInt(1000)}}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())

	m.runTick()
	assert.Equal(t, 0, orders.count())
	assert.Nil(t, store.lastChecked("0xuser1"))
}

func TestRunTick_SnapshotFailureContained(t *testing.T) {
	store := newMemStore()
	store.add(activeEnrollment(nil))
	orders := &memOrders{}
	oracle := &stubOracle{
		marketErr: domain.Transient("oracle", errors.New("snapshot unavailable")),
		balances:  map[string]*big.Int{"0xuser1": big.NewInt(1000)},
	}

	// A market-dependent policy makes the enrollment not evaluable this
	// tick; nothing is placed and nothing blows up.
	m := newTestMonitor(store, orders, oracle, All{PriceBandPolicy{Sigma: 2, MinSamples: 5}})

	n := m.runTick()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, orders.count())
	assert.Nil(t, store.lastChecked("0xuser1"))
}

func TestRunTick_IdleWithoutEnrollments(t *testing.T) {
	store := newMemStore()
	orders := &memOrders{}
	oracle := &stubOracle{}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())

	n := m.runTick()
	assert.Equal(t, 0, n)
	assert.Equal(t, StateIdle, m.State())

	// Activation flips the loop to running on the next evaluation
	store.add(activeEnrollment(nil))
	oracle.balances = map[string]*big.Int{"0xuser1": big.NewInt(1000)}
	n = m.runTick()
	assert.Equal(t, 1, n)
	assert.Equal(t, StateRunning, m.State())
}

func TestRunTick_ListFailureKeepsState(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("database locked")
	orders := &memOrders{}

	m := newTestMonitor(store, orders, &stubOracle{}, defaultPolicy())

	n := m.runTick()
	assert.Equal(t, -1, n)
	assert.Equal(t, 0, orders.count())
}

func TestMonitor_StartStopWake(t *testing.T) {
	store := newMemStore()
	orders := &memOrders{}
	oracle := &stubOracle{balances: map[string]*big.Int{"0xuser1": big.NewInt(1000)}}

	m := newTestMonitor(store, orders, oracle, defaultPolicy())
	m.Start()
	defer m.Stop()

	// Starts idle with nothing enrolled
	assert.Eventually(t, func() bool { return m.State() == StateIdle }, time.Second, 10*time.Millisecond)

	store.add(activeEnrollment(nil))
	m.Wake()

	assert.Eventually(t, func() bool { return orders.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateRunning, m.State())
}
