package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/domain"
	"zenmode/internal/events"
)

// MonitorState is the lifecycle state of the monitoring loop
type MonitorState string

const (
	StateIdle    MonitorState = "idle"
	StateRunning MonitorState = "running"
)

// OrderWriter persists newly built orders
type OrderWriter interface {
	Create(order *domain.Order) error
}

// MonitorConfig wires the monitor's collaborators
type MonitorConfig struct {
	Store        domain.EnrollmentStore
	Orders       OrderWriter
	Oracle       domain.Oracle
	History      domain.PriceHistoryProvider // optional
	HistoryLimit int
	Policy       Policy
	Builder      *Builder
	Events       *events.Manager
	Interval     time.Duration
	OracleTime   time.Duration
	Log          zerolog.Logger
}

// Monitor drives the recurring evaluation loop. All ticks run on a single
// goroutine, so a slow tick delays the next one instead of overlapping it.
// With no active enrollments the monitor sits idle and does no work until
// woken.
type Monitor struct {
	store        domain.EnrollmentStore
	orders       OrderWriter
	oracle       domain.Oracle
	history      domain.PriceHistoryProvider
	historyLimit int
	policy       Policy
	builder      *Builder
	events       *events.Manager
	interval     time.Duration
	oracleTime   time.Duration
	log          zerolog.Logger

	now func() time.Time

	mu      sync.Mutex
	state   MonitorState
	started bool

	stop chan struct{}
	wake chan struct{}
	done chan struct{}
}

// NewMonitor creates a monitor; call Start to begin ticking
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		store:        cfg.Store,
		orders:       cfg.Orders,
		oracle:       cfg.Oracle,
		history:      cfg.History,
		historyLimit: cfg.HistoryLimit,
		policy:       cfg.Policy,
		builder:      cfg.Builder,
		events:       cfg.Events,
		interval:     cfg.Interval,
		oracleTime:   cfg.OracleTime,
		log:          cfg.Log.With().Str("component", "monitor").Logger(),
		now:          time.Now,
		state:        StateIdle,
		stop:         make(chan struct{}),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s MonitorState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed && m.events != nil {
		if s == StateRunning {
			m.events.Emit(events.MonitorStarted, "monitor", nil)
		} else {
			m.events.Emit(events.MonitorIdle, "monitor", nil)
		}
	}
}

// Start launches the monitoring loop
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	m.log.Info().Dur("interval", m.interval).Msg("Monitor started")
}

// Stop shuts the loop down and waits for any in-flight tick to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	m.log.Info().Msg("Monitor stopped")
}

// Wake nudges the loop to re-check enrollments immediately. Called on
// activation and deactivation so state changes take effect without waiting
// out the tick interval. Safe to call from any goroutine; coalesces.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// nil channel while idle: the select never fires on ticks
	tickC := ticker.C
	if m.runTick() == 0 {
		tickC = nil
	}

	for {
		select {
		case <-m.stop:
			return
		case <-m.wake:
			if m.runTick() == 0 {
				tickC = nil
			} else {
				tickC = ticker.C
			}
		case <-tickC:
			if m.runTick() == 0 {
				tickC = nil
			}
		}
	}
}

// runTick evaluates every active enrollment once. Returns the number of
// active enrollments, or -1 when the listing itself failed.
func (m *Monitor) runTick() int {
	now := m.now()

	enrollments, err := m.store.ListActive()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to list active enrollments")
		if m.events != nil {
			m.events.EmitError("monitor", err, nil)
		}
		return -1
	}

	if len(enrollments) == 0 {
		m.setState(StateIdle)
		return 0
	}
	m.setState(StateRunning)

	// One snapshot per tick; per-user data is fetched inside processEnrollment.
	// A snapshot failure is not fatal: policies that need market data will
	// report the enrollment as not evaluable.
	market, err := m.fetchSnapshot()
	if err != nil {
		m.log.Warn().Err(err).Msg("Market snapshot unavailable for this tick")
	}

	created := 0
	for _, e := range enrollments {
		if m.processEnrollment(e, market, now) {
			created++
		}
	}

	m.log.Debug().
		Int("enrollments", len(enrollments)).
		Int("orders_created", created).
		Msg("Tick completed")
	if m.events != nil {
		m.events.Emit(events.MonitorTickCompleted, "monitor", map[string]interface{}{
			"enrollments":    len(enrollments),
			"orders_created": created,
		})
	}
	return len(enrollments)
}

func (m *Monitor) fetchSnapshot() (*domain.MarketData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.oracleTime)
	defer cancel()
	return m.oracle.GetMarketSnapshot(ctx)
}

// processEnrollment evaluates one enrollment and places an order when the
// policy agrees. Every failure is contained here: one user's bad data or
// oracle trouble never touches the rest of the tick. Returns true when an
// order was persisted.
func (m *Monitor) processEnrollment(e domain.Enrollment, market *domain.MarketData, now time.Time) bool {
	log := m.log.With().Str("user", e.UserAddress).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), m.oracleTime)
	defer cancel()

	balance, err := m.oracle.GetBalance(ctx, e.UserAddress, e.Preferences.MakerAsset)
	if err != nil {
		if domain.IsTransient(err) {
			log.Warn().Err(err).Msg("Balance unavailable, skipping this cycle")
		} else {
			log.Error().Err(err).Msg("Balance lookup failed")
		}
		balance = nil
	}

	var history []float64
	if m.history != nil && m.historyLimit > 0 {
		history, err = m.history.GetPriceHistory(ctx, e.Preferences.MakerAsset, m.historyLimit)
		if err != nil {
			log.Warn().Err(err).Msg("Price history unavailable, skipping this cycle")
			history = nil
		}
	}

	act, err := m.policy.ShouldAct(EvalInput{
		Enrollment:   e,
		Market:       market,
		Balance:      balance,
		PriceHistory: history,
		Now:          now,
	})
	if err != nil {
		if domain.IsDataError(err) {
			log.Debug().Err(err).Msg("Enrollment not evaluable this tick")
		} else {
			log.Error().Err(err).Msg("Policy evaluation failed")
			if m.events != nil {
				m.events.EmitError("monitor", err, map[string]interface{}{"user": e.UserAddress})
			}
		}
		return false
	}
	if !act {
		return false
	}

	order, err := m.builder.Build(e, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build order")
		if m.events != nil {
			m.events.EmitError("monitor", err, map[string]interface{}{"user": e.UserAddress})
		}
		return false
	}

	if err := m.orders.Create(order); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to persist order")
		if m.events != nil {
			m.events.EmitError("monitor", err, map[string]interface{}{"user": e.UserAddress})
		}
		return false
	}

	// The cursor moves only once the order is durable; a failure anywhere
	// above means this user is due again next tick.
	if err := m.store.MarkChecked(e.UserAddress, now); err != nil {
		log.Error().Err(err).Msg("Failed to record check time")
	}

	log.Info().
		Str("order_id", order.ID).
		Str("making_amount", order.MakingAmount.String()).
		Msg("Order placed")
	if m.events != nil {
		m.events.Emit(events.OrderCreated, "monitor", map[string]interface{}{
			"order_id": order.ID,
			"user":     e.UserAddress,
		})
	}
	return true
}
