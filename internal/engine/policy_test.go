package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zenmode/internal/domain"
)

func activeEnrollment(lastChecked *time.Time) domain.Enrollment {
	return domain.Enrollment{
		UserAddress: "0xuser1",
		Preferences: domain.Preferences{
			MakerAsset: "0xweth",
			TakerAsset: "0xusdc",
			Amount:     "100",
		},
		IsActive:      true,
		LastCheckedAt: lastChecked,
	}
}

func TestIntervalPolicy(t *testing.T) {
	now := time.Unix(1700000000, 0)
	policy := IntervalPolicy{Window: 5 * time.Minute}

	// Never checked: due immediately
	act, err := policy.ShouldAct(EvalInput{Enrollment: activeEnrollment(nil), Now: now})
	require.NoError(t, err)
	assert.True(t, act)

	// Checked 30 seconds ago: inside the window
	recent := now.Add(-30 * time.Second)
	act, err = policy.ShouldAct(EvalInput{Enrollment: activeEnrollment(&recent), Now: now})
	require.NoError(t, err)
	assert.False(t, act)

	// Checked exactly one window ago: due again
	old := now.Add(-5 * time.Minute)
	act, err = policy.ShouldAct(EvalInput{Enrollment: activeEnrollment(&old), Now: now})
	require.NoError(t, err)
	assert.True(t, act)
}

func TestBalancePolicy(t *testing.T) {
	e := activeEnrollment(nil)
	policy := BalancePolicy{}

	// Missing balance is not evaluable, not a "no"
	_, err := policy.ShouldAct(EvalInput{Enrollment: e, Balance: nil})
	require.Error(t, err)
	assert.True(t, domain.IsDataError(err))

	act, err := policy.ShouldAct(EvalInput{Enrollment: e, Balance: &domain.Balance{Amount: big.NewInt(99)}})
	require.NoError(t, err)
	assert.False(t, act)

	act, err = policy.ShouldAct(EvalInput{Enrollment: e, Balance: &domain.Balance{Amount: big.NewInt(100)}})
	require.NoError(t, err)
	assert.True(t, act)
}

func TestPriceBandPolicy(t *testing.T) {
	e := activeEnrollment(nil)
	policy := PriceBandPolicy{Sigma: 2, MinSamples: 5}
	history := []float64{100, 101, 99, 100, 100, 101, 99}

	market := func(price float64) *domain.MarketData {
		return &domain.MarketData{Prices: map[string]float64{"0xweth": price}}
	}

	// Price near the mean: calm enough to act
	act, err := policy.ShouldAct(EvalInput{Enrollment: e, Market: market(100), PriceHistory: history})
	require.NoError(t, err)
	assert.True(t, act)

	// Price far outside the band: stand back
	act, err = policy.ShouldAct(EvalInput{Enrollment: e, Market: market(140), PriceHistory: history})
	require.NoError(t, err)
	assert.False(t, act)

	// No market data: not evaluable
	_, err = policy.ShouldAct(EvalInput{Enrollment: e, PriceHistory: history})
	assert.True(t, domain.IsDataError(err))

	// No price for the maker asset: not evaluable
	_, err = policy.ShouldAct(EvalInput{
		Enrollment:   e,
		Market:       &domain.MarketData{Prices: map[string]float64{"0xother": 1}},
		PriceHistory: history,
	})
	assert.True(t, domain.IsDataError(err))

	// Too little history: not evaluable
	_, err = policy.ShouldAct(EvalInput{Enrollment: e, Market: market(100), PriceHistory: history[:3]})
	assert.True(t, domain.IsDataError(err))
}

func TestMomentumPolicy(t *testing.T) {
	e := activeEnrollment(nil)
	policy := MomentumPolicy{Period: 14, Overbought: 70}

	// Monotonically rising prices drive RSI to 100: overbought, hold back
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	act, err := policy.ShouldAct(EvalInput{Enrollment: e, PriceHistory: rising})
	require.NoError(t, err)
	assert.False(t, act)

	// Monotonically falling prices drive RSI to 0: fine to act
	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	act, err = policy.ShouldAct(EvalInput{Enrollment: e, PriceHistory: falling})
	require.NoError(t, err)
	assert.True(t, act)

	// Not enough samples for the period: not evaluable
	_, err = policy.ShouldAct(EvalInput{Enrollment: e, PriceHistory: rising[:10]})
	assert.True(t, domain.IsDataError(err))
}

type stubPolicy struct {
	act bool
	err error
}

func (s stubPolicy) Name() string                     { return "stub" }
func (s stubPolicy) ShouldAct(EvalInput) (bool, error) { return s.act, s.err }

func TestAll(t *testing.T) {
	yes := stubPolicy{act: true}
	no := stubPolicy{act: false}
	notEvaluable := stubPolicy{err: &domain.DataError{Field: "x", Reason: "missing"}}

	act, err := All{yes, yes}.ShouldAct(EvalInput{})
	require.NoError(t, err)
	assert.True(t, act)

	act, err = All{yes, no}.ShouldAct(EvalInput{})
	require.NoError(t, err)
	assert.False(t, act)

	_, err = All{yes, notEvaluable}.ShouldAct(EvalInput{})
	assert.True(t, domain.IsDataError(err))

	// Empty chain defaults to acting
	act, err = All{}.ShouldAct(EvalInput{})
	require.NoError(t, err)
	assert.True(t, act)
}
