package engine

import (
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"zenmode/internal/domain"
)

// EvalInput carries everything a policy may consult. Policies are pure: they
// read the input and decide, they never fetch or persist.
type EvalInput struct {
	Enrollment   domain.Enrollment
	Market       *domain.MarketData
	Balance      *domain.Balance
	PriceHistory []float64
	Now          time.Time
}

// Policy decides whether an order should be placed for an enrollment right
// now. A DataError means the question could not be answered with the input at
// hand; that is distinct from a "no".
type Policy interface {
	Name() string
	ShouldAct(in EvalInput) (bool, error)
}

// IntervalPolicy enforces a minimum spacing between orders for a user.
// A user who has never been acted on is due immediately.
type IntervalPolicy struct {
	Window time.Duration
}

func (p IntervalPolicy) Name() string { return "interval" }

func (p IntervalPolicy) ShouldAct(in EvalInput) (bool, error) {
	last := in.Enrollment.LastCheckedAt
	if last == nil {
		return true, nil
	}
	return in.Now.Sub(*last) >= p.Window, nil
}

// BalancePolicy requires the user to hold at least the configured amount of
// the maker asset.
type BalancePolicy struct{}

func (p BalancePolicy) Name() string { return "balance" }

func (p BalancePolicy) ShouldAct(in EvalInput) (bool, error) {
	if in.Balance == nil || in.Balance.Amount == nil {
		return false, &domain.DataError{Field: "balance", Reason: "not available"}
	}
	amount, err := in.Enrollment.Preferences.AmountInt()
	if err != nil {
		return false, err
	}
	return in.Balance.Amount.Cmp(amount) >= 0, nil
}

// PriceBandPolicy acts only while the maker asset trades inside a band around
// its recent mean. A market swinging outside the band is left alone.
type PriceBandPolicy struct {
	Sigma      float64
	MinSamples int
}

func (p PriceBandPolicy) Name() string { return "price_band" }

func (p PriceBandPolicy) ShouldAct(in EvalInput) (bool, error) {
	if in.Market == nil {
		return false, &domain.DataError{Field: "market", Reason: "not available"}
	}
	current, ok := in.Market.Prices[in.Enrollment.Preferences.MakerAsset]
	if !ok {
		return false, &domain.DataError{Field: "market", Reason: "no price for maker asset"}
	}
	if len(in.PriceHistory) < p.MinSamples {
		return false, &domain.DataError{Field: "price_history", Reason: "insufficient samples"}
	}

	mean, std := stat.MeanStdDev(in.PriceHistory, nil)
	band := p.Sigma * std
	return current >= mean-band && current <= mean+band, nil
}

// MomentumPolicy holds back while the maker asset looks overbought on RSI.
type MomentumPolicy struct {
	Period     int
	Overbought float64
}

func (p MomentumPolicy) Name() string { return "momentum" }

func (p MomentumPolicy) ShouldAct(in EvalInput) (bool, error) {
	// talib needs Period+1 samples to produce the first RSI value
	if len(in.PriceHistory) <= p.Period {
		return false, &domain.DataError{Field: "price_history", Reason: "insufficient samples"}
	}

	rsi := talib.Rsi(in.PriceHistory, p.Period)
	latest := rsi[len(rsi)-1]
	return latest <= p.Overbought, nil
}

// All combines policies; every one must agree before an order is placed.
// The first error stops evaluation.
type All []Policy

func (a All) Name() string { return "all" }

func (a All) ShouldAct(in EvalInput) (bool, error) {
	for _, p := range a {
		act, err := p.ShouldAct(in)
		if err != nil {
			return false, err
		}
		if !act {
			return false, nil
		}
	}
	return true, nil
}
