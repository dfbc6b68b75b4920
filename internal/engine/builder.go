package engine

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

// Build failure reasons
const (
	ReasonInvalidPreferences = "invalid_preferences"
	ReasonSigningFailed      = "signing_failed"
)

// BuildError reports why an order could not be built
type BuildError struct {
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("order build failed (%s): %v", e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder assembles and signs orders from enrollment preferences. The taking
// amount is derived from the making amount by an integer fee ratio, rounded
// down; no floating point touches order amounts.
type Builder struct {
	signer   domain.OrderSigner
	feeNum   int64
	feeDenom int64
	ttl      time.Duration
	log      zerolog.Logger
}

// NewBuilder creates an order builder
func NewBuilder(signer domain.OrderSigner, feeNum, feeDenom int64, ttl time.Duration, log zerolog.Logger) *Builder {
	return &Builder{
		signer:   signer,
		feeNum:   feeNum,
		feeDenom: feeDenom,
		ttl:      ttl,
		log:      log.With().Str("component", "builder").Logger(),
	}
}

// Build constructs a signed order for the enrollment, expiring ttl from now
func (b *Builder) Build(e domain.Enrollment, now time.Time) (*domain.Order, error) {
	if err := e.Preferences.Validate(); err != nil {
		return nil, &BuildError{Reason: ReasonInvalidPreferences, Err: err}
	}

	makingAmount, err := e.Preferences.AmountInt()
	if err != nil {
		return nil, &BuildError{Reason: ReasonInvalidPreferences, Err: err}
	}

	takingAmount := new(big.Int).Mul(makingAmount, big.NewInt(b.feeNum))
	takingAmount.Div(takingAmount, big.NewInt(b.feeDenom))

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	terms := domain.OrderTerms{
		Maker:        b.signer.Address(),
		MakerAsset:   e.Preferences.MakerAsset,
		TakerAsset:   e.Preferences.TakerAsset,
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		Nonce:        nonce,
		ExpiresAt:    now.Add(b.ttl).Unix(),
	}

	signature, err := b.signer.Sign(terms)
	if err != nil {
		return nil, &BuildError{Reason: ReasonSigningFailed, Err: err}
	}

	order := &domain.Order{
		ID:           uuid.NewString(),
		UserAddress:  e.UserAddress,
		MakerAsset:   terms.MakerAsset,
		TakerAsset:   terms.TakerAsset,
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		Nonce:        nonce,
		SignedPayload: domain.SignedOrder{
			Terms:     terms,
			Signature: signature,
		},
		Status:    domain.OrderStatusCreated,
		ExpiresAt: time.Unix(terms.ExpiresAt, 0),
		CreatedAt: now,
	}

	b.log.Debug().
		Str("order_id", order.ID).
		Str("user", e.UserAddress).
		Str("making_amount", makingAmount.String()).
		Str("taking_amount", takingAmount.String()).
		Msg("Order built")
	return order, nil
}

// randomNonce draws a uniform nonce from [0, 2^63) so it stores cleanly as a
// signed integer.
func randomNonce() (uint64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(math.MaxInt64))
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}
