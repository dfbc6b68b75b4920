package domain

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesValidate(t *testing.T) {
	valid := Preferences{
		MakerAsset: "0xaaa",
		TakerAsset: "0xbbb",
		Amount:     "100",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		mut func(*Preferences)
	}{
		{"empty maker asset", func(p *Preferences) { p.MakerAsset = "" }},
		{"empty taker asset", func(p *Preferences) { p.TakerAsset = "" }},
		{"empty amount", func(p *Preferences) { p.Amount = "" }},
		{"non-numeric amount", func(p *Preferences) { p.Amount = "ten" }},
		{"decimal amount", func(p *Preferences) { p.Amount = "1.5" }},
		{"zero amount", func(p *Preferences) { p.Amount = "0" }},
		{"negative amount", func(p *Preferences) { p.Amount = "-100" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mut(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, IsDataError(err))
		})
	}
}

func TestPreferencesAmountInt(t *testing.T) {
	p := Preferences{MakerAsset: "0xaaa", TakerAsset: "0xbbb", Amount: "123456789012345678901234567890"}
	amount, err := p.AmountInt()
	require.NoError(t, err)

	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, 0, amount.Cmp(want))
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.False(t, OrderStatusCreated.IsTerminal())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusExpired.IsTerminal())
	assert.True(t, OrderStatusFailed.IsTerminal())
}

func TestOrderIsExpiredAt(t *testing.T) {
	expiry := time.Unix(1700000000, 0)
	order := Order{ExpiresAt: expiry}

	assert.False(t, order.IsExpiredAt(expiry.Add(-time.Second)))
	assert.True(t, order.IsExpiredAt(expiry))
	assert.True(t, order.IsExpiredAt(expiry.Add(time.Second)))
}

func TestHexBytesJSON(t *testing.T) {
	h := HexBytes{0xde, 0xad, 0xbe, 0xef}

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"0xdeadbeef"`, string(data))

	var decoded HexBytes
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, h, decoded)

	// Unprefixed hex decodes too
	require.NoError(t, json.Unmarshal([]byte(`"deadbeef"`), &decoded))
	assert.Equal(t, h, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &decoded))
}

func TestErrorClassification(t *testing.T) {
	transient := Transient("oracle", assert.AnError)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsDataError(transient))
	assert.ErrorIs(t, transient, assert.AnError)

	dataErr := &DataError{Field: "amount", Reason: "must be positive"}
	assert.True(t, IsDataError(dataErr))
	assert.False(t, IsTransient(dataErr))
	assert.Contains(t, dataErr.Error(), "amount")
}
