package pricing_test

import (
	"testing"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRateTable_Rate(t *testing.T) {
	rates := pricing.DefaultRates()

	r, err := rates.Rate("USD", "MWK")
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("1750")))

	r, err = rates.Rate("mwk", "usd")
	require.NoError(t, err)
	assert.True(t, r.Equal(dec("0.000571428571")), r.String())

	_, err = rates.Rate("USD", "XYZ")
	assert.ErrorIs(t, err, pricing.ErrUnsupportedPair)
}

func TestRateTable_RoundTripWithoutFee(t *testing.T) {
	rates := pricing.DefaultRates()

	mwk, err := rates.Convert(dec("100"), "USD", "MWK")
	require.NoError(t, err)
	assert.True(t, mwk.Equal(dec("175000")))

	back, err := rates.Convert(mwk, "MWK", "USD")
	require.NoError(t, err)
	assert.True(t, back.Equal(dec("100")), back.String())

	eur, err := rates.Convert(dec("38"), "EUR", "USD")
	require.NoError(t, err)
	again, err := rates.Convert(eur, "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, again.Equal(dec("38")), again.String())
}

func TestService_Fee(t *testing.T) {
	svc := pricing.NewService(nil, pricing.FeeSchedule{
		Send:     dec("1.5"),
		Withdraw: dec("2.5"),
	}, nil)

	assert.True(t, svc.Fee(models.TransactionSend, dec("200"), "MWK").Equal(dec("3")))
	assert.True(t, svc.Fee(models.TransactionWithdraw, dec("10.01"), "USD").Equal(dec("0.25")))
	assert.True(t, svc.Fee(models.TransactionDeposit, dec("200"), "MWK").IsZero())
	assert.True(t, svc.CardPrice(models.CardPhysical).IsZero())
}

func TestService_QuoteExchangeAppliesFeeOnce(t *testing.T) {
	svc := pricing.NewService(nil, pricing.FeeSchedule{Exchange: dec("1")}, nil)

	q, err := svc.QuoteExchange(dec("100"), "USD", "MWK")
	require.NoError(t, err)
	assert.True(t, q.Fee.Equal(dec("1")))
	assert.True(t, q.Converted.Equal(dec("173250")), q.Converted.String())
	assert.True(t, q.Rate.Equal(dec("1750")))

	back, err := svc.QuoteExchange(q.Converted, "MWK", "USD")
	require.NoError(t, err)
	assert.True(t, back.Fee.Equal(dec("1732.5")))
	// 100 × 0.99 × 0.99: one fee per leg, never two on the same leg.
	assert.True(t, back.Converted.Equal(dec("98.01")), back.Converted.String())
}

func TestConvert_RoundsToTargetPrecision(t *testing.T) {
	rates := pricing.DefaultRates()

	btc, err := rates.Convert(dec("1"), "MWK", "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Equal(dec("0.00000001")), btc.String())

	usd, err := rates.Convert(dec("1"), "MWK", "USD")
	require.NoError(t, err)
	assert.True(t, usd.IsZero(), usd.String())

	mwk, err := rates.Convert(dec("0.00001"), "BTC", "MWK")
	require.NoError(t, err)
	assert.True(t, mwk.Equal(dec("1050")), mwk.String())
}
