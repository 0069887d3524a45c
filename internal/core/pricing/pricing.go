// Package pricing is the single source of exchange rates, percentage fees and
// card prices used by the money-movement operations.
package pricing

import (
	"errors"
	"fmt"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/pkg/config"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedPair = errors.New("unsupported currency pair")

const rateScale = 12

var hundred = decimal.NewFromInt(100)

// RateTable stores how many units of the base currency one unit of each
// currency buys. Cross rates are derived from it, so A->B->A is consistent.
type RateTable struct {
	base    string
	perUnit map[string]decimal.Decimal
}

func NewRateTable(base string, perUnit map[string]decimal.Decimal) *RateTable {
	t := &RateTable{base: base, perUnit: map[string]decimal.Decimal{base: decimal.NewFromInt(1)}}
	for code, v := range perUnit {
		t.perUnit[models.NormalizeCurrency(code)] = v
	}
	return t
}

// DefaultRates are the fixed MWK-based rates the product ships with.
func DefaultRates() *RateTable {
	return NewRateTable("MWK", map[string]decimal.Decimal{
		"USD":  decimal.NewFromInt(1750),
		"EUR":  decimal.NewFromInt(1900),
		"GBP":  decimal.NewFromInt(2200),
		"ZAR":  decimal.NewFromInt(95),
		"ZMW":  decimal.NewFromInt(65),
		"KES":  decimal.RequireFromString("13.5"),
		"TZS":  decimal.RequireFromString("0.68"),
		"BTC":  decimal.NewFromInt(105_000_000),
		"ETH":  decimal.NewFromInt(5_600_000),
		"USDT": decimal.NewFromInt(1750),
	})
}

func (t *RateTable) Rate(from, to string) (decimal.Decimal, error) {
	f, okF := t.perUnit[models.NormalizeCurrency(from)]
	d, okT := t.perUnit[models.NormalizeCurrency(to)]
	if !okF || !okT || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, from, to)
	}
	return f.DivRound(d, rateScale), nil
}

// Convert multiplies before dividing so the result does not inherit the
// rounding of the quoted rate.
func (t *RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	f, okF := t.perUnit[models.NormalizeCurrency(from)]
	d, okT := t.perUnit[models.NormalizeCurrency(to)]
	if !okF || !okT || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, from, to)
	}
	return roundFor(amount.Mul(f).Div(d), to), nil
}

type FeeSchedule struct {
	Deposit  decimal.Decimal
	Withdraw decimal.Decimal
	Send     decimal.Decimal
	Exchange decimal.Decimal
}

func (f FeeSchedule) percent(kind models.TransactionType) decimal.Decimal {
	switch kind {
	case models.TransactionDeposit:
		return f.Deposit
	case models.TransactionWithdraw:
		return f.Withdraw
	case models.TransactionSend:
		return f.Send
	case models.TransactionExchange:
		return f.Exchange
	}
	return decimal.Zero
}

type Service struct {
	rates      *RateTable
	fees       FeeSchedule
	cardPrices map[models.CardType]decimal.Decimal
}

func NewService(rates *RateTable, fees FeeSchedule, cardPrices map[models.CardType]decimal.Decimal) *Service {
	if rates == nil {
		rates = DefaultRates()
	}
	if cardPrices == nil {
		cardPrices = map[models.CardType]decimal.Decimal{}
	}
	return &Service{rates: rates, fees: fees, cardPrices: cardPrices}
}

func FromConfig(cfg config.PricingConfig) *Service {
	return NewService(DefaultRates(), FeeSchedule{
		Deposit:  cfg.DepositFeePercent,
		Withdraw: cfg.WithdrawFeePercent,
		Send:     cfg.SendFeePercent,
		Exchange: cfg.ExchangeFeePercent,
	}, map[models.CardType]decimal.Decimal{
		models.CardVirtual:  cfg.CardPriceVirtual,
		models.CardPhysical: cfg.CardPricePhysical,
	})
}

// Fee is amount × percent / 100 rounded to the currency's precision.
func (s *Service) Fee(kind models.TransactionType, amount decimal.Decimal, currency string) decimal.Decimal {
	pct := s.fees.percent(kind)
	if !pct.IsPositive() {
		return decimal.Zero
	}
	return roundFor(amount.Mul(pct).Div(hundred), currency)
}

func (s *Service) CardPrice(t models.CardType) decimal.Decimal {
	return s.cardPrices[t]
}

type Quote struct {
	Rate      decimal.Decimal
	Fee       decimal.Decimal // in the source currency
	Converted decimal.Decimal // (amount - fee) in the target currency
}

// QuoteExchange deducts the exchange fee from amount once and converts the rest.
func (s *Service) QuoteExchange(amount decimal.Decimal, from, to string) (Quote, error) {
	rate, err := s.rates.Rate(from, to)
	if err != nil {
		return Quote{}, err
	}
	fee := s.Fee(models.TransactionExchange, amount, from)
	converted, err := s.rates.Convert(amount.Sub(fee), from, to)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Rate: rate, Fee: fee, Converted: converted}, nil
}

// roundFor rounds to the currency's precision (2 places when unknown).
func roundFor(amount decimal.Decimal, currency string) decimal.Decimal {
	if c, ok := models.LookupCurrency(currency); ok {
		return amount.Round(c.Decimals)
	}
	return amount.Round(2)
}
