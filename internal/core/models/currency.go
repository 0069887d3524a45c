package models

import "strings"

type Currency struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Kind     WalletType `json:"kind"`
	Decimals int32      `json:"decimals"` // digits kept after rounding
}

var currencies = map[string]Currency{
	"MWK":  {Code: "MWK", Name: "Malawian Kwacha", Kind: WalletTypeFiat, Decimals: 2},
	"USD":  {Code: "USD", Name: "US Dollar", Kind: WalletTypeFiat, Decimals: 2},
	"EUR":  {Code: "EUR", Name: "Euro", Kind: WalletTypeFiat, Decimals: 2},
	"GBP":  {Code: "GBP", Name: "British Pound", Kind: WalletTypeFiat, Decimals: 2},
	"ZAR":  {Code: "ZAR", Name: "South African Rand", Kind: WalletTypeFiat, Decimals: 2},
	"ZMW":  {Code: "ZMW", Name: "Zambian Kwacha", Kind: WalletTypeFiat, Decimals: 2},
	"KES":  {Code: "KES", Name: "Kenyan Shilling", Kind: WalletTypeFiat, Decimals: 2},
	"TZS":  {Code: "TZS", Name: "Tanzanian Shilling", Kind: WalletTypeFiat, Decimals: 2},
	"BTC":  {Code: "BTC", Name: "Bitcoin", Kind: WalletTypeCrypto, Decimals: 8},
	"ETH":  {Code: "ETH", Name: "Ether", Kind: WalletTypeCrypto, Decimals: 8},
	"USDT": {Code: "USDT", Name: "Tether", Kind: WalletTypeCrypto, Decimals: 8},
}

// LookupCurrency is case-insensitive.
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
