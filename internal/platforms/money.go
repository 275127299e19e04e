package platforms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// toCents converts a decimal currency string such as "19.99" to integer cents, rounding half away from zero.
func toCents(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

func optionalCents(amount string) (*int64, error) {
	if strings.TrimSpace(amount) == "" {
		return nil, nil
	}
	cents, err := toCents(amount)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

// fractionToCents converts Etsy's {amount, divisor} money to cents.
func fractionToCents(amount, divisor int64) int64 {
	if divisor <= 0 {
		divisor = 100
	}
	return decimal.NewFromInt(amount).Mul(hundred).Div(decimal.NewFromInt(divisor)).Round(0).IntPart()
}

// flexString accepts a JSON string or number, as storefront APIs are not consistent about ids and prices.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}
