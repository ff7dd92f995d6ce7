package inventory

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for prices and costs
const MoneyScale = 2

// RoundMoney rounds d to MoneyScale digits
// 金額を小数点以下2桁に丸める
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseMoney parses a decimal string into a money amount
// 文字列を金額に変換
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "金額の形式が正しくありません", s)
	}
	return RoundMoney(d), nil
}

// MustMoney parses s and panics on error; intended for constants and tests
func MustMoney(s string) decimal.Decimal {
	d, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return d
}

// LineTotal returns qty multiplied by unit price
func LineTotal(qty int64, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(qty)))
}
