package domain

import "github.com/shopspring/decimal"

// LateFeeType selects how a late fee is computed.
type LateFeeType string

const (
	LateFeeTypeFlat       LateFeeType = "flat"
	LateFeeTypePercentage LateFeeType = "percentage"
)

// LateFeePolicy describes a company's late fee settings.
type LateFeePolicy struct {
	Type      LateFeeType
	Amount    decimal.Decimal
	MaxAmount *decimal.Decimal
	GraceDays int
}

// CalculateLateFee returns the fee for an invoice total. Percentage fees are
// taken from the total; the optional cap applies to both types.
func CalculateLateFee(total decimal.Decimal, policy LateFeePolicy) decimal.Decimal {
	var fee decimal.Decimal
	switch policy.Type {
	case LateFeeTypeFlat:
		fee = policy.Amount
	case LateFeeTypePercentage:
		fee = total.Mul(policy.Amount).Div(hundred)
	default:
		fee = decimal.Zero
	}

	if policy.MaxAmount != nil && policy.MaxAmount.GreaterThan(decimal.Zero) && fee.GreaterThan(*policy.MaxAmount) {
		fee = *policy.MaxAmount
	}

	return RoundMoney(fee)
}
