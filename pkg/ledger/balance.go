package ledger

// Indicator selects the visual treatment for a balance amount.
type Indicator string

const (
	IndicatorPositive Indicator = "positive"
	IndicatorNegative Indicator = "negative"
)

// ComputeBalance derives a client's signed balance:
//
//	Σ shop.amountPaid + Σ credit.value − Σ order.quantity × order.product.price
//
// The traversal is a single flat pass; the result does not depend on the order
// of the input collections. Empty or nil inputs count as zero. The function
// never fails: negative quantities, prices, or paid amounts are aggregated
// as-is and show up as a skewed balance rather than an error.
func ComputeBalance(shops []Shop, credits []Credit) AmountCents {
	var balance AmountCents
	for _, shop := range shops {
		balance += shop.AmountPaid
		for _, order := range shop.Orders {
			balance -= AmountCents(order.Quantity) * order.Product.Price
		}
	}
	for _, credit := range credits {
		balance += credit.Value
	}
	return balance
}

// Balance computes the balance over the client's own records.
func (client Client) Balance() AmountCents {
	return ComputeBalance(client.Shops, client.Credits)
}

// Indicator maps the sign of the amount to its display indicator. Exactly
// zero counts as positive.
func (amount AmountCents) Indicator() Indicator {
	if amount < 0 {
		return IndicatorNegative
	}
	return IndicatorPositive
}
