package ledger

import "time"

// AmountCents is an integer currency amount in minor units (centavos).
type AmountCents int64

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Product is the price snapshot attached to an order. Price is the unit price
// at the time the order was placed, never a live reference to the catalog.
type Product struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price AmountCents `json:"price"`
}

// Order is a single line item inside a shop record.
type Order struct {
	ID        string    `json:"id"`
	Quantity  int64     `json:"quantity"`
	Product   Product   `json:"product"`
	CreatedAt time.Time `json:"createdAt"`
}

// Shop is a completed sale recorded against a client.
type Shop struct {
	ID         string      `json:"id"`
	AmountPaid AmountCents `json:"amountPaid"`
	Orders     []Order     `json:"order"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Credit is a standalone payment or adjustment not tied to a shop.
type Credit struct {
	ID        string      `json:"id"`
	Value     AmountCents `json:"value"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Client groups the record collections a balance is derived from. Field names
// follow the backend's JSON contract.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Shops     []Shop    `json:"shop"`
	Credits   []Credit  `json:"credit"`
	CreatedAt time.Time `json:"createdAt"`
}
