package commerce

import (
	"time"

	"github.com/zaytech/snapstore/pkg/ledger"
)

// Seller is a dashboard operator account.
type Seller struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Photo is a stored reference to an already-uploaded product image.
type Photo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Product is a catalog item. Price and cost are integer centavos.
type Product struct {
	ID         string
	Name       string
	Slug       string
	Category   string
	PriceCents ledger.AmountCents
	CostCents  ledger.AmountCents
	Amount     int64 // units in stock
	Photos     []Photo
	CreatedAt  time.Time
}

// Order is a sale line item. PriceCents is the unit price frozen when the
// order was placed; catalog updates never touch it.
type Order struct {
	ID          string
	ShopID      string
	ProductID   string
	ProductName string
	Quantity    int64
	PriceCents  ledger.AmountCents
	CreatedAt   time.Time
}

// Shop is a completed sale against a client.
type Shop struct {
	ID              string
	ClientID        string
	AmountPaidCents ledger.AmountCents
	TypeOfPayment   string
	ReferenceID     string
	Status          string
	Orders          []Order
	CreatedAt       time.Time
}

// Credit is a standalone payment or adjustment on a client's ledger.
type Credit struct {
	ID         string
	ClientID   string
	ValueCents ledger.AmountCents
	CreatedAt  time.Time
}

// Client owns the shop and credit collections its balance derives from.
type Client struct {
	ID        string
	Name      string
	Shops     []Shop
	Credits   []Credit
	CreatedAt time.Time
}

// LedgerRecords maps the client's collections onto the calculator's record
// shapes.
func (client Client) LedgerRecords() ([]ledger.Shop, []ledger.Credit) {
	shops := make([]ledger.Shop, 0, len(client.Shops))
	for _, shop := range client.Shops {
		orders := make([]ledger.Order, 0, len(shop.Orders))
		for _, order := range shop.Orders {
			orders = append(orders, ledger.Order{
				ID:       order.ID,
				Quantity: order.Quantity,
				Product: ledger.Product{
					ID:    order.ProductID,
					Name:  order.ProductName,
					Price: order.PriceCents,
				},
				CreatedAt: order.CreatedAt,
			})
		}
		shops = append(shops, ledger.Shop{
			ID:         shop.ID,
			AmountPaid: shop.AmountPaidCents,
			Orders:     orders,
			CreatedAt:  shop.CreatedAt,
		})
	}
	credits := make([]ledger.Credit, 0, len(client.Credits))
	for _, credit := range client.Credits {
		credits = append(credits, ledger.Credit{
			ID:        credit.ID,
			Value:     credit.ValueCents,
			CreatedAt: credit.CreatedAt,
		})
	}
	return shops, credits
}

// Balance derives the client's signed balance in centavos.
func (client Client) Balance() ledger.AmountCents {
	shops, credits := client.LedgerRecords()
	return ledger.ComputeBalance(shops, credits)
}

// ProductInput carries the fields accepted when creating a product. An empty
// Slug is derived from the name.
type ProductInput struct {
	Name       string
	Slug       string
	Category   string
	PriceCents ledger.AmountCents
	CostCents  ledger.AmountCents
	Amount     int64
	Photos     []Photo
}

// ProductUpdate applies a partial update; nil fields keep their value.
type ProductUpdate struct {
	ID         string
	Name       *string
	Category   *string
	PriceCents *ledger.AmountCents
	CostCents  *ledger.AmountCents
	Amount     *int64
}

// ShopInput carries the fields accepted when recording a sale.
type ShopInput struct {
	ClientID        string
	AmountPaidCents ledger.AmountCents
	TypeOfPayment   string
}

// OrderInput adds a line item to an existing shop.
type OrderInput struct {
	ShopID    string
	ProductID string
	Quantity  int64
}
