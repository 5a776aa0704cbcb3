package httpapi

import (
	"time"

	"github.com/zaytech/snapstore/internal/commerce"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	User         sellerPayload `json:"user"`
}

type tokenPairResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type sellerPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

type createClientRequest struct {
	Name string `json:"name"`
}

type createProductRequest struct {
	Name     string           `json:"name"`
	Slug     string           `json:"slug"`
	Category string           `json:"category"`
	Price    int64            `json:"price"`
	Cost     int64            `json:"cost"`
	Amount   int64            `json:"amount"`
	Photos   []commerce.Photo `json:"photos"`
}

type updateProductRequest struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Price    *int64  `json:"price"`
	Cost     *int64  `json:"cost"`
	Amount   *int64  `json:"amount"`
}

type createShopRequest struct {
	ClientID      string `json:"clientId"`
	AmountPaid    int64  `json:"amountPaid"`
	TypeOfPayment string `json:"typeOfPayment"`
}

type createOrderRequest struct {
	ProductID string `json:"productId"`
	ShopID    string `json:"shopId"`
	Quantity  int64  `json:"quantity"`
}

type createCreditRequest struct {
	ClientID string `json:"clientId"`
	Value    int64  `json:"value"`
}

type productPayload struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	Category  string           `json:"category"`
	Price     int64            `json:"price"`
	Cost      int64            `json:"cost"`
	Amount    int64            `json:"amount"`
	Photos    []commerce.Photo `json:"photos"`
	CreatedAt time.Time        `json:"createdAt"`
}

type orderProductPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type orderPayload struct {
	ID        string              `json:"id"`
	Quantity  int64               `json:"quantity"`
	Product   orderProductPayload `json:"product"`
	CreatedAt time.Time           `json:"createdAt"`
}

type shopPayload struct {
	ID            string         `json:"id"`
	AmountPaid    int64          `json:"amountPaid"`
	Orders        []orderPayload `json:"order"`
	TypeOfPayment string         `json:"typeOfPayment"`
	ReferenceID   string         `json:"referenceId"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type creditPayload struct {
	ID        string    `json:"id"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

type clientPayload struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Shops     []shopPayload   `json:"shop"`
	Credits   []creditPayload `json:"credit"`
	CreatedAt time.Time       `json:"createdAt"`
}

func sellerToPayload(seller commerce.Seller) sellerPayload {
	return sellerPayload{
		Name:    seller.Name,
		Email:   seller.Email,
		IsAdmin: seller.IsAdmin,
	}
}

func productToPayload(product commerce.Product) productPayload {
	photos := product.Photos
	if photos == nil {
		photos = []commerce.Photo{}
	}
	return productPayload{
		ID:        product.ID,
		Name:      product.Name,
		Slug:      product.Slug,
		Category:  product.Category,
		Price:     product.PriceCents.Int64(),
		Cost:      product.CostCents.Int64(),
		Amount:    product.Amount,
		Photos:    photos,
		CreatedAt: product.CreatedAt,
	}
}

func orderToPayload(order commerce.Order) orderPayload {
	return orderPayload{
		ID:       order.ID,
		Quantity: order.Quantity,
		Product: orderProductPayload{
			ID:    order.ProductID,
			Name:  order.ProductName,
			Price: order.PriceCents.Int64(),
		},
		CreatedAt: order.CreatedAt,
	}
}

func shopToPayload(shop commerce.Shop) shopPayload {
	orders := make([]orderPayload, 0, len(shop.Orders))
	for _, order := range shop.Orders {
		orders = append(orders, orderToPayload(order))
	}
	return shopPayload{
		ID:            shop.ID,
		AmountPaid:    shop.AmountPaidCents.Int64(),
		Orders:        orders,
		TypeOfPayment: shop.TypeOfPayment,
		ReferenceID:   shop.ReferenceID,
		Status:        shop.Status,
		CreatedAt:     shop.CreatedAt,
	}
}

func creditToPayload(credit commerce.Credit) creditPayload {
	return creditPayload{
		ID:        credit.ID,
		Value:     credit.ValueCents.Int64(),
		CreatedAt: credit.CreatedAt,
	}
}

func clientToPayload(client commerce.Client) clientPayload {
	shops := make([]shopPayload, 0, len(client.Shops))
	for _, shop := range client.Shops {
		shops = append(shops, shopToPayload(shop))
	}
	credits := make([]creditPayload, 0, len(client.Credits))
	for _, credit := range client.Credits {
		credits = append(credits, creditToPayload(credit))
	}
	return clientPayload{
		ID:        client.ID,
		Name:      client.Name,
		Shops:     shops,
		Credits:   credits,
		CreatedAt: client.CreatedAt,
	}
}

func clientsToPayload(clients []commerce.Client) []clientPayload {
	payloads := make([]clientPayload, 0, len(clients))
	for _, client := range clients {
		payloads = append(payloads, clientToPayload(client))
	}
	return payloads
}
