package commerce

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/zaytech/snapstore/pkg/ledger"
)

// Store is the persistence boundary the commerce service runs against.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	GetSellerByUsername(ctx context.Context, username string) (Seller, error)
	GetSeller(ctx context.Context, sellerID string) (Seller, error)
	CreateSeller(ctx context.Context, seller Seller) error

	CreateClient(ctx context.Context, client Client) error
	GetClient(ctx context.Context, clientID string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	SearchClientsByName(ctx context.Context, fragment string) ([]Client, error)

	CreateProduct(ctx context.Context, product Product) error
	UpdateProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	AdjustProductStock(ctx context.Context, productID string, delta int64) error

	CreateShop(ctx context.Context, shop Shop) error
	GetShop(ctx context.Context, shopID string) (Shop, error)
	ListShops(ctx context.Context) ([]Shop, error)

	CreateOrder(ctx context.Context, order Order) error

	CreateCredit(ctx context.Context, credit Credit) error
}

// Service implements the catalog, client, and sale operations behind the
// dashboard API.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService builds a Service over the given store.
func NewService(store Store, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, WrapError("new_service", "store", "nil_store", ErrInvalidServiceConfig)
	}
	service := &Service{
		store: store,
		nowFn: time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service, nil
}

// WithNowFunc overrides the clock used for created-at timestamps.
func WithNowFunc(nowFn func() time.Time) ServiceOption {
	return func(service *Service) {
		if nowFn != nil {
			service.nowFn = nowFn
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	service.logger.LogOperation(ctx, entry)
}

// GetSellerByUsername looks up a seller account for authentication.
func (service *Service) GetSellerByUsername(ctx context.Context, username string) (Seller, error) {
	seller, err := service.store.GetSellerByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return Seller{}, WrapError("get_seller", "seller", "lookup_failed", err)
	}
	return seller, nil
}

// GetSeller returns the seller identified by sellerID.
func (service *Service) GetSeller(ctx context.Context, sellerID string) (Seller, error) {
	seller, err := service.store.GetSeller(ctx, sellerID)
	if err != nil {
		return Seller{}, WrapError("get_seller", "seller", "lookup_failed", err)
	}
	return seller, nil
}

// CreateClient registers a new client with an empty ledger.
func (service *Service) CreateClient(ctx context.Context, name string) (Client, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Client{}, WrapError(operationCreateClient, "client", "empty_name", ErrInvalidClientName)
	}
	client := Client{
		ID:        uuid.NewString(),
		Name:      trimmedName,
		CreatedAt: service.nowFn().UTC(),
	}
	if err := service.store.CreateClient(ctx, client); err != nil {
		wrapped := WrapError(operationCreateClient, "client", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationCreateClient,
			EntityID:  client.ID,
			ClientID:  client.ID,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return Client{}, wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateClient,
		EntityID:  client.ID,
		ClientID:  client.ID,
		Status:    operationStatusOK,
	})
	return client, nil
}

// GetClient returns one client with its shops, orders, and credits loaded.
func (service *Service) GetClient(ctx context.Context, clientID string) (Client, error) {
	client, err := service.store.GetClient(ctx, clientID)
	if err != nil {
		return Client{}, WrapError("get_client", "client", "lookup_failed", err)
	}
	return client, nil
}

// ListClients returns every client with collections loaded.
func (service *Service) ListClients(ctx context.Context) ([]Client, error) {
	clients, err := service.store.ListClients(ctx)
	if err != nil {
		return nil, WrapError("list_clients", "client", "store_failed", err)
	}
	return clients, nil
}

// SearchClients returns clients whose name contains the given fragment.
func (service *Service) SearchClients(ctx context.Context, fragment string) ([]Client, error) {
	trimmedFragment := strings.TrimSpace(fragment)
	if trimmedFragment == "" {
		return service.ListClients(ctx)
	}
	clients, err := service.store.SearchClientsByName(ctx, trimmedFragment)
	if err != nil {
		return nil, WrapError("search_clients", "client", "store_failed", err)
	}
	return clients, nil
}

// ClientBalance derives the client's signed ledger balance in centavos.
func (service *Service) ClientBalance(ctx context.Context, clientID string) (ledger.AmountCents, error) {
	client, err := service.store.GetClient(ctx, clientID)
	if err != nil {
		return 0, WrapError("client_balance", "client", "lookup_failed", err)
	}
	return client.Balance(), nil
}

// CreateProduct adds a catalog item. An empty slug is derived from the name.
func (service *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	trimmedName := strings.TrimSpace(input.Name)
	if trimmedName == "" {
		return Product{}, WrapError(operationCreateProduct, "product", "empty_name", ErrInvalidProductName)
	}
	if input.PriceCents < 0 || input.CostCents < 0 {
		return Product{}, WrapError(operationCreateProduct, "product", "negative_amount", ErrInvalidAmountCents)
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(trimmedName)
	}
	product := Product{
		ID:         uuid.NewString(),
		Name:       trimmedName,
		Slug:       slug,
		Category:   strings.TrimSpace(input.Category),
		PriceCents: input.PriceCents,
		CostCents:  input.CostCents,
		Amount:     input.Amount,
		Photos:     input.Photos,
		CreatedAt:  service.nowFn().UTC(),
	}
	if err := service.store.CreateProduct(ctx, product); err != nil {
		wrapped := WrapError(operationCreateProduct, "product", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationCreateProduct,
			EntityID:  product.ID,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return Product{}, wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateProduct,
		EntityID:  product.ID,
		Amount:    product.PriceCents,
		Status:    operationStatusOK,
	})
	return product, nil
}

// UpdateProduct applies a partial catalog update. Existing orders keep the
// unit price frozen at sale time.
func (service *Service) UpdateProduct(ctx context.Context, update ProductUpdate) (Product, error) {
	product, err := service.store.GetProduct(ctx, update.ID)
	if err != nil {
		return Product{}, WrapError(operationUpdateProduct, "product", "lookup_failed", err)
	}
	if update.Name != nil {
		trimmedName := strings.TrimSpace(*update.Name)
		if trimmedName == "" {
			return Product{}, WrapError(operationUpdateProduct, "product", "empty_name", ErrInvalidProductName)
		}
		product.Name = trimmedName
	}
	if update.Category != nil {
		product.Category = strings.TrimSpace(*update.Category)
	}
	if update.PriceCents != nil {
		if *update.PriceCents < 0 {
			return Product{}, WrapError(operationUpdateProduct, "product", "negative_amount", ErrInvalidAmountCents)
		}
		product.PriceCents = *update.PriceCents
	}
	if update.CostCents != nil {
		if *update.CostCents < 0 {
			return Product{}, WrapError(operationUpdateProduct, "product", "negative_amount", ErrInvalidAmountCents)
		}
		product.CostCents = *update.CostCents
	}
	if update.Amount != nil {
		product.Amount = *update.Amount
	}
	if err := service.store.UpdateProduct(ctx, product); err != nil {
		wrapped := WrapError(operationUpdateProduct, "product", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationUpdateProduct,
			EntityID:  product.ID,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return Product{}, wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateProduct,
		EntityID:  product.ID,
		Amount:    product.PriceCents,
		Status:    operationStatusOK,
	})
	return product, nil
}

// DeleteProduct removes a catalog item. Recorded orders survive because they
// carry their own price and name snapshots.
func (service *Service) DeleteProduct(ctx context.Context, productID string) error {
	if err := service.store.DeleteProduct(ctx, productID); err != nil {
		wrapped := WrapError(operationDeleteProduct, "product", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationDeleteProduct,
			EntityID:  productID,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteProduct,
		EntityID:  productID,
		Status:    operationStatusOK,
	})
	return nil
}

// GetProduct returns the product identified by productID.
func (service *Service) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := service.store.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, WrapError("get_product", "product", "lookup_failed", err)
	}
	return product, nil
}

// GetProductBySlug returns the product identified by its unique slug.
func (service *Service) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	product, err := service.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return Product{}, WrapError("get_product", "product", "lookup_failed", err)
	}
	return product, nil
}

// ListProducts returns the whole catalog.
func (service *Service) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := service.store.ListProducts(ctx)
	if err != nil {
		return nil, WrapError("list_products", "product", "store_failed", err)
	}
	return products, nil
}

// CreateShop opens a sale against a client.
func (service *Service) CreateShop(ctx context.Context, input ShopInput) (Shop, error) {
	if input.AmountPaidCents < 0 {
		return Shop{}, WrapError(operationCreateShop, "shop", "negative_amount", ErrInvalidAmountCents)
	}
	if _, err := service.store.GetClient(ctx, input.ClientID); err != nil {
		return Shop{}, WrapError(operationCreateShop, "shop", "client_lookup_failed", err)
	}
	shop := Shop{
		ID:              uuid.NewString(),
		ClientID:        input.ClientID,
		AmountPaidCents: input.AmountPaidCents,
		TypeOfPayment:   strings.TrimSpace(input.TypeOfPayment),
		ReferenceID:     uuid.NewString(),
		Status:          ShopStatusCompleted,
		CreatedAt:       service.nowFn().UTC(),
	}
	if err := service.store.CreateShop(ctx, shop); err != nil {
		wrapped := WrapError(operationCreateShop, "shop", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationCreateShop,
			EntityID:  shop.ID,
			ClientID:  shop.ClientID,
			Amount:    shop.AmountPaidCents,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return Shop{}, wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateShop,
		EntityID:  shop.ID,
		ClientID:  shop.ClientID,
		Amount:    shop.AmountPaidCents,
		Status:    operationStatusOK,
	})
	return shop, nil
}

// GetShop returns one shop with its orders loaded.
func (service *Service) GetShop(ctx context.Context, shopID string) (Shop, error) {
	shop, err := service.store.GetShop(ctx, shopID)
	if err != nil {
		return Shop{}, WrapError("get_shop", "shop", "lookup_failed", err)
	}
	return shop, nil
}

// ListShops returns every shop with orders loaded.
func (service *Service) ListShops(ctx context.Context) ([]Shop, error) {
	shops, err := service.store.ListShops(ctx)
	if err != nil {
		return nil, WrapError("list_shops", "shop", "store_failed", err)
	}
	return shops, nil
}

// AddOrder appends a line item to a shop. The product's unit price and name
// are copied onto the order so later catalog changes leave the ledger intact,
// and stock is decremented in the same transaction.
func (service *Service) AddOrder(ctx context.Context, input OrderInput) (Order, error) {
	if input.Quantity <= 0 {
		return Order{}, WrapError(operationAddOrder, "order", "non_positive_quantity", ErrInvalidQuantity)
	}
	var created Order
	txErr := service.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetShop(ctx, input.ShopID); err != nil {
			return WrapError(operationAddOrder, "order", "shop_lookup_failed", err)
		}
		product, err := tx.GetProduct(ctx, input.ProductID)
		if err != nil {
			return WrapError(operationAddOrder, "order", "product_lookup_failed", err)
		}
		if product.Amount < input.Quantity {
			return WrapError(operationAddOrder, "order", "stock_exhausted", ErrInsufficientStock)
		}
		created = Order{
			ID:          uuid.NewString(),
			ShopID:      input.ShopID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			PriceCents:  product.PriceCents,
			CreatedAt:   service.nowFn().UTC(),
		}
		if err := tx.CreateOrder(ctx, created); err != nil {
			return WrapError(operationAddOrder, "order", "store_failed", err)
		}
		if err := tx.AdjustProductStock(ctx, product.ID, -input.Quantity); err != nil {
			return WrapError(operationAddOrder, "order", "stock_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationAddOrder,
			EntityID:  input.ShopID,
			Status:    operationStatusError,
			Error:     txErr,
		})
		return Order{}, txErr
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationAddOrder,
		EntityID:  created.ID,
		Amount:    created.PriceCents * ledger.AmountCents(created.Quantity),
		Status:    operationStatusOK,
	})
	return created, nil
}

// CreateCredit records a payment or adjustment on a client's ledger. Negative
// values are accepted and lower the balance.
func (service *Service) CreateCredit(ctx context.Context, clientID string, valueCents ledger.AmountCents) (Credit, error) {
	if _, err := service.store.GetClient(ctx, clientID); err != nil {
		return Credit{}, WrapError(operationCreateCredit, "credit", "client_lookup_failed", err)
	}
	credit := Credit{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		ValueCents: valueCents,
		CreatedAt:  service.nowFn().UTC(),
	}
	if err := service.store.CreateCredit(ctx, credit); err != nil {
		wrapped := WrapError(operationCreateCredit, "credit", "store_failed", err)
		service.logOperation(ctx, OperationLog{
			Operation: operationCreateCredit,
			EntityID:  credit.ID,
			ClientID:  credit.ClientID,
			Amount:    credit.ValueCents,
			Status:    operationStatusError,
			Error:     wrapped,
		})
		return Credit{}, wrapped
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateCredit,
		EntityID:  credit.ID,
		ClientID:  credit.ClientID,
		Amount:    credit.ValueCents,
		Status:    operationStatusOK,
	})
	return credit, nil
}

// Slugify lowercases the name and collapses runs of non-alphanumeric runes
// into single hyphens.
func Slugify(name string) string {
	var builder strings.Builder
	previousHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
			previousHyphen = false
		default:
			if !previousHyphen {
				builder.WriteRune('-')
				previousHyphen = true
			}
		}
	}
	return strings.TrimSuffix(builder.String(), "-")
}
