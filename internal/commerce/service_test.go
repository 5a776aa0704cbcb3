package commerce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zaytech/snapstore/pkg/ledger"
)

type stubStore struct {
	mu       sync.Mutex
	sellers  map[string]Seller
	clients  map[string]Client
	products map[string]Product
	shops    map[string]Shop
	orders   map[string][]Order
	credits  map[string][]Credit

	failCreateProduct error
	failCreateShop    error
}

func newStubStore() *stubStore {
	return &stubStore{
		sellers:  map[string]Seller{},
		clients:  map[string]Client{},
		products: map[string]Product{},
		shops:    map[string]Shop{},
		orders:   map[string][]Order{},
		credits:  map[string][]Credit{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(store)
}

func (store *stubStore) GetSellerByUsername(_ context.Context, username string) (Seller, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, seller := range store.sellers {
		if seller.Username == username {
			return seller, nil
		}
	}
	return Seller{}, ErrUnknownSeller
}

func (store *stubStore) GetSeller(_ context.Context, sellerID string) (Seller, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	seller, found := store.sellers[sellerID]
	if !found {
		return Seller{}, ErrUnknownSeller
	}
	return seller, nil
}

func (store *stubStore) CreateSeller(_ context.Context, seller Seller) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.sellers[seller.ID] = seller
	return nil
}

func (store *stubStore) CreateClient(_ context.Context, client Client) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.clients[client.ID] = client
	return nil
}

func (store *stubStore) GetClient(_ context.Context, clientID string) (Client, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	client, found := store.clients[clientID]
	if !found {
		return Client{}, ErrUnknownClient
	}
	return store.loadClientLocked(client), nil
}

func (store *stubStore) loadClientLocked(client Client) Client {
	client.Shops = nil
	for _, shop := range store.shops {
		if shop.ClientID != client.ID {
			continue
		}
		shop.Orders = append([]Order(nil), store.orders[shop.ID]...)
		client.Shops = append(client.Shops, shop)
	}
	client.Credits = append([]Credit(nil), store.credits[client.ID]...)
	return client
}

func (store *stubStore) ListClients(_ context.Context) ([]Client, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	clients := make([]Client, 0, len(store.clients))
	for _, client := range store.clients {
		clients = append(clients, store.loadClientLocked(client))
	}
	return clients, nil
}

func (store *stubStore) SearchClientsByName(ctx context.Context, fragment string) ([]Client, error) {
	clients, err := store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	matched := clients[:0]
	for _, client := range clients {
		if client.Name == fragment {
			matched = append(matched, client)
		}
	}
	return matched, nil
}

func (store *stubStore) CreateProduct(_ context.Context, product Product) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failCreateProduct != nil {
		return store.failCreateProduct
	}
	for _, existing := range store.products {
		if existing.Slug == product.Slug {
			return ErrSlugTaken
		}
	}
	store.products[product.ID] = product
	return nil
}

func (store *stubStore) UpdateProduct(_ context.Context, product Product) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, found := store.products[product.ID]; !found {
		return ErrUnknownProduct
	}
	store.products[product.ID] = product
	return nil
}

func (store *stubStore) DeleteProduct(_ context.Context, productID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, found := store.products[productID]; !found {
		return ErrUnknownProduct
	}
	delete(store.products, productID)
	return nil
}

func (store *stubStore) GetProduct(_ context.Context, productID string) (Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	product, found := store.products[productID]
	if !found {
		return Product{}, ErrUnknownProduct
	}
	return product, nil
}

func (store *stubStore) GetProductBySlug(_ context.Context, slug string) (Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, product := range store.products {
		if product.Slug == slug {
			return product, nil
		}
	}
	return Product{}, ErrUnknownProduct
}

func (store *stubStore) ListProducts(_ context.Context) ([]Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	products := make([]Product, 0, len(store.products))
	for _, product := range store.products {
		products = append(products, product)
	}
	return products, nil
}

func (store *stubStore) AdjustProductStock(_ context.Context, productID string, delta int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	product, found := store.products[productID]
	if !found {
		return ErrUnknownProduct
	}
	product.Amount += delta
	store.products[productID] = product
	return nil
}

func (store *stubStore) CreateShop(_ context.Context, shop Shop) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failCreateShop != nil {
		return store.failCreateShop
	}
	store.shops[shop.ID] = shop
	return nil
}

func (store *stubStore) GetShop(_ context.Context, shopID string) (Shop, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	shop, found := store.shops[shopID]
	if !found {
		return Shop{}, ErrUnknownShop
	}
	shop.Orders = append([]Order(nil), store.orders[shop.ID]...)
	return shop, nil
}

func (store *stubStore) ListShops(_ context.Context) ([]Shop, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	shops := make([]Shop, 0, len(store.shops))
	for _, shop := range store.shops {
		shop.Orders = append([]Order(nil), store.orders[shop.ID]...)
		shops = append(shops, shop)
	}
	return shops, nil
}

func (store *stubStore) CreateOrder(_ context.Context, order Order) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.orders[order.ShopID] = append(store.orders[order.ShopID], order)
	return nil
}

func (store *stubStore) CreateCredit(_ context.Context, credit Credit) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.credits[credit.ClientID] = append(store.credits[credit.ClientID], credit)
	return nil
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recordingLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func mustService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, options...)
	if err != nil {
		test.Fatalf("NewService: %v", err)
	}
	return service
}

func mustCreateClient(test *testing.T, service *Service, name string) Client {
	test.Helper()
	client, err := service.CreateClient(context.Background(), name)
	if err != nil {
		test.Fatalf("CreateClient(%q): %v", name, err)
	}
	return client
}

func mustCreateProduct(test *testing.T, service *Service, input ProductInput) Product {
	test.Helper()
	product, err := service.CreateProduct(context.Background(), input)
	if err != nil {
		test.Fatalf("CreateProduct(%q): %v", input.Name, err)
	}
	return product
}

func mustCreateShop(test *testing.T, service *Service, input ShopInput) Shop {
	test.Helper()
	shop, err := service.CreateShop(context.Background(), input)
	if err != nil {
		test.Fatalf("CreateShop: %v", err)
	}
	return shop
}

func TestNewServiceRequiresStore(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestCreateClientRejectsBlankName(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := service.CreateClient(context.Background(), name); !errors.Is(err, ErrInvalidClientName) {
			test.Fatalf("CreateClient(%q): expected ErrInvalidClientName, got %v", name, err)
		}
	}
}

func TestCreateClientTrimsNameAndStampsCreation(test *testing.T) {
	test.Parallel()
	frozenNow := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	service := mustService(test, newStubStore(), WithNowFunc(func() time.Time { return frozenNow }))

	client := mustCreateClient(test, service, "  Ana Souza  ")
	if client.Name != "Ana Souza" {
		test.Fatalf("expected trimmed name, got %q", client.Name)
	}
	if !client.CreatedAt.Equal(frozenNow) {
		test.Fatalf("expected CreatedAt %v, got %v", frozenNow, client.CreatedAt)
	}
	if client.ID == "" {
		test.Fatal("expected generated client id")
	}
}

func TestClientBalanceCombinesShopsOrdersAndCredits(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	client := mustCreateClient(test, service, "Bruno Lima")
	product := mustCreateProduct(test, service, ProductInput{
		Name:       "Espresso Beans",
		PriceCents: 2000,
		Amount:     10,
	})
	shop := mustCreateShop(test, service, ShopInput{ClientID: client.ID, AmountPaidCents: 5000, TypeOfPayment: "pix"})
	if _, err := service.AddOrder(context.Background(), OrderInput{ShopID: shop.ID, ProductID: product.ID, Quantity: 2}); err != nil {
		test.Fatalf("AddOrder: %v", err)
	}
	if _, err := service.CreateCredit(context.Background(), client.ID, 1000); err != nil {
		test.Fatalf("CreateCredit: %v", err)
	}

	balance, err := service.ClientBalance(context.Background(), client.ID)
	if err != nil {
		test.Fatalf("ClientBalance: %v", err)
	}
	if balance != 2000 {
		test.Fatalf("expected balance 2000, got %d", balance)
	}
}

func TestCreateProductDerivesSlugFromName(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())

	cases := []struct {
		name         string
		expectedSlug string
	}{
		{name: "Espresso Beans", expectedSlug: "espresso-beans"},
		{name: "Café com Leite 500g", expectedSlug: "café-com-leite-500g"},
		{name: "  Mixed -- Separators  ", expectedSlug: "mixed-separators"},
	}
	for _, testCase := range cases {
		product := mustCreateProduct(test, service, ProductInput{Name: testCase.name, PriceCents: 100, Amount: 1})
		if product.Slug != testCase.expectedSlug {
			test.Fatalf("Slug for %q: expected %q, got %q", testCase.name, testCase.expectedSlug, product.Slug)
		}
	}
}

func TestCreateProductSurfacesSlugConflict(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	mustCreateProduct(test, service, ProductInput{Name: "Espresso Beans", PriceCents: 100, Amount: 1})

	if _, err := service.CreateProduct(context.Background(), ProductInput{Name: "Espresso Beans", PriceCents: 200, Amount: 1}); !errors.Is(err, ErrSlugTaken) {
		test.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestCreateProductRejectsNegativeAmounts(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	if _, err := service.CreateProduct(context.Background(), ProductInput{Name: "Bad", PriceCents: -1}); !errors.Is(err, ErrInvalidAmountCents) {
		test.Fatalf("expected ErrInvalidAmountCents, got %v", err)
	}
}

func TestUpdateProductLeavesRecordedOrdersUntouched(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	client := mustCreateClient(test, service, "Carla Dias")
	product := mustCreateProduct(test, service, ProductInput{Name: "Espresso Beans", PriceCents: 2000, Amount: 5})
	shop := mustCreateShop(test, service, ShopInput{ClientID: client.ID, AmountPaidCents: 0})
	if _, err := service.AddOrder(context.Background(), OrderInput{ShopID: shop.ID, ProductID: product.ID, Quantity: 1}); err != nil {
		test.Fatalf("AddOrder: %v", err)
	}

	newPrice := ledger.AmountCents(9900)
	if _, err := service.UpdateProduct(context.Background(), ProductUpdate{ID: product.ID, PriceCents: &newPrice}); err != nil {
		test.Fatalf("UpdateProduct: %v", err)
	}

	balance, err := service.ClientBalance(context.Background(), client.ID)
	if err != nil {
		test.Fatalf("ClientBalance: %v", err)
	}
	if balance != -2000 {
		test.Fatalf("expected balance -2000 from the frozen sale price, got %d", balance)
	}
}

func TestAddOrderDecrementsStock(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	client := mustCreateClient(test, service, "Diego Alves")
	product := mustCreateProduct(test, service, ProductInput{Name: "Espresso Beans", PriceCents: 2000, Amount: 5})
	shop := mustCreateShop(test, service, ShopInput{ClientID: client.ID})

	if _, err := service.AddOrder(context.Background(), OrderInput{ShopID: shop.ID, ProductID: product.ID, Quantity: 3}); err != nil {
		test.Fatalf("AddOrder: %v", err)
	}

	updated, err := service.GetProduct(context.Background(), product.ID)
	if err != nil {
		test.Fatalf("GetProduct: %v", err)
	}
	if updated.Amount != 2 {
		test.Fatalf("expected stock 2 after selling 3 of 5, got %d", updated.Amount)
	}
}

func TestAddOrderRejectsInsufficientStock(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	client := mustCreateClient(test, service, "Elisa Prado")
	product := mustCreateProduct(test, service, ProductInput{Name: "Espresso Beans", PriceCents: 2000, Amount: 2})
	shop := mustCreateShop(test, service, ShopInput{ClientID: client.ID})

	if _, err := service.AddOrder(context.Background(), OrderInput{ShopID: shop.ID, ProductID: product.ID, Quantity: 3}); !errors.Is(err, ErrInsufficientStock) {
		test.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	untouched, err := service.GetProduct(context.Background(), product.ID)
	if err != nil {
		test.Fatalf("GetProduct: %v", err)
	}
	if untouched.Amount != 2 {
		test.Fatalf("expected stock unchanged at 2, got %d", untouched.Amount)
	}
}

func TestAddOrderRejectsNonPositiveQuantity(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	for _, quantity := range []int64{0, -1} {
		if _, err := service.AddOrder(context.Background(), OrderInput{ShopID: "any", ProductID: "any", Quantity: quantity}); !errors.Is(err, ErrInvalidQuantity) {
			test.Fatalf("AddOrder(quantity=%d): expected ErrInvalidQuantity, got %v", quantity, err)
		}
	}
}

func TestCreateCreditRequiresKnownClient(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	if _, err := service.CreateCredit(context.Background(), "missing", 100); !errors.Is(err, ErrUnknownClient) {
		test.Fatalf("expected ErrUnknownClient, got %v", err)
	}
}

func TestCreateCreditAcceptsNegativeValues(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	client := mustCreateClient(test, service, "Fábio Reis")

	if _, err := service.CreateCredit(context.Background(), client.ID, -500); err != nil {
		test.Fatalf("CreateCredit(-500): %v", err)
	}
	balance, err := service.ClientBalance(context.Background(), client.ID)
	if err != nil {
		test.Fatalf("ClientBalance: %v", err)
	}
	if balance != -500 {
		test.Fatalf("expected balance -500, got %d", balance)
	}
}

func TestOperationLoggerSeesSuccessAndFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recordingLogger{}
	service := mustService(test, store, WithOperationLogger(logger))

	client := mustCreateClient(test, service, "Gisele Nunes")

	storeFailure := errors.New("disk full")
	store.failCreateShop = storeFailure
	if _, err := service.CreateShop(context.Background(), ShopInput{ClientID: client.ID}); !errors.Is(err, storeFailure) {
		test.Fatalf("expected wrapped store failure, got %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.entries) != 2 {
		test.Fatalf("expected 2 log entries, got %d", len(logger.entries))
	}
	if logger.entries[0].Operation != "create_client" || logger.entries[0].Status != "ok" {
		test.Fatalf("unexpected first entry: %+v", logger.entries[0])
	}
	if logger.entries[1].Operation != "create_shop" || logger.entries[1].Status != "error" || logger.entries[1].Error == nil {
		test.Fatalf("unexpected second entry: %+v", logger.entries[1])
	}
}

func TestSlugify(test *testing.T) {
	test.Parallel()
	cases := []struct {
		input    string
		expected string
	}{
		{input: "Espresso Beans", expected: "espresso-beans"},
		{input: "A  B", expected: "a-b"},
		{input: "trailing!!", expected: "trailing"},
		{input: "UPPER case 123", expected: "upper-case-123"},
	}
	for _, testCase := range cases {
		if got := Slugify(testCase.input); got != testCase.expected {
			test.Fatalf("Slugify(%q): expected %q, got %q", testCase.input, testCase.expected, got)
		}
	}
}
