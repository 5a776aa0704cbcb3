package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zaytech/snapstore/internal/auth"
	"github.com/zaytech/snapstore/internal/commerce"
	"github.com/zaytech/snapstore/pkg/ledger"
)

const (
	constraintProductSlug = "uniq_products_slug"
	emptyPhotosJSON       = "[]"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectSeller    = "seller"
	errorSubjectClient    = "client"
	errorSubjectProduct   = "product"
	errorSubjectShop      = "shop"
	errorSubjectOrder     = "order"
	errorSubjectCredit    = "credit"
	errorCodeCreate       = "create"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeUpdate       = "update"
)

// Store implements commerce.Store and auth.TokenStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(tx commerce.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(&Store{db: transaction})
	})
}

func (store *Store) GetSellerByUsername(ctx context.Context, username string) (commerce.Seller, error) {
	var record SellerRecord
	err := store.db.WithContext(ctx).Where("username = ?", username).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Seller{}, wrapStoreError(errorSubjectSeller, errorCodeGet, commerce.ErrUnknownSeller)
		}
		return commerce.Seller{}, wrapStoreError(errorSubjectSeller, errorCodeGet, err)
	}
	return mapSeller(record), nil
}

func (store *Store) GetSeller(ctx context.Context, sellerID string) (commerce.Seller, error) {
	var record SellerRecord
	err := store.db.WithContext(ctx).Where("seller_id = ?", sellerID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Seller{}, wrapStoreError(errorSubjectSeller, errorCodeGet, commerce.ErrUnknownSeller)
		}
		return commerce.Seller{}, wrapStoreError(errorSubjectSeller, errorCodeGet, err)
	}
	return mapSeller(record), nil
}

func (store *Store) CreateSeller(ctx context.Context, seller commerce.Seller) error {
	record := SellerRecord{
		SellerID:     seller.ID,
		Username:     seller.Username,
		Name:         seller.Name,
		Email:        seller.Email,
		PasswordHash: seller.PasswordHash,
		IsAdmin:      seller.IsAdmin,
		CreatedAt:    seller.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectSeller, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) CreateClient(ctx context.Context, client commerce.Client) error {
	record := ClientRecord{
		ClientID:  client.ID,
		Name:      client.Name,
		CreatedAt: client.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectClient, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetClient(ctx context.Context, clientID string) (commerce.Client, error) {
	var record ClientRecord
	err := store.db.WithContext(ctx).
		Preload("Shops.Orders").
		Preload("Credits").
		Where("client_id = ?", clientID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, commerce.ErrUnknownClient)
		}
		return commerce.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, err)
	}
	return mapClient(record), nil
}

func (store *Store) ListClients(ctx context.Context) ([]commerce.Client, error) {
	var records []ClientRecord
	err := store.db.WithContext(ctx).
		Preload("Shops.Orders").
		Preload("Credits").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClient, errorCodeList, err)
	}
	clients := make([]commerce.Client, 0, len(records))
	for _, record := range records {
		clients = append(clients, mapClient(record))
	}
	return clients, nil
}

func (store *Store) SearchClientsByName(ctx context.Context, fragment string) ([]commerce.Client, error) {
	var records []ClientRecord
	err := store.db.WithContext(ctx).
		Preload("Shops.Orders").
		Preload("Credits").
		Where("name LIKE ?", "%"+fragment+"%").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClient, errorCodeList, err)
	}
	clients := make([]commerce.Client, 0, len(records))
	for _, record := range records {
		clients = append(clients, mapClient(record))
	}
	return clients, nil
}

func (store *Store) CreateProduct(ctx context.Context, product commerce.Product) error {
	record, err := productRecord(product)
	if err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	err = store.db.WithContext(ctx).Create(&record).Error
	if isSlugConflict(err) {
		return wrapStoreError(errorSubjectProduct, errorCodeDuplicate, commerce.ErrSlugTaken)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) UpdateProduct(ctx context.Context, product commerce.Product) error {
	record, err := productRecord(product)
	if err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	result := store.db.WithContext(ctx).
		Model(&ProductRecord{}).
		Where("product_id = ?", record.ProductID).
		Updates(map[string]any{
			"name":        record.Name,
			"slug":        record.Slug,
			"category":    record.Category,
			"price_cents": record.PriceCents,
			"cost_cents":  record.CostCents,
			"amount":      record.Amount,
			"photos":      record.Photos,
		})
	if isSlugConflict(result.Error) {
		return wrapStoreError(errorSubjectProduct, errorCodeDuplicate, commerce.ErrSlugTaken)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeUpdate, commerce.ErrUnknownProduct)
	}
	return nil
}

func (store *Store) DeleteProduct(ctx context.Context, productID string) error {
	result := store.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&ProductRecord{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeDelete, commerce.ErrUnknownProduct)
	}
	return nil
}

func (store *Store) GetProduct(ctx context.Context, productID string) (commerce.Product, error) {
	var record ProductRecord
	err := store.db.WithContext(ctx).Where("product_id = ?", productID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, commerce.ErrUnknownProduct)
		}
		return commerce.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	return mapProduct(record)
}

func (store *Store) GetProductBySlug(ctx context.Context, slug string) (commerce.Product, error) {
	var record ProductRecord
	err := store.db.WithContext(ctx).Where("slug = ?", slug).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, commerce.ErrUnknownProduct)
		}
		return commerce.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	return mapProduct(record)
}

func (store *Store) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	var records []ProductRecord
	err := store.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProduct, errorCodeList, err)
	}
	products := make([]commerce.Product, 0, len(records))
	for _, record := range records {
		product, err := mapProduct(record)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (store *Store) AdjustProductStock(ctx context.Context, productID string, delta int64) error {
	result := store.db.WithContext(ctx).
		Model(&ProductRecord{}).
		Where("product_id = ?", productID).
		Update("amount", gorm.Expr("amount + ?", delta))
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeUpdate, commerce.ErrUnknownProduct)
	}
	return nil
}

func (store *Store) CreateShop(ctx context.Context, shop commerce.Shop) error {
	record := ShopRecord{
		ShopID:          shop.ID,
		ClientID:        shop.ClientID,
		AmountPaidCents: shop.AmountPaidCents.Int64(),
		TypeOfPayment:   shop.TypeOfPayment,
		ReferenceID:     shop.ReferenceID,
		Status:          shop.Status,
		CreatedAt:       shop.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectShop, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetShop(ctx context.Context, shopID string) (commerce.Shop, error) {
	var record ShopRecord
	err := store.db.WithContext(ctx).
		Preload("Orders").
		Where("shop_id = ?", shopID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commerce.Shop{}, wrapStoreError(errorSubjectShop, errorCodeGet, commerce.ErrUnknownShop)
		}
		return commerce.Shop{}, wrapStoreError(errorSubjectShop, errorCodeGet, err)
	}
	return mapShop(record), nil
}

func (store *Store) ListShops(ctx context.Context) ([]commerce.Shop, error) {
	var records []ShopRecord
	err := store.db.WithContext(ctx).
		Preload("Orders").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectShop, errorCodeList, err)
	}
	shops := make([]commerce.Shop, 0, len(records))
	for _, record := range records {
		shops = append(shops, mapShop(record))
	}
	return shops, nil
}

func (store *Store) CreateOrder(ctx context.Context, order commerce.Order) error {
	record := OrderRecord{
		OrderID:     order.ID,
		ShopID:      order.ShopID,
		ProductID:   order.ProductID,
		ProductName: order.ProductName,
		Quantity:    order.Quantity,
		PriceCents:  order.PriceCents.Int64(),
		CreatedAt:   order.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectOrder, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) CreateCredit(ctx context.Context, credit commerce.Credit) error {
	record := CreditRecord{
		CreditID:   credit.ID,
		ClientID:   credit.ClientID,
		ValueCents: credit.ValueCents.Int64(),
		CreatedAt:  credit.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return wrapStoreError(errorSubjectCredit, errorCodeCreate, err)
	}
	return nil
}

// SaveRefreshToken implements auth.TokenStore.
func (store *Store) SaveRefreshToken(ctx context.Context, token auth.RefreshToken) error {
	record := RefreshTokenRecord{
		Token:     token.Token,
		SellerID:  token.SellerID,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
	return store.db.WithContext(ctx).Create(&record).Error
}

// GetRefreshToken implements auth.TokenStore.
func (store *Store) GetRefreshToken(ctx context.Context, raw string) (auth.RefreshToken, error) {
	var record RefreshTokenRecord
	err := store.db.WithContext(ctx).Where("token = ?", raw).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.RefreshToken{}, auth.ErrUnknownRefreshToken
		}
		return auth.RefreshToken{}, err
	}
	return auth.RefreshToken{
		Token:     record.Token,
		SellerID:  record.SellerID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

// DeleteRefreshToken implements auth.TokenStore.
func (store *Store) DeleteRefreshToken(ctx context.Context, raw string) error {
	return store.db.WithContext(ctx).Where("token = ?", raw).Delete(&RefreshTokenRecord{}).Error
}

// DeleteRefreshTokensForSeller implements auth.TokenStore.
func (store *Store) DeleteRefreshTokensForSeller(ctx context.Context, sellerID string) error {
	return store.db.WithContext(ctx).Where("seller_id = ?", sellerID).Delete(&RefreshTokenRecord{}).Error
}

func wrapStoreError(subject string, code string, err error) error {
	return commerce.WrapError(errorOperationStore, subject, code, err)
}

func mapSeller(record SellerRecord) commerce.Seller {
	return commerce.Seller{
		ID:           record.SellerID,
		Username:     record.Username,
		Name:         record.Name,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		IsAdmin:      record.IsAdmin,
		CreatedAt:    record.CreatedAt,
	}
}

func mapClient(record ClientRecord) commerce.Client {
	shops := make([]commerce.Shop, 0, len(record.Shops))
	for _, shopRecord := range record.Shops {
		shops = append(shops, mapShop(shopRecord))
	}
	credits := make([]commerce.Credit, 0, len(record.Credits))
	for _, creditRecord := range record.Credits {
		credits = append(credits, commerce.Credit{
			ID:         creditRecord.CreditID,
			ClientID:   creditRecord.ClientID,
			ValueCents: ledger.AmountCents(creditRecord.ValueCents),
			CreatedAt:  creditRecord.CreatedAt,
		})
	}
	return commerce.Client{
		ID:        record.ClientID,
		Name:      record.Name,
		Shops:     shops,
		Credits:   credits,
		CreatedAt: record.CreatedAt,
	}
}

func mapShop(record ShopRecord) commerce.Shop {
	orders := make([]commerce.Order, 0, len(record.Orders))
	for _, orderRecord := range record.Orders {
		orders = append(orders, commerce.Order{
			ID:          orderRecord.OrderID,
			ShopID:      orderRecord.ShopID,
			ProductID:   orderRecord.ProductID,
			ProductName: orderRecord.ProductName,
			Quantity:    orderRecord.Quantity,
			PriceCents:  ledger.AmountCents(orderRecord.PriceCents),
			CreatedAt:   orderRecord.CreatedAt,
		})
	}
	return commerce.Shop{
		ID:              record.ShopID,
		ClientID:        record.ClientID,
		AmountPaidCents: ledger.AmountCents(record.AmountPaidCents),
		TypeOfPayment:   record.TypeOfPayment,
		ReferenceID:     record.ReferenceID,
		Status:          record.Status,
		Orders:          orders,
		CreatedAt:       record.CreatedAt,
	}
}

func mapProduct(record ProductRecord) (commerce.Product, error) {
	var photos []commerce.Photo
	if len(record.Photos) > 0 {
		if err := json.Unmarshal(record.Photos, &photos); err != nil {
			return commerce.Product{}, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
		}
	}
	return commerce.Product{
		ID:         record.ProductID,
		Name:       record.Name,
		Slug:       record.Slug,
		Category:   record.Category,
		PriceCents: ledger.AmountCents(record.PriceCents),
		CostCents:  ledger.AmountCents(record.CostCents),
		Amount:     record.Amount,
		Photos:     photos,
		CreatedAt:  record.CreatedAt,
	}, nil
}

func productRecord(product commerce.Product) (ProductRecord, error) {
	photosJSON := []byte(emptyPhotosJSON)
	if len(product.Photos) > 0 {
		encoded, err := json.Marshal(product.Photos)
		if err != nil {
			return ProductRecord{}, err
		}
		photosJSON = encoded
	}
	return ProductRecord{
		ProductID:  product.ID,
		Name:       product.Name,
		Slug:       product.Slug,
		Category:   product.Category,
		PriceCents: product.PriceCents.Int64(),
		CostCents:  product.CostCents.Int64(),
		Amount:     product.Amount,
		Photos:     datatypes.JSON(photosJSON),
		CreatedAt:  product.CreatedAt,
	}, nil
}

func isSlugConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintProductSlug
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
