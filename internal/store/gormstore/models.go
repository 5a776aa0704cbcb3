package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SellerRecord mirrors the sellers table.
type SellerRecord struct {
	SellerID     string    `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"not null;index:uniq_sellers_username,unique"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	IsAdmin      bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (SellerRecord) TableName() string { return "sellers" }

func (seller *SellerRecord) BeforeCreate(tx *gorm.DB) error {
	if seller.SellerID == "" {
		seller.SellerID = uuid.NewString()
	}
	return nil
}

// ClientRecord mirrors the clients table.
type ClientRecord struct {
	ClientID  string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;index:idx_clients_name"`
	CreatedAt time.Time `gorm:"not null"`

	Shops   []ShopRecord   `gorm:"foreignKey:ClientID;references:ClientID"`
	Credits []CreditRecord `gorm:"foreignKey:ClientID;references:ClientID"`
}

func (ClientRecord) TableName() string { return "clients" }

func (client *ClientRecord) BeforeCreate(tx *gorm.DB) error {
	if client.ClientID == "" {
		client.ClientID = uuid.NewString()
	}
	return nil
}

// ProductRecord mirrors the products table. Photos is a JSON array of
// {id,url} objects.
type ProductRecord struct {
	ProductID  string         `gorm:"type:uuid;primaryKey"`
	Name       string         `gorm:"not null"`
	Slug       string         `gorm:"not null;index:uniq_products_slug,unique"`
	Category   string         `gorm:""`
	PriceCents int64          `gorm:"not null"`
	CostCents  int64          `gorm:"not null"`
	Amount     int64          `gorm:"not null"`
	Photos     datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (ProductRecord) TableName() string { return "products" }

func (product *ProductRecord) BeforeCreate(tx *gorm.DB) error {
	if product.ProductID == "" {
		product.ProductID = uuid.NewString()
	}
	return nil
}

// ShopRecord mirrors the shops table.
type ShopRecord struct {
	ShopID          string    `gorm:"type:uuid;primaryKey"`
	ClientID        string    `gorm:"type:uuid;not null;index:idx_shops_client"`
	AmountPaidCents int64     `gorm:"not null"`
	TypeOfPayment   string    `gorm:""`
	ReferenceID     string    `gorm:"not null"`
	Status          string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`

	Orders []OrderRecord `gorm:"foreignKey:ShopID;references:ShopID"`
}

func (ShopRecord) TableName() string { return "shops" }

func (shop *ShopRecord) BeforeCreate(tx *gorm.DB) error {
	if shop.ShopID == "" {
		shop.ShopID = uuid.NewString()
	}
	return nil
}

// OrderRecord mirrors the orders table. PriceCents and ProductName are
// snapshots taken at sale time.
type OrderRecord struct {
	OrderID     string    `gorm:"type:uuid;primaryKey"`
	ShopID      string    `gorm:"type:uuid;not null;index:idx_orders_shop"`
	ProductID   string    `gorm:"type:uuid;not null"`
	ProductName string    `gorm:"not null"`
	Quantity    int64     `gorm:"not null"`
	PriceCents  int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (OrderRecord) TableName() string { return "orders" }

func (order *OrderRecord) BeforeCreate(tx *gorm.DB) error {
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	return nil
}

// CreditRecord mirrors the credits table.
type CreditRecord struct {
	CreditID   string    `gorm:"type:uuid;primaryKey"`
	ClientID   string    `gorm:"type:uuid;not null;index:idx_credits_client"`
	ValueCents int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (CreditRecord) TableName() string { return "credits" }

func (credit *CreditRecord) BeforeCreate(tx *gorm.DB) error {
	if credit.CreditID == "" {
		credit.CreditID = uuid.NewString()
	}
	return nil
}

// RefreshTokenRecord mirrors the refresh_tokens table.
type RefreshTokenRecord struct {
	Token     string    `gorm:"primaryKey"`
	SellerID  string    `gorm:"type:uuid;not null;index:idx_refresh_tokens_seller"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RefreshTokenRecord) TableName() string { return "refresh_tokens" }

// Models lists every record type for schema migration.
func Models() []any {
	return []any{
		&SellerRecord{},
		&ClientRecord{},
		&ProductRecord{},
		&ShopRecord{},
		&OrderRecord{},
		&CreditRecord{},
		&RefreshTokenRecord{},
	}
}
