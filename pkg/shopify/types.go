package shopify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Optional upstream fields are pointers (or NullDecimal for money); a nil
// value means the field was absent or null in the payload.

// Address is a postal address attached to a customer or order.
type Address struct {
	Address1 *string `json:"address1"`
	City     *string `json:"city"`
	Province *string `json:"province"`
	Zip      *string `json:"zip"`
	Country  *string `json:"country"`
}

// Customer is a customers.json entry.
type Customer struct {
	ID             int64      `json:"id"`
	FirstName      *string    `json:"first_name"`
	LastName       *string    `json:"last_name"`
	Email          *string    `json:"email"`
	Phone          *string    `json:"phone"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	DefaultAddress *Address   `json:"default_address"`
}

// Variant is one purchasable variant of a product.
type Variant struct {
	ID             int64               `json:"id"`
	Price          decimal.NullDecimal `json:"price"`
	CompareAtPrice decimal.NullDecimal `json:"compare_at_price"`
	SKU            *string             `json:"sku"`
}

// Product is a products.json entry.
type Product struct {
	ID          int64      `json:"id"`
	Title       *string    `json:"title"`
	BodyHTML    *string    `json:"body_html"`
	ProductType *string    `json:"product_type"`
	Vendor      *string    `json:"vendor"`
	Status      *string    `json:"status"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	Variants    []Variant  `json:"variants"`
}

// CustomerRef is the embedded customer on an order.
type CustomerRef struct {
	ID int64 `json:"id"`
}

// Money is an amount in a single currency.
type Money struct {
	Amount       decimal.NullDecimal `json:"amount"`
	CurrencyCode *string             `json:"currency_code"`
}

// PriceSet carries an amount in shop and presentment currencies.
type PriceSet struct {
	ShopMoney        *Money `json:"shop_money"`
	PresentmentMoney *Money `json:"presentment_money"`
}

// TaxLine is one tax applied to a line item.
type TaxLine struct {
	Title *string             `json:"title"`
	Rate  decimal.NullDecimal `json:"rate"`
	Price decimal.NullDecimal `json:"price"`
}

// LineItem is one product line on an order.
type LineItem struct {
	ID            int64               `json:"id"`
	ProductID     *int64              `json:"product_id"`
	VariantID     *int64              `json:"variant_id"`
	Quantity      int64               `json:"quantity"`
	Price         decimal.NullDecimal `json:"price"`
	TotalDiscount decimal.NullDecimal `json:"total_discount"`
	TaxLines      []TaxLine           `json:"tax_lines"`
}

// Order is an orders.json entry.
type Order struct {
	ID                    int64               `json:"id"`
	Customer              *CustomerRef        `json:"customer"`
	CreatedAt             *time.Time          `json:"created_at"`
	UpdatedAt             *time.Time          `json:"updated_at"`
	FinancialStatus       *string             `json:"financial_status"`
	TotalPrice            decimal.NullDecimal `json:"total_price"`
	TotalTax              decimal.NullDecimal `json:"total_tax"`
	TotalDiscounts        decimal.NullDecimal `json:"total_discounts"`
	TotalShippingPriceSet *PriceSet           `json:"total_shipping_price_set"`
	ShippingAddress       *Address            `json:"shipping_address"`
	PaymentGatewayNames   []string            `json:"payment_gateway_names"`
	LineItems             []LineItem          `json:"line_items"`
}

// InventoryItem is an inventory_items.json entry.
type InventoryItem struct {
	ID        int64      `json:"id"`
	VariantID *int64     `json:"variant_id"`
	Available *int64     `json:"available"`
	UpdatedAt *time.Time `json:"updated_at"`
}
