// Package mapper turns raw Shopify records into flat warehouse rows.
//
// Every function here is pure: the same input always yields the same rows
// and no state is kept between calls. Absent optional upstream fields map
// to nil, which the warehouse writes as NULL.
package mapper

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/shopify"
)

// Warehouse table names.
const (
	TableCustomers  = "CUSTOMERS"
	TableProducts   = "PRODUCTS"
	TableOrders     = "ORDERS"
	TableOrderItems = "ORDER_ITEMS"
	TableInventory  = "INVENTORY"
)

// Plan maps all fetched records of one resource into per-table batches.
// Batches are returned in the order they must be written.
type Plan func(records []models.Record) ([]models.Batch, error)

// ForResource returns the mapping plan for resource.
func ForResource(resource models.Resource) (Plan, error) {
	switch resource {
	case models.ResourceCustomers:
		return single(resource, TableCustomers, MapCustomer), nil
	case models.ResourceProducts:
		return single(resource, TableProducts, MapProduct), nil
	case models.ResourceInventory:
		return single(resource, TableInventory, MapInventoryItem), nil
	case models.ResourceOrders:
		return planOrders, nil
	default:
		return nil, synerrors.Newf(synerrors.ErrorTypeConfig, "no mapping for resource %q", resource)
	}
}

// Tables lists the tables a resource writes to, in write order.
func Tables(resource models.Resource) []string {
	switch resource {
	case models.ResourceCustomers:
		return []string{TableCustomers}
	case models.ResourceProducts:
		return []string{TableProducts}
	case models.ResourceOrders:
		return []string{TableOrders, TableOrderItems}
	case models.ResourceInventory:
		return []string{TableInventory}
	default:
		return nil
	}
}

func single[T any](resource models.Resource, table string, fn func(T) models.Row) Plan {
	return func(records []models.Record) ([]models.Batch, error) {
		rows := make([]models.Row, 0, len(records))
		for _, rec := range records {
			v, err := decode[T](resource, rec)
			if err != nil {
				return nil, err
			}
			rows = append(rows, fn(v))
		}
		return []models.Batch{{Table: table, Rows: rows}}, nil
	}
}

func planOrders(records []models.Record) ([]models.Batch, error) {
	orders := make([]models.Row, 0, len(records))
	var items []models.Row

	for _, rec := range records {
		o, err := decode[shopify.Order](models.ResourceOrders, rec)
		if err != nil {
			return nil, err
		}
		orders = append(orders, MapOrder(o))
		items = append(items, MapOrderItems(o)...)
	}

	return []models.Batch{
		{Table: TableOrders, Rows: orders},
		{Table: TableOrderItems, Rows: items},
	}, nil
}

func decode[T any](resource models.Resource, rec models.Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Raw, &v); err != nil {
		return v, synerrors.Wrap(err, synerrors.ErrorTypeMapping, "malformed record").
			WithDetail("resource", resource.String()).
			WithDetail("record_id", rec.ID)
	}
	if rec.ID == 0 {
		return v, synerrors.New(synerrors.ErrorTypeMapping, "record has no id").
			WithDetail("resource", resource.String())
	}
	return v, nil
}

// MapCustomer maps a customer to a CUSTOMERS row.
func MapCustomer(c shopify.Customer) models.Row {
	addr := c.DefaultAddress
	if addr == nil {
		addr = &shopify.Address{}
	}
	return models.Row{
		"customer_id": c.ID,
		"first_name":  str(c.FirstName),
		"last_name":   str(c.LastName),
		"email":       str(c.Email),
		"phone":       str(c.Phone),
		"created_at":  ts(c.CreatedAt),
		"updated_at":  ts(c.UpdatedAt),
		"address":     str(addr.Address1),
		"city":        str(addr.City),
		"state":       str(addr.Province),
		"zip_code":    str(addr.Zip),
		"country":     str(addr.Country),
	}
}

// MapProduct maps a product to a PRODUCTS row using its first variant for
// pricing and SKU.
func MapProduct(p shopify.Product) models.Row {
	var v shopify.Variant
	if len(p.Variants) > 0 {
		v = p.Variants[0]
	}
	return models.Row{
		"product_id":   p.ID,
		"product_name": str(p.Title),
		"description":  str(p.BodyHTML),
		"category":     str(p.ProductType),
		"price":        money(v.Price),
		"cost":         money(v.CompareAtPrice),
		"sku":          str(v.SKU),
		"created_at":   ts(p.CreatedAt),
		"updated_at":   ts(p.UpdatedAt),
		"is_active":    p.Status != nil && *p.Status == "active",
		"vendor":       str(p.Vendor),
	}
}

// MapOrder maps an order to its ORDERS summary row.
func MapOrder(o shopify.Order) models.Row {
	ship := o.ShippingAddress
	if ship == nil {
		ship = &shopify.Address{}
	}

	var customerID any
	if o.Customer != nil {
		customerID = o.Customer.ID
	}

	var paymentMethod any
	if len(o.PaymentGatewayNames) > 0 {
		paymentMethod = o.PaymentGatewayNames[0]
	}

	var shipping any
	if o.TotalShippingPriceSet != nil && o.TotalShippingPriceSet.ShopMoney != nil {
		shipping = money(o.TotalShippingPriceSet.ShopMoney.Amount)
	}

	return models.Row{
		"order_id":         o.ID,
		"customer_id":      customerID,
		"order_date":       ts(o.CreatedAt),
		"total_amount":     money(o.TotalPrice),
		"status":           str(o.FinancialStatus),
		"shipping_address": str(ship.Address1),
		"shipping_city":    str(ship.City),
		"shipping_state":   str(ship.Province),
		"shipping_zip":     str(ship.Zip),
		"shipping_country": str(ship.Country),
		"payment_method":   paymentMethod,
		"tax_amount":       money(o.TotalTax),
		"shipping_amount":  shipping,
		"discount_amount":  money(o.TotalDiscounts),
		"grand_total":      money(o.TotalPrice),
	}
}

// MapOrderItems maps each line item of an order to an ORDER_ITEMS row
// carrying the parent order id.
func MapOrderItems(o shopify.Order) []models.Row {
	rows := make([]models.Row, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		var productID any
		if item.ProductID != nil {
			productID = *item.ProductID
		}

		var lineTotal any
		if item.Price.Valid {
			lineTotal = item.Price.Decimal.Mul(decimal.NewFromInt(item.Quantity))
		}

		rows = append(rows, models.Row{
			"order_item_id":      item.ID,
			"order_id":           o.ID,
			"product_id":         productID,
			"quantity":           item.Quantity,
			"unit_price":         money(item.Price),
			"line_item_tax":      LineItemTax(item),
			"line_item_shipping": decimal.Zero,
			"line_item_discount": money(item.TotalDiscount),
			"line_item_total":    lineTotal,
		})
	}
	return rows
}

// LineItemTax sums the prices of an item's tax lines. Missing prices count
// as zero.
func LineItemTax(item shopify.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, tl := range item.TaxLines {
		if tl.Price.Valid {
			sum = sum.Add(tl.Price.Decimal)
		}
	}
	return sum
}

// MapInventoryItem maps an inventory item to an INVENTORY row.
func MapInventoryItem(i shopify.InventoryItem) models.Row {
	var productID, available any
	if i.VariantID != nil {
		productID = *i.VariantID
	}
	if i.Available != nil {
		available = *i.Available
	}
	return models.Row{
		"inventory_id":       i.ID,
		"product_id":         productID,
		"quantity_available": available,
		"reorder_level":      nil,
		"last_restocked":     ts(i.UpdatedAt),
		"warehouse_location": nil,
	}
}

func str(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func ts(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func money(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}
