// Package models provides the value types shared by the fetcher, paginator,
// mapper and warehouse packages.
package models

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// Resource names a synchronized upstream collection.
type Resource string

const (
	ResourceCustomers Resource = "customers"
	ResourceProducts  Resource = "products"
	ResourceOrders    Resource = "orders"
	ResourceInventory Resource = "inventory"
)

// DefaultResources is the fixed order in which a run syncs resources.
var DefaultResources = []Resource{
	ResourceCustomers,
	ResourceProducts,
	ResourceOrders,
	ResourceInventory,
}

// ParseResource validates a resource name.
func ParseResource(name string) (Resource, bool) {
	for _, r := range DefaultResources {
		if string(r) == name {
			return r, true
		}
	}
	return "", false
}

func (r Resource) String() string { return string(r) }

// Record is a raw upstream record. ID and UpdatedAt are lifted out of the
// payload by the fetcher so pagination and watermarking never need to know
// the resource's full shape.
type Record struct {
	ID        int64
	UpdatedAt time.Time
	Raw       json.RawMessage
}

// Page is one upstream response. Next is empty when the upstream did not
// advertise a following page.
type Page struct {
	Records []Record
	Next    string
}

// PageRequest is the immutable parameter set for a single page fetch.
// A new value is built for every page.
type PageRequest struct {
	Limit        int
	UpdatedAtMin time.Time
	Order        string
	SinceID      int64
	PageInfo     string
}

// WithSinceID returns a copy of r filtered to records after id.
func (r PageRequest) WithSinceID(id int64) PageRequest {
	r.SinceID = id
	r.PageInfo = ""
	return r
}

// WithPageInfo returns a copy of r continuing from an upstream page token.
func (r PageRequest) WithPageInfo(token string) PageRequest {
	r.PageInfo = token
	r.SinceID = 0
	return r
}

// Row is one flat warehouse row keyed by column name. A nil value is
// written as SQL NULL.
type Row map[string]any

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// SameColumns reports whether r has exactly the given columns.
func (r Row) SameColumns(cols []string) bool {
	if len(r) != len(cols) {
		return false
	}
	for _, c := range cols {
		if _, ok := r[c]; !ok {
			return false
		}
	}
	return true
}

// Batch is a set of rows bound for one warehouse table.
type Batch struct {
	Table string
	Rows  []Row
}
