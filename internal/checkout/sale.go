// Package checkout is a sample sale-processing flow: products are priced,
// a coupon discount is applied, then state and municipal taxes run as a
// branch before the sale is saved.
package checkout

import (
	"fmt"
	"sync"

	"github.com/dshills/simpleflow/flow"
)

// Money is an amount in cents.
type Money int64

// String formats m as a decimal amount, e.g. "517.50".
func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

// Percent returns m scaled by rate, rounded half away from zero.
func (m Money) Percent(rate float64) Money {
	v := float64(m) * rate
	if v < 0 {
		return Money(v - 0.5)
	}
	return Money(v + 0.5)
}

// Line is a named amount on a sale: a product, a tax or a discount.
type Line struct {
	Name  string `json:"name"`
	Value Money  `json:"value"`
}

// Sale is the run context of the checkout flow.
//
// Tax processes may run in parallel, so line lists are only reachable
// through methods.
type Sale struct {
	flow.HistoryLog

	// MunicipalTaxExempt skips the municipal tax.
	MunicipalTaxExempt bool

	// StateTaxIncentive zeroes the state tax after it is computed.
	StateTaxIncentive bool

	mu        sync.Mutex
	products  []Line
	taxes     []Line
	discounts []Line
	orderID   string
}

// AddProduct adds a product line.
func (s *Sale) AddProduct(name string, value Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, Line{Name: name, Value: value})
}

// AddTax adds a tax line.
func (s *Sale) AddTax(name string, value Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxes = append(s.taxes, Line{Name: name, Value: value})
}

// SetTax overwrites the value of the named tax and reports whether it exists.
func (s *Sale) SetTax(name string, value Money) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.taxes {
		if s.taxes[i].Name == name {
			s.taxes[i].Value = value
			return true
		}
	}
	return false
}

// AddDiscount adds a discount line.
func (s *Sale) AddDiscount(name string, value Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts = append(s.discounts, Line{Name: name, Value: value})
}

// Products returns a copy of the product lines.
func (s *Sale) Products() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.products...)
}

// Taxes returns a copy of the tax lines.
func (s *Sale) Taxes() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.taxes...)
}

// Discounts returns a copy of the discount lines.
func (s *Sale) Discounts() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.discounts...)
}

// Value is the sum of the products.
func (s *Sale) Value() Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum(s.products)
}

// Discount is the sum of the discounts.
func (s *Sale) Discount() Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum(s.discounts)
}

// Net is the product value minus discounts, the base of every tax.
func (s *Sale) Net() Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum(s.products) - sum(s.discounts)
}

// Total is products plus taxes minus discounts.
func (s *Sale) Total() Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum(s.products) + sum(s.taxes) - sum(s.discounts)
}

// OrderID returns the identifier assigned when the sale was saved, or "".
func (s *Sale) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Sale) setOrderID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID = id
}

// Summary is a JSON-friendly snapshot of a sale.
type Summary struct {
	OrderID   string                `json:"order_id,omitempty"`
	Products  []Line                `json:"products"`
	Taxes     []Line                `json:"taxes"`
	Discounts []Line                `json:"discounts"`
	Total     Money                 `json:"total"`
	History   []flow.ProcessHistory `json:"history"`
}

// Summary returns a snapshot of s.
func (s *Sale) Summary() Summary {
	return Summary{
		OrderID:   s.OrderID(),
		Products:  s.Products(),
		Taxes:     s.Taxes(),
		Discounts: s.Discounts(),
		Total:     s.Total(),
		History:   s.History(),
	}
}

func sum(lines []Line) Money {
	var total Money
	for _, l := range lines {
		total += l.Value
	}
	return total
}
