package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/simpleflow/flow"
)

// Line names written by the processes.
const (
	CouponDiscount = "Coupon discount"
	StateTax       = "State Tax"
	MunicipalTax   = "Municipal Tax"
)

// Default rates.
const (
	DefaultDiscountRate     = 0.25
	DefaultStateTaxRate     = 0.05
	DefaultMunicipalTaxRate = 0.10
)

// DefaultCatalog is the basket added by InitProcess when none is set.
var DefaultCatalog = []Line{
	{Name: "Product 1", Value: 10000},
	{Name: "Product 2", Value: 20000},
	{Name: "Product 3", Value: 30000},
}

// InitProcess fills the sale with its products.
type InitProcess struct {
	Catalog []Line
}

// Execute implements flow.Process.
func (p *InitProcess) Execute(ctx context.Context, s *Sale) error {
	catalog := p.Catalog
	if catalog == nil {
		catalog = DefaultCatalog
	}
	for _, l := range catalog {
		if l.Value < 0 {
			return fmt.Errorf("product %q: negative price %s", l.Name, l.Value)
		}
		s.AddProduct(l.Name, l.Value)
	}
	flow.LoggerFrom(ctx).Debug("products added", "count", len(catalog), "value", s.Value().String())
	return nil
}

// DiscountProcess applies a coupon on the discounted value of the sale.
type DiscountProcess struct {
	Rate float64
}

// Execute implements flow.Process.
func (p *DiscountProcess) Execute(ctx context.Context, s *Sale) error {
	d := s.Net().Percent(p.Rate)
	s.AddDiscount(CouponDiscount, d)
	flow.LoggerFrom(ctx).Debug("discount applied", "rate", p.Rate, "discount", d.String())
	return nil
}

// StateTaxProcess adds the state tax computed on the net value.
type StateTaxProcess struct {
	Rate float64
}

// Execute implements flow.Process.
func (p *StateTaxProcess) Execute(ctx context.Context, s *Sale) error {
	tax := s.Net().Percent(p.Rate)
	s.AddTax(StateTax, tax)
	flow.LoggerFrom(ctx).Debug("state tax added", "rate", p.Rate, "tax", tax.String())
	return nil
}

// StateTaxIncentiveProcess zeroes the state tax.
type StateTaxIncentiveProcess struct{}

// Execute implements flow.Process.
func (p *StateTaxIncentiveProcess) Execute(ctx context.Context, s *Sale) error {
	if !s.SetTax(StateTax, 0) {
		flow.LoggerFrom(ctx).Warn("no state tax to exempt")
	}
	return nil
}

// StateTaxRegistrationProcess registers the sale with the state tax office.
// The registration itself is simulated.
type StateTaxRegistrationProcess struct{}

// Execute implements flow.Process.
func (p *StateTaxRegistrationProcess) Execute(ctx context.Context, s *Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	flow.LoggerFrom(ctx).Info("state tax registration sent", "net", s.Net().String())
	return nil
}

// MunicipalTaxProcess adds the municipal tax computed on the net value.
type MunicipalTaxProcess struct {
	Rate float64
}

// Execute implements flow.Process.
func (p *MunicipalTaxProcess) Execute(ctx context.Context, s *Sale) error {
	tax := s.Net().Percent(p.Rate)
	s.AddTax(MunicipalTax, tax)
	flow.LoggerFrom(ctx).Debug("municipal tax added", "rate", p.Rate, "tax", tax.String())
	return nil
}

// UpdateDatabaseProcess saves the sale and assigns its order ID.
// Save is optional; without it the sale is only given an ID.
type UpdateDatabaseProcess struct {
	Save func(ctx context.Context, orderID string, s Summary) error
}

// Execute implements flow.Process.
func (p *UpdateDatabaseProcess) Execute(ctx context.Context, s *Sale) error {
	id := uuid.NewString()
	if p.Save != nil {
		if err := p.Save(ctx, id, s.Summary()); err != nil {
			return fmt.Errorf("save sale: %w", err)
		}
	}
	s.setOrderID(id)
	flow.LoggerFrom(ctx).Info("database updated", "order_id", id, "total", s.Total().String())
	return nil
}
