package checkout

import (
	"context"

	"github.com/dshills/simpleflow/flow"
)

// FlowName is the name of the checkout flow.
const FlowName = "SaleProcessing"

// TaxBranch is the branch holding the tax processes.
const TaxBranch = "taxes"

// Node identifiers of the checkout flow.
const (
	NodeInit                 = "Init"
	NodeDiscount             = "Discount"
	NodeStateTax             = "StateTax"
	NodeStateTaxIncentive    = "StateTaxIncentive"
	NodeStateTaxRegistration = "StateTaxRegistration"
	NodeMunicipalTax         = "MunicipalTax"
	NodeUpdateDatabase       = "UpdateDatabase"
)

func node(id string) []flow.NodeOption {
	return []flow.NodeOption{flow.NodeID(id), flow.NodeName(id)}
}

// NewBuilder returns the checkout flow definition:
//
//	Init → Discount → taxes{
//	    StateTax → StateTaxIncentive (if incentive)
//	    StateTaxRegistration
//	    MunicipalTax (unless exempt)
//	} → UpdateDatabase
func NewBuilder() *flow.Builder[*Sale] {
	b := flow.NewBuilder[*Sale](FlowName)
	b.Begin(flow.KeyOf[InitProcess](), node(NodeInit)...).
		AddNext(flow.KeyOf[DiscountProcess](), node(NodeDiscount)...).
		AddBranch(TaxBranch, func(t *flow.Builder[*Sale]) {
			t.Begin(flow.KeyOf[StateTaxProcess](), node(NodeStateTax)...).
				AddNext(flow.KeyOf[StateTaxIncentiveProcess](), node(NodeStateTaxIncentive)...).
				WithCondition(func(s *Sale) bool { return s.StateTaxIncentive })
			t.Begin(flow.KeyOf[StateTaxRegistrationProcess](), node(NodeStateTaxRegistration)...)
			t.Begin(flow.KeyOf[MunicipalTaxProcess](), node(NodeMunicipalTax)...).
				WithCondition(func(s *Sale) bool { return !s.MunicipalTaxExempt })
		}).
		AddNext(flow.KeyOf[UpdateDatabaseProcess](), node(NodeUpdateDatabase)...)
	return b
}

// Build returns the built checkout graph.
func Build() (*flow.Graph[*Sale], error) {
	return NewBuilder().Build()
}

// Config parameterizes the checkout processes. Zero rates use the defaults.
type Config struct {
	Catalog          []Line
	DiscountRate     float64
	StateTaxRate     float64
	MunicipalTaxRate float64

	// Save persists the sale from UpdateDatabase. Nil only assigns the ID.
	Save func(ctx context.Context, orderID string, s Summary) error
}

func rate(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// NewRegistry registers every checkout process. Each Resolve returns a new
// instance.
func NewRegistry(cfg Config) *flow.Registry[*Sale] {
	reg := flow.NewRegistry[*Sale]()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(flow.RegisterType(reg, func() *InitProcess {
		return &InitProcess{Catalog: cfg.Catalog}
	}))
	must(flow.RegisterType(reg, func() *DiscountProcess {
		return &DiscountProcess{Rate: rate(cfg.DiscountRate, DefaultDiscountRate)}
	}))
	must(flow.RegisterType(reg, func() *StateTaxProcess {
		return &StateTaxProcess{Rate: rate(cfg.StateTaxRate, DefaultStateTaxRate)}
	}))
	must(flow.RegisterType(reg, func() *StateTaxIncentiveProcess { return &StateTaxIncentiveProcess{} }))
	must(flow.RegisterType(reg, func() *StateTaxRegistrationProcess { return &StateTaxRegistrationProcess{} }))
	must(flow.RegisterType(reg, func() *MunicipalTaxProcess {
		return &MunicipalTaxProcess{Rate: rate(cfg.MunicipalTaxRate, DefaultMunicipalTaxRate)}
	}))
	must(flow.RegisterType(reg, func() *UpdateDatabaseProcess { return &UpdateDatabaseProcess{Save: cfg.Save} }))
	return reg
}

// NewEngine builds the checkout flow and returns an engine for it.
func NewEngine(cfg Config, opts ...flow.Option) (*flow.Engine[*Sale], error) {
	g, err := Build()
	if err != nil {
		return nil, err
	}
	return flow.New(g, NewRegistry(cfg), opts...)
}
