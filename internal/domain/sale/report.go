package sale

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const topProductsLimit = 5

// MethodTotal is the revenue settled with one payment method.
type MethodTotal struct {
	Method       PaymentMethod
	Transactions int
	Revenue      decimal.Decimal
}

// ProductTotal aggregates the units and revenue of one product.
type ProductTotal struct {
	ProductID string
	Name      string
	Quantity  int
	Revenue   decimal.Decimal
}

// Report summarises the completed sales of one day.
type Report struct {
	Date            time.Time
	Transactions    int
	UnitsSold       int
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Revenue         decimal.Decimal
	ByPaymentMethod []MethodTotal
	TopProducts     []ProductTotal
}

// Summarize builds a report from sales. Cancelled sales are ignored. Revenue
// includes tax; product revenue is the sum of line totals before tax.
func Summarize(day time.Time, sales []Sale) Report {
	r := Report{
		Date:     day,
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Revenue:  decimal.Zero,
	}

	methods := make(map[PaymentMethod]*MethodTotal, len(PaymentMethods))
	for _, m := range PaymentMethods {
		methods[m] = &MethodTotal{Method: m, Revenue: decimal.Zero}
	}
	products := make(map[string]*ProductTotal)

	for _, s := range sales {
		if s.Status == StatusCancelled {
			continue
		}
		r.Transactions++
		r.Subtotal = r.Subtotal.Add(s.Subtotal)
		r.Tax = r.Tax.Add(s.Tax)
		r.Revenue = r.Revenue.Add(s.Total)

		if mt, ok := methods[s.PaymentMethod]; ok {
			mt.Transactions++
			mt.Revenue = mt.Revenue.Add(s.Total)
		}

		for _, it := range s.Items {
			r.UnitsSold += it.Quantity
			pt, ok := products[it.ProductID]
			if !ok {
				pt = &ProductTotal{ProductID: it.ProductID, Name: it.Name, Revenue: decimal.Zero}
				products[it.ProductID] = pt
			}
			pt.Quantity += it.Quantity
			pt.Revenue = pt.Revenue.Add(it.LineTotal)
		}
	}

	for _, m := range PaymentMethods {
		r.ByPaymentMethod = append(r.ByPaymentMethod, *methods[m])
	}

	top := make([]ProductTotal, 0, len(products))
	for _, pt := range products {
		top = append(top, *pt)
	}
	slices.SortFunc(top, func(a, b ProductTotal) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(top) > topProductsLimit {
		top = top[:topProductsLimit]
	}
	r.TopProducts = top

	return r
}
