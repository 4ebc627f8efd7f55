// Package cart implements the ledger of an in-progress sale.
//
// A Ledger belongs to exactly one sale session and is not safe for concurrent
// use. Totals are never cached: every read recomputes them from the lines, so
// the sum of line totals always equals the subtotal.
package cart

import (
	"context"
	"math"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-pos/internal/domain/sale"
)

// DefaultTaxRate is the VAT rate applied when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// MaxQuantity is the largest quantity a single line may hold. It matches the
// range of the sale_items.quantity column.
const MaxQuantity = math.MaxInt32

var hundred = decimal.NewFromInt(100)

var (
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 2147483647")
	ErrInvalidDiscount  = errors.New("discount must be between 0 and 100")
	ErrInvalidPrice     = errors.New("unit price must not be negative")
	ErrInvalidProduct   = errors.New("product id required")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrSubmissionFailed = errors.New("sale submission failed")
)

// SubmissionError reports that the sale recorder did not confirm the sale.
// The ledger is left exactly as it was before the submission.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "sale submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Err}
}

// Product is the catalog data the ledger needs to price a line.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// LineItem is one product's entry in the cart. UnitPrice is a snapshot taken
// when the product was first added.
type LineItem struct {
	ProductID       string
	Name            string
	UnitPrice       decimal.Decimal
	Quantity        int
	DiscountPercent decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity * (1 - DiscountPercent/100).
func (l LineItem) LineTotal() decimal.Decimal {
	raw := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
	return raw.Mul(hundred.Sub(l.DiscountPercent)).Div(hundred)
}

// Totals groups the derived amounts of a ledger.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Ledger holds the ordered line items of one sale.
type Ledger struct {
	taxRate decimal.Decimal
	lines   []LineItem
}

// New returns an empty ledger applying taxRate to the subtotal.
func New(taxRate decimal.Decimal) *Ledger {
	return &Ledger{taxRate: taxRate}
}

// TaxRate returns the fractional rate applied by Tax.
func (l *Ledger) TaxRate() decimal.Decimal {
	return l.taxRate
}

func (l *Ledger) index(productID string) int {
	return slices.IndexFunc(l.lines, func(li LineItem) bool {
		return li.ProductID == productID
	})
}

// AddItem adds qty units of p. An existing line for the same product keeps its
// price snapshot and discount and only grows in quantity. A merge that would
// push the line past MaxQuantity is rejected and the line is left as it was.
func (l *Ledger) AddItem(p Product, qty int) error {
	if p.ID == "" {
		return ErrInvalidProduct
	}
	if qty <= 0 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if p.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	if i := l.index(p.ID); i >= 0 {
		if qty > MaxQuantity-l.lines[i].Quantity {
			return ErrInvalidQuantity
		}
		l.lines[i].Quantity += qty
		return nil
	}

	l.lines = append(l.lines, LineItem{
		ProductID:       p.ID,
		Name:            p.Name,
		UnitPrice:       p.UnitPrice,
		Quantity:        qty,
		DiscountPercent: decimal.Zero,
	})
	return nil
}

// RemoveItem drops the line for productID. Missing lines are ignored.
func (l *Ledger) RemoveItem(productID string) {
	if i := l.index(productID); i >= 0 {
		l.lines = slices.Delete(l.lines, i, i+1)
	}
}

// UpdateQuantity sets the quantity of an existing line. A non-positive
// quantity removes the line; missing lines are ignored. Quantities above
// MaxQuantity are rejected.
func (l *Ledger) UpdateQuantity(productID string, qty int) error {
	if qty <= 0 {
		l.RemoveItem(productID)
		return nil
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i := l.index(productID); i >= 0 {
		l.lines[i].Quantity = qty
	}
	return nil
}

// ApplyDiscount sets the discount of an existing line. Percentages outside
// [0, 100] are rejected, not clamped.
func (l *Ledger) ApplyDiscount(productID string, percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return ErrInvalidDiscount
	}
	if i := l.index(productID); i >= 0 {
		l.lines[i].DiscountPercent = percent
	}
	return nil
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.lines = nil
}

// Lines returns a copy of the current lines in insertion order.
func (l *Ledger) Lines() []LineItem {
	return slices.Clone(l.lines)
}

// Line returns the line for productID.
func (l *Ledger) Line(productID string) (LineItem, bool) {
	if i := l.index(productID); i >= 0 {
		return l.lines[i], true
	}
	return LineItem{}, false
}

// Len returns the number of lines.
func (l *Ledger) Len() int {
	return len(l.lines)
}

// IsEmpty reports whether the ledger has no lines.
func (l *Ledger) IsEmpty() bool {
	return len(l.lines) == 0
}

// Subtotal is the sum of all line totals.
func (l *Ledger) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range l.lines {
		sum = sum.Add(li.LineTotal())
	}
	return sum
}

// Tax is Subtotal multiplied by the tax rate.
func (l *Ledger) Tax() decimal.Decimal {
	return l.Subtotal().Mul(l.taxRate)
}

// Total is Subtotal plus Tax.
func (l *Ledger) Total() decimal.Decimal {
	return l.Totals().Total
}

// Totals computes subtotal, tax and total from a single pass over the lines.
func (l *Ledger) Totals() Totals {
	subtotal := l.Subtotal()
	tax := subtotal.Mul(l.taxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Draft packages the current lines and totals for recording. It does not
// modify the ledger.
func (l *Ledger) Draft(method sale.PaymentMethod, customerID string) (*sale.Draft, error) {
	if l.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items := make([]sale.DraftItem, len(l.lines))
	for i, li := range l.lines {
		items[i] = sale.DraftItem{
			ProductID:       li.ProductID,
			Name:            li.Name,
			Quantity:        li.Quantity,
			UnitPrice:       li.UnitPrice,
			DiscountPercent: li.DiscountPercent,
			LineTotal:       li.LineTotal(),
		}
	}

	t := l.Totals()
	return &sale.Draft{
		Items:         items,
		Subtotal:      t.Subtotal,
		Tax:           t.Tax,
		Total:         t.Total,
		PaymentMethod: method,
		CustomerID:    customerID,
	}, nil
}

// Submit hands the cart to rec and clears it once rec confirms the sale. Any
// error from rec, including context cancellation, leaves the cart untouched
// and is returned as a *SubmissionError.
//
// Submit is the single-owner form for callers that hold the ledger
// exclusively. register.Session.Checkout follows the same Draft, Record,
// Clear sequence but releases its lock while the recorder runs.
func (l *Ledger) Submit(ctx context.Context, rec sale.Recorder, method sale.PaymentMethod, customerID string) (*sale.Sale, error) {
	d, err := l.Draft(method, customerID)
	if err != nil {
		return nil, err
	}

	s, err := rec.Record(ctx, d)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	l.Clear()
	return s, nil
}
