package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the tender used to settle a sale.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCredit PaymentMethod = "credit"
	PaymentMixed  PaymentMethod = "mixed"
)

// PaymentMethods lists every supported method in display order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentCredit, PaymentMixed}

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCredit, PaymentMixed:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a recorded sale.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound          = errors.New("sale not found")
	ErrEmptySale         = errors.New("sale has no items")
	ErrInvalidPayment    = errors.New("invalid payment method")
	ErrCustomerRequired  = errors.New("credit sales require a customer")
	ErrTotalsMismatch    = errors.New("sale totals do not match line items")
	ErrAlreadyCancelled  = errors.New("sale already cancelled")
	ErrInvalidSaleItem   = errors.New("invalid sale item")
	ErrInvalidDateFilter = errors.New("invalid date range")
)

// InsufficientStockError indicates that recording a sale would drive a
// product's stock below zero.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// DraftItem is one priced line handed over for recording.
type DraftItem struct {
	ProductID       string
	Name            string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	LineTotal       decimal.Decimal
}

// Draft is a sale that has been priced but not yet recorded.
type Draft struct {
	Items         []DraftItem
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	CustomerID    string
	CashierID     string
}

// Item is a recorded sale line.
type Item struct {
	ProductID       string
	Name            string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	LineTotal       decimal.Decimal
}

// Sale is a recorded sale.
type Sale struct {
	ID            string
	Number        int64
	Items         []Item
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	CustomerID    string
	CashierID     string
	Status        Status
	CancelReason  string
	CreatedAt     time.Time
	CancelledAt   *time.Time
}

// Receipt number shown to the customer, e.g. S-000042.
func (s *Sale) Receipt() string {
	return fmt.Sprintf("S-%06d", s.Number)
}

// Recorder persists a priced draft as a sale. Implementations either record
// the whole sale or nothing.
type Recorder interface {
	Record(ctx context.Context, d *Draft) (*Sale, error)
}

// Filter narrows sale listings. Zero values are ignored.
type Filter struct {
	From          time.Time
	To            time.Time
	PaymentMethod PaymentMethod
	CustomerID    string
	CashierID     string
	Page          int
	PageSize      int
}

// Page is a slice of sales plus the total number of matches.
type Page struct {
	Items    []Sale
	Total    int
	Page     int
	PageSize int
}

// Repository defines persistence operations for sales.
type Repository interface {
	// Create stores s and its items, assigns s.Number and decrements stock
	// for every item in one transaction.
	Create(ctx context.Context, s *Sale) error
	GetByID(ctx context.Context, id string) (*Sale, error)
	List(ctx context.Context, f Filter) (Page, error)
	// Cancel marks the sale cancelled and restores stock.
	Cancel(ctx context.Context, id, reason string, at time.Time) (*Sale, error)
}
