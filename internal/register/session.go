package register

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/boutique-pos/internal/domain/cart"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
)

// Session is one in-progress sale at a till.
type Session struct {
	id        string
	cashierID string
	openedAt  time.Time
	mgr       *Manager

	mu         sync.Mutex
	ledger     *cart.Ledger
	lastActive time.Time
	submitting bool
}

// View is a consistent snapshot of a session's cart.
type View struct {
	ID         string
	CashierID  string
	OpenedAt   time.Time
	Lines      []cart.LineItem
	Totals     cart.Totals
	TaxRate    decimal.Decimal
	Submitting bool
}

func newSession(m *Manager, id, cashierID string, now time.Time) *Session {
	return &Session{
		id:         id,
		cashierID:  cashierID,
		openedAt:   now,
		mgr:        m,
		ledger:     cart.New(m.cfg.TaxRate),
		lastActive: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CashierID returns the cashier who opened the session.
func (s *Session) CashierID() string { return s.cashierID }

// View returns the current cart.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		ID:         s.id,
		CashierID:  s.cashierID,
		OpenedAt:   s.openedAt,
		Lines:      s.ledger.Lines(),
		Totals:     s.ledger.Totals(),
		TaxRate:    s.ledger.TaxRate(),
		Submitting: s.submitting,
	}
}

// mutate runs fn against the ledger unless a checkout is in flight.
func (s *Session) mutate(fn func(l *cart.Ledger) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting {
		return View{}, ErrSubmitting
	}
	if err := fn(s.ledger); err != nil {
		return View{}, err
	}
	s.lastActive = s.mgr.now()
	return s.viewLocked(), nil
}

// AddProduct looks productID up in the catalog and adds qty units at its
// current sale price.
func (s *Session) AddProduct(ctx context.Context, productID string, qty int) (View, error) {
	if qty <= 0 {
		return View{}, cart.ErrInvalidQuantity
	}
	p, err := s.mgr.catalog.GetByID(ctx, productID)
	if err != nil {
		return View{}, errors.Wrap(err, "lookup product")
	}
	return s.add(p, qty)
}

// AddBarcode is AddProduct keyed by barcode.
func (s *Session) AddBarcode(ctx context.Context, barcode string, qty int) (View, error) {
	if qty <= 0 {
		return View{}, cart.ErrInvalidQuantity
	}
	p, err := s.mgr.catalog.GetByBarcode(ctx, barcode)
	if err != nil {
		return View{}, errors.Wrap(err, "lookup barcode")
	}
	return s.add(p, qty)
}

func (s *Session) add(p *product.Product, qty int) (View, error) {
	if !p.IsActive {
		return View{}, ErrProductInactive
	}
	return s.mutate(func(l *cart.Ledger) error {
		return l.AddItem(cart.Product{ID: p.ID, Name: p.Name, UnitPrice: p.SalePrice}, qty)
	})
}

// UpdateQuantity sets the quantity of a line; non-positive removes it.
func (s *Session) UpdateQuantity(productID string, qty int) (View, error) {
	return s.mutate(func(l *cart.Ledger) error {
		return l.UpdateQuantity(productID, qty)
	})
}

// ApplyDiscount sets a line's discount percentage.
func (s *Session) ApplyDiscount(productID string, percent decimal.Decimal) (View, error) {
	return s.mutate(func(l *cart.Ledger) error {
		return l.ApplyDiscount(productID, percent)
	})
}

// RemoveItem drops a line.
func (s *Session) RemoveItem(productID string) (View, error) {
	return s.mutate(func(l *cart.Ledger) error {
		l.RemoveItem(productID)
		return nil
	})
}

// Clear empties the cart.
func (s *Session) Clear() (View, error) {
	return s.mutate(func(l *cart.Ledger) error {
		l.Clear()
		return nil
	})
}

// Checkout records the cart as a sale. Only one checkout per session may be
// in flight; the cart cannot be changed until it completes. The recorder call
// is bounded by the configured submit timeout and runs without holding the
// session lock. On any failure the cart is left as it was. Apart from the
// locking it behaves as cart.Ledger.Submit.
func (s *Session) Checkout(ctx context.Context, method sale.PaymentMethod, customerID string) (*sale.Sale, error) {
	if !method.Valid() {
		return nil, sale.ErrInvalidPayment
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitting
	}
	d, err := s.ledger.Draft(method, customerID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	d.CashierID = s.cashierID
	s.submitting = true
	s.mu.Unlock()

	lg := zctx.From(ctx).With(zap.String("register_id", s.id))

	submitCtx := ctx
	if t := s.mgr.cfg.SubmitTimeout; t > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	recorded, recErr := s.mgr.recorder.Record(submitCtx, d)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.lastActive = s.mgr.now()

	if recErr != nil {
		lg.Warn("Checkout failed, cart kept",
			zap.Int("lines", s.ledger.Len()),
			zap.Error(recErr),
		)
		return nil, &cart.SubmissionError{Err: recErr}
	}

	s.ledger.Clear()
	lg.Info("Checkout completed", zap.String("sale_id", recorded.ID))
	return recorded, nil
}
