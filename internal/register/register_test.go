package register

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/boutique-pos/internal/domain/cart"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
)

type mockCatalog struct {
	products map[string]*product.Product
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	for _, p := range m.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return nil, product.ErrNotFound
}

type mockRecorder struct {
	// started is signalled once Record is entered; Record then waits on
	// release when it is non-nil.
	started chan struct{}
	release chan struct{}
	err     error
	drafts  []*sale.Draft
}

func (m *mockRecorder) Record(ctx context.Context, d *sale.Draft) (*sale.Sale, error) {
	m.drafts = append(m.drafts, d)
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &sale.Sale{ID: "sale-1", Number: 1, Total: d.Total, CashierID: d.CashierID}, nil
}

func testCatalog() *mockCatalog {
	return &mockCatalog{products: map[string]*product.Product{
		"P1": {ID: "P1", Barcode: "8690000000011", Name: "Shirt", SalePrice: decimal.NewFromInt(100), IsActive: true},
		"P2": {ID: "P2", Barcode: "8690000000028", Name: "Scarf", SalePrice: decimal.NewFromInt(50), IsActive: true},
		"P3": {ID: "P3", Barcode: "8690000000035", Name: "Old stock", SalePrice: decimal.NewFromInt(10)},
	}}
}

func newTestManager(t *testing.T, rec sale.Recorder, cfg Config) *Manager {
	t.Helper()
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = cart.DefaultTaxRate
	}
	m, err := NewManager(cfg, testCatalog(), rec, noop.NewMeterProvider())
	require.NoError(t, err)
	return m
}

func TestSession_AddAndCheckout(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	m := newTestManager(t, rec, Config{})

	s := m.Open(ctx, "till-1")
	_, err := s.AddProduct(ctx, "P1", 2)
	require.NoError(t, err)
	_, err = s.AddBarcode(ctx, "8690000000028", 1)
	require.NoError(t, err)
	v, err := s.ApplyDiscount("P1", decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Len(t, v.Lines, 2)
	assert.True(t, v.Totals.Subtotal.Equal(decimal.RequireFromString("230")))
	assert.True(t, v.Totals.Tax.Equal(decimal.RequireFromString("41.4")))
	assert.True(t, v.Totals.Total.Equal(decimal.RequireFromString("271.4")))

	recorded, err := s.Checkout(ctx, sale.PaymentCard, "")
	require.NoError(t, err)
	assert.Equal(t, "sale-1", recorded.ID)

	require.Len(t, rec.drafts, 1)
	assert.Equal(t, "till-1", rec.drafts[0].CashierID)
	assert.Equal(t, sale.PaymentCard, rec.drafts[0].PaymentMethod)
	assert.Empty(t, s.View().Lines)
}

func TestSession_AddErrors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &mockRecorder{}, Config{})
	s := m.Open(ctx, "till-1")

	_, err := s.AddProduct(ctx, "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = s.AddProduct(ctx, "P3", 1)
	require.ErrorIs(t, err, ErrProductInactive)

	_, err = s.AddProduct(ctx, "P1", 0)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = s.AddBarcode(ctx, "000", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	assert.Empty(t, s.View().Lines)
}

func TestSession_QuantityBound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &mockRecorder{}, Config{})
	s := m.Open(ctx, "till-1")

	_, err := s.AddProduct(ctx, "P1", cart.MaxQuantity)
	require.NoError(t, err)

	_, err = s.AddProduct(ctx, "P1", 1)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, err = s.AddBarcode(ctx, "8690000000011", cart.MaxQuantity)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, err = s.UpdateQuantity("P1", cart.MaxQuantity+1)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	v := s.View()
	require.Len(t, v.Lines, 1)
	assert.Equal(t, cart.MaxQuantity, v.Lines[0].Quantity)
	assert.True(t, v.Totals.Subtotal.IsPositive())
}

// Checkout and Ledger.Submit must hand the recorder the same draft and leave
// the cart in the same state.
func TestSession_CheckoutMatchesLedgerSubmit(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLen int
	}{
		{name: "recorded", wantLen: 0},
		{name: "rejected", err: errors.New("db down"), wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			sessionRec := &mockRecorder{err: tt.err}
			m := newTestManager(t, sessionRec, Config{})
			s := m.Open(ctx, "till-1")
			_, err := s.AddProduct(ctx, "P1", 2)
			require.NoError(t, err)
			_, err = s.AddProduct(ctx, "P2", 3)
			require.NoError(t, err)
			_, err = s.ApplyDiscount("P2", decimal.RequireFromString("12.5"))
			require.NoError(t, err)

			ledgerRec := &mockRecorder{err: tt.err}
			l := cart.New(cart.DefaultTaxRate)
			require.NoError(t, l.AddItem(cart.Product{ID: "P1", Name: "Shirt", UnitPrice: decimal.NewFromInt(100)}, 2))
			require.NoError(t, l.AddItem(cart.Product{ID: "P2", Name: "Scarf", UnitPrice: decimal.NewFromInt(50)}, 3))
			require.NoError(t, l.ApplyDiscount("P2", decimal.RequireFromString("12.5")))

			_, sessionErr := s.Checkout(ctx, sale.PaymentCash, "C1")
			_, ledgerErr := l.Submit(ctx, ledgerRec, sale.PaymentCash, "C1")

			if tt.err != nil {
				require.ErrorIs(t, sessionErr, cart.ErrSubmissionFailed)
				require.ErrorIs(t, ledgerErr, cart.ErrSubmissionFailed)
			} else {
				require.NoError(t, sessionErr)
				require.NoError(t, ledgerErr)
			}

			require.Len(t, sessionRec.drafts, 1)
			require.Len(t, ledgerRec.drafts, 1)
			want := *ledgerRec.drafts[0]
			want.CashierID = "till-1"
			assert.Equal(t, want, *sessionRec.drafts[0])

			assert.Len(t, s.View().Lines, tt.wantLen)
			assert.Equal(t, tt.wantLen, l.Len())
		})
	}
}

func TestSession_CheckoutFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{err: errors.New("db down")}
	m := newTestManager(t, rec, Config{})
	s := m.Open(ctx, "till-1")

	_, err := s.AddProduct(ctx, "P1", 3)
	require.NoError(t, err)
	before := s.View()

	_, err = s.Checkout(ctx, sale.PaymentCash, "")
	require.ErrorIs(t, err, cart.ErrSubmissionFailed)

	after := s.View()
	assert.Equal(t, before.Lines, after.Lines)
	assert.False(t, after.Submitting)

	// The session accepts changes again.
	_, err = s.UpdateQuantity("P1", 1)
	require.NoError(t, err)
}

func TestSession_CheckoutValidation(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	m := newTestManager(t, rec, Config{})
	s := m.Open(ctx, "till-1")

	_, err := s.Checkout(ctx, sale.PaymentCash, "")
	require.ErrorIs(t, err, cart.ErrEmptyCart)

	_, err = s.AddProduct(ctx, "P1", 1)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, sale.PaymentMethod("barter"), "")
	require.ErrorIs(t, err, sale.ErrInvalidPayment)
	assert.Empty(t, rec.drafts)
}

func TestSession_CheckoutTimeout(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{release: make(chan struct{})}
	m := newTestManager(t, rec, Config{SubmitTimeout: 10 * time.Millisecond})
	s := m.Open(ctx, "till-1")

	_, err := s.AddProduct(ctx, "P2", 1)
	require.NoError(t, err)

	_, err = s.Checkout(ctx, sale.PaymentCash, "")
	require.ErrorIs(t, err, cart.ErrSubmissionFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, s.View().Lines, 1)
}

func TestSession_SingleFlightCheckout(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{started: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(t, rec, Config{})
	s := m.Open(ctx, "till-1")

	_, err := s.AddProduct(ctx, "P1", 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Checkout(ctx, sale.PaymentCash, "")
		done <- err
	}()
	<-rec.started

	assert.True(t, s.View().Submitting)

	_, err = s.Checkout(ctx, sale.PaymentCash, "")
	require.ErrorIs(t, err, ErrSubmitting)
	_, err = s.AddProduct(ctx, "P2", 1)
	require.ErrorIs(t, err, ErrSubmitting)
	_, err = s.RemoveItem("P1")
	require.ErrorIs(t, err, ErrSubmitting)
	_, err = s.Clear()
	require.ErrorIs(t, err, ErrSubmitting)
	require.ErrorIs(t, m.Close(ctx, s.ID()), ErrSubmitting)

	close(rec.release)
	require.NoError(t, <-done)

	assert.Empty(t, s.View().Lines)
	assert.Len(t, rec.drafts, 1)
}

func TestManager_OpenGetClose(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &mockRecorder{}, Config{})

	s := m.Open(ctx, "till-1")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "till-1", s.CashierID())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(ctx, s.ID()))
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(s.ID())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.Close(ctx, s.ID()), ErrNotFound)
}

func TestManager_Reap(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &mockRecorder{}, Config{IdleTimeout: time.Hour})

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Open(ctx, "till-1")
	active := m.Open(ctx, "till-2")

	now = now.Add(50 * time.Minute)
	_, err := active.AddProduct(ctx, "P1", 1)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, m.Reap(ctx))

	_, err = m.Get(idle.ID())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(active.ID())
	require.NoError(t, err)
}

func TestManager_ReapDisabled(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &mockRecorder{}, Config{})
	m.Open(ctx, "till-1")

	assert.Equal(t, 0, m.Reap(ctx))
	assert.Equal(t, 1, m.Len())
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := newTestManager(t, &mockRecorder{}, Config{IdleTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx, time.Millisecond))
}

func TestManager_RunRejectsNonPositiveInterval(t *testing.T) {
	m := newTestManager(t, &mockRecorder{}, Config{IdleTimeout: time.Hour})

	for _, interval := range []time.Duration{0, -time.Second} {
		err := m.Run(context.Background(), interval)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	}
}
