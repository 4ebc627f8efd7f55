package cart

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/boutique-pos/internal/domain/sale"
)

// --- Mock implementations ---

type mockRecorder struct {
	got   *sale.Draft
	calls int
	err   error
	block bool
}

func (m *mockRecorder) Record(ctx context.Context, d *sale.Draft) (*sale.Sale, error) {
	m.calls++
	m.got = d
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &sale.Sale{ID: "sale-1", Number: 1, Subtotal: d.Subtotal, Tax: d.Tax, Total: d.Total}, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id, price string) Product {
	return Product{ID: id, Name: "Product " + id, UnitPrice: dec(price)}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func assertSumOfLines(t *testing.T, l *Ledger) {
	t.Helper()
	sum := decimal.Zero
	for _, li := range l.Lines() {
		sum = sum.Add(li.LineTotal())
	}
	assert.True(t, sum.Equal(l.Subtotal()), "sum of lines %s != subtotal %s", sum, l.Subtotal())
	assert.True(t, l.Subtotal().Mul(l.TaxRate()).Equal(l.Tax()))
	assert.True(t, l.Subtotal().Add(l.Tax()).Equal(l.Total()))
}

// --- Tests ---

func TestLedger_Scenario(t *testing.T) {
	l := New(DefaultTaxRate)

	require.NoError(t, l.AddItem(product("P1", "100"), 2))
	assertDecimal(t, "200", l.Subtotal())

	require.NoError(t, l.ApplyDiscount("P1", dec("10")))
	line, ok := l.Line("P1")
	require.True(t, ok)
	assertDecimal(t, "180", line.LineTotal())
	assertDecimal(t, "180", l.Subtotal())

	require.NoError(t, l.AddItem(product("P2", "50"), 1))
	assertDecimal(t, "230", l.Subtotal())
	assertDecimal(t, "41.4", l.Tax())
	assertDecimal(t, "271.4", l.Total())

	totals := l.Totals()
	assertDecimal(t, "230", totals.Subtotal)
	assertDecimal(t, "41.4", totals.Tax)
	assertDecimal(t, "271.4", totals.Total)
	assertSumOfLines(t, l)
}

func TestLedger_AddItemMergesAndKeepsDiscount(t *testing.T) {
	l := New(DefaultTaxRate)

	require.NoError(t, l.AddItem(product("P1", "20"), 1))
	require.NoError(t, l.ApplyDiscount("P1", dec("25")))
	require.NoError(t, l.AddItem(product("P1", "20"), 2))
	require.NoError(t, l.AddItem(product("P1", "20"), 4))

	require.Equal(t, 1, l.Len())
	line, _ := l.Line("P1")
	assert.Equal(t, 7, line.Quantity)
	assertDecimal(t, "25", line.DiscountPercent)
	assertDecimal(t, "105", line.LineTotal())
	assertSumOfLines(t, l)
}

func TestLedger_AddItemKeepsPriceSnapshot(t *testing.T) {
	l := New(DefaultTaxRate)

	require.NoError(t, l.AddItem(product("P1", "20"), 1))
	require.NoError(t, l.AddItem(product("P1", "35"), 1))

	line, _ := l.Line("P1")
	assertDecimal(t, "20", line.UnitPrice)
	assertDecimal(t, "40", l.Subtotal())
}

func TestLedger_AddItemDefaultsDiscountToZero(t *testing.T) {
	l := New(DefaultTaxRate)

	require.NoError(t, l.AddItem(product("P1", "12.50"), 3))

	line, _ := l.Line("P1")
	assert.True(t, line.DiscountPercent.IsZero())
	assertDecimal(t, "37.5", line.LineTotal())
}

func TestLedger_AddItemRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		qty     int
		wantErr error
	}{
		{name: "zero quantity", product: product("P1", "10"), qty: 0, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", product: product("P1", "10"), qty: -3, wantErr: ErrInvalidQuantity},
		{name: "quantity above max", product: product("P1", "10"), qty: MaxQuantity + 1, wantErr: ErrInvalidQuantity},
		{name: "max int quantity", product: product("P1", "10"), qty: math.MaxInt, wantErr: ErrInvalidQuantity},
		{name: "negative price", product: product("P1", "-1"), qty: 1, wantErr: ErrInvalidPrice},
		{name: "missing id", product: Product{UnitPrice: dec("10")}, qty: 1, wantErr: ErrInvalidProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(DefaultTaxRate)
			require.NoError(t, l.AddItem(product("EXISTING", "5"), 1))

			err := l.AddItem(tt.product, tt.qty)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, l.Len())
			assertDecimal(t, "5", l.Subtotal())
		})
	}
}

func TestLedger_QuantityBound(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		add     int
		wantErr error
		wantQty int
	}{
		{name: "merge up to max", start: MaxQuantity - 5, add: 5, wantQty: MaxQuantity},
		{name: "merge past max", start: MaxQuantity - 5, add: 6, wantErr: ErrInvalidQuantity, wantQty: MaxQuantity - 5},
		{name: "merge onto full line", start: MaxQuantity, add: 1, wantErr: ErrInvalidQuantity, wantQty: MaxQuantity},
		{name: "merge two max adds", start: MaxQuantity, add: MaxQuantity, wantErr: ErrInvalidQuantity, wantQty: MaxQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(DefaultTaxRate)
			require.NoError(t, l.AddItem(product("P1", "2.50"), tt.start))

			err := l.AddItem(product("P1", "2.50"), tt.add)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			line, ok := l.Line("P1")
			require.True(t, ok)
			assert.Equal(t, tt.wantQty, line.Quantity)
			assert.True(t, l.Subtotal().IsPositive())
			assertSumOfLines(t, l)
		})
	}
}

func TestLedger_UpdateQuantityBound(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "10"), 3))

	require.ErrorIs(t, l.UpdateQuantity("P1", MaxQuantity+1), ErrInvalidQuantity)
	require.ErrorIs(t, l.UpdateQuantity("P1", math.MaxInt), ErrInvalidQuantity)
	line, _ := l.Line("P1")
	assert.Equal(t, 3, line.Quantity)

	require.NoError(t, l.UpdateQuantity("P1", MaxQuantity))
	line, _ = l.Line("P1")
	assert.Equal(t, MaxQuantity, line.Quantity)
	assertSumOfLines(t, l)
}

func TestLedger_RemoveItem(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "10"), 1))
	require.NoError(t, l.AddItem(product("P2", "20"), 1))

	l.RemoveItem("P3")
	require.Equal(t, 2, l.Len())
	assertDecimal(t, "30", l.Subtotal())

	l.RemoveItem("P1")
	l.RemoveItem("P1")
	require.Equal(t, 1, l.Len())
	assert.Equal(t, "P2", l.Lines()[0].ProductID)
	assertDecimal(t, "20", l.Subtotal())
}

func TestLedger_UpdateQuantityZeroEqualsRemove(t *testing.T) {
	build := func() *Ledger {
		l := New(DefaultTaxRate)
		require.NoError(t, l.AddItem(product("P1", "10"), 3))
		require.NoError(t, l.AddItem(product("P2", "7"), 2))
		require.NoError(t, l.ApplyDiscount("P2", dec("50")))
		return l
	}

	updated := build()
	require.NoError(t, updated.UpdateQuantity("P1", 0))

	removed := build()
	removed.RemoveItem("P1")

	assert.Equal(t, removed.Lines(), updated.Lines())
	assert.True(t, removed.Total().Equal(updated.Total()))

	negative := build()
	require.NoError(t, negative.UpdateQuantity("P1", -1))
	assert.Equal(t, removed.Lines(), negative.Lines())
}

func TestLedger_UpdateQuantity(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "10"), 3))
	require.NoError(t, l.ApplyDiscount("P1", dec("10")))

	require.NoError(t, l.UpdateQuantity("P1", 5))
	line, _ := l.Line("P1")
	assert.Equal(t, 5, line.Quantity)
	assertDecimal(t, "10", line.DiscountPercent)
	assertDecimal(t, "45", line.LineTotal())

	require.NoError(t, l.UpdateQuantity("MISSING", 4))
	assert.Equal(t, 1, l.Len())
	_, ok := l.Line("MISSING")
	assert.False(t, ok)
}

func TestLedger_UpdateQuantityToZeroEmptiesCart(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "10"), 3))

	require.NoError(t, l.UpdateQuantity("P1", 0))

	assert.True(t, l.IsEmpty())
	assert.True(t, l.Subtotal().IsZero())
}

func TestLedger_ApplyDiscount(t *testing.T) {
	tests := []struct {
		name      string
		percent   string
		wantErr   error
		wantTotal string
	}{
		{name: "zero", percent: "0", wantTotal: "200"},
		{name: "fraction", percent: "12.5", wantTotal: "175"},
		{name: "full", percent: "100", wantTotal: "0"},
		{name: "negative rejected", percent: "-5", wantErr: ErrInvalidDiscount, wantTotal: "200"},
		{name: "above hundred rejected", percent: "100.01", wantErr: ErrInvalidDiscount, wantTotal: "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(DefaultTaxRate)
			require.NoError(t, l.AddItem(product("P1", "100"), 2))

			err := l.ApplyDiscount("P1", dec(tt.percent))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assertDecimal(t, tt.wantTotal, l.Subtotal())
		})
	}
}

func TestLedger_ApplyDiscountMissingLineIsNoop(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "100"), 1))

	require.NoError(t, l.ApplyDiscount("P2", dec("50")))

	assert.Equal(t, 1, l.Len())
	assertDecimal(t, "100", l.Subtotal())
}

func TestLedger_ClearResetsTotals(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "100"), 1))
	require.NoError(t, l.AddItem(product("P2", "3.33"), 3))

	l.Clear()

	assert.True(t, l.IsEmpty())
	assert.Empty(t, l.Lines())
	assert.True(t, l.Subtotal().IsZero())
	assert.True(t, l.Tax().IsZero())
	assert.True(t, l.Total().IsZero())
}

func TestLedger_TotalsArePure(t *testing.T) {
	l := New(dec("0.08"))
	require.NoError(t, l.AddItem(product("P1", "19.99"), 3))
	require.NoError(t, l.ApplyDiscount("P1", dec("33.3")))

	first := l.Totals()
	second := l.Totals()

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Tax.Equal(second.Tax))
	assert.True(t, first.Total.Equal(second.Total))
	assertSumOfLines(t, l)
}

// assertLedgerInvariants checks the properties that must hold after any
// sequence of mutations.
func assertLedgerInvariants(t *testing.T, l *Ledger) {
	t.Helper()
	assertSumOfLines(t, l)

	seen := make(map[string]struct{})
	for _, li := range l.Lines() {
		_, dup := seen[li.ProductID]
		assert.False(t, dup, "duplicate line for %s", li.ProductID)
		seen[li.ProductID] = struct{}{}
		assert.GreaterOrEqual(t, li.Quantity, 1, "line %s", li.ProductID)
		assert.LessOrEqual(t, li.Quantity, MaxQuantity, "line %s", li.ProductID)
		assert.False(t, li.LineTotal().IsNegative(), "line %s", li.ProductID)
	}
	assert.Equal(t, len(seen), l.Len())
}

func TestLedger_MixedOperationsKeepInvariants(t *testing.T) {
	ids := []string{"P1", "P2", "P3", "P4"}
	prices := []string{"19.99", "0.01", "249.90", "3.33"}
	quantities := []int{-2, 0, 1, 3, 7, MaxQuantity - 1, MaxQuantity, MaxQuantity + 1}
	discounts := []string{"-1", "0", "12.345", "33.3", "50", "100", "100.5"}

	for _, seed := range []uint64{1, 2, 3, 42, 2024} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed))
			l := New(dec("0.08"))

			for step := 0; step < 500; step++ {
				i := rng.IntN(len(ids))
				id := ids[i]
				qty := quantities[rng.IntN(len(quantities))]

				switch op := rng.IntN(10); {
				case op < 4:
					_ = l.AddItem(product(id, prices[i]), qty)
				case op < 6:
					_ = l.UpdateQuantity(id, qty)
				case op < 8:
					_ = l.ApplyDiscount(id, dec(discounts[rng.IntN(len(discounts))]))
				case op < 9:
					l.RemoveItem(id)
				default:
					l.Clear()
				}

				assertLedgerInvariants(t, l)
				if t.Failed() {
					t.Fatalf("invariants broken at step %d (seed %d)", step, seed)
				}
			}
		})
	}
}

func TestLedger_LinesReturnsCopy(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "10"), 1))

	lines := l.Lines()
	lines[0].Quantity = 99

	line, _ := l.Line("P1")
	assert.Equal(t, 1, line.Quantity)
}

func TestLedger_PreservesInsertionOrder(t *testing.T) {
	l := New(DefaultTaxRate)
	for _, id := range []string{"C", "A", "B"} {
		require.NoError(t, l.AddItem(product(id, "1"), 1))
	}
	require.NoError(t, l.AddItem(product("A", "1"), 1))

	var ids []string
	for _, li := range l.Lines() {
		ids = append(ids, li.ProductID)
	}
	assert.Equal(t, []string{"C", "A", "B"}, ids)
}

func TestLedger_SubmitClearsOnSuccess(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "100"), 2))
	require.NoError(t, l.ApplyDiscount("P1", dec("10")))
	require.NoError(t, l.AddItem(product("P2", "50"), 1))
	rec := &mockRecorder{}

	s, err := l.Submit(context.Background(), rec, sale.PaymentCard, "cust-1")

	require.NoError(t, err)
	assert.Equal(t, "sale-1", s.ID)
	assert.True(t, l.IsEmpty())

	require.NotNil(t, rec.got)
	assert.Equal(t, sale.PaymentCard, rec.got.PaymentMethod)
	assert.Equal(t, "cust-1", rec.got.CustomerID)
	require.Len(t, rec.got.Items, 2)
	assertDecimal(t, "180", rec.got.Items[0].LineTotal)
	assertDecimal(t, "10", rec.got.Items[0].DiscountPercent)
	assertDecimal(t, "230", rec.got.Subtotal)
	assertDecimal(t, "41.4", rec.got.Tax)
	assertDecimal(t, "271.4", rec.got.Total)
}

func TestLedger_SubmitFailureKeepsCart(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "100"), 2))
	require.NoError(t, l.ApplyDiscount("P1", dec("10")))
	before := l.Lines()
	beforeTotals := l.Totals()

	_, err := l.Submit(context.Background(), &mockRecorder{err: errors.New("backend down")}, sale.PaymentCash, "")

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, before, l.Lines())
	assert.True(t, beforeTotals.Total.Equal(l.Total()))
	assert.True(t, beforeTotals.Tax.Equal(l.Tax()))
	assert.True(t, beforeTotals.Subtotal.Equal(l.Subtotal()))
}

func TestLedger_SubmitTimeoutKeepsCart(t *testing.T) {
	l := New(DefaultTaxRate)
	require.NoError(t, l.AddItem(product("P1", "15"), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Submit(ctx, &mockRecorder{block: true}, sale.PaymentCash, "")

	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_SubmitEmptyCart(t *testing.T) {
	l := New(DefaultTaxRate)
	rec := &mockRecorder{}

	_, err := l.Submit(context.Background(), rec, sale.PaymentCash, "")

	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, rec.calls)
}
