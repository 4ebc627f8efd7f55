package sale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	sales := []Sale{
		{
			ID: "s1", PaymentMethod: PaymentCash, Status: StatusCompleted,
			Subtotal: dec("230"), Tax: dec("41.4"), Total: dec("271.4"),
			Items: []Item{
				{ProductID: "P1", Name: "Tunic", Quantity: 2, LineTotal: dec("180")},
				{ProductID: "P2", Name: "Scarf", Quantity: 1, LineTotal: dec("50")},
			},
		},
		{
			ID: "s2", PaymentMethod: PaymentCard, Status: StatusCompleted,
			Subtotal: dec("150"), Tax: dec("27"), Total: dec("177"),
			Items: []Item{
				{ProductID: "P2", Name: "Scarf", Quantity: 3, LineTotal: dec("150")},
			},
		},
		{
			ID: "s3", PaymentMethod: PaymentCard, Status: StatusCancelled,
			Subtotal: dec("1000"), Tax: dec("180"), Total: dec("1180"),
			Items: []Item{
				{ProductID: "P9", Name: "Coat", Quantity: 10, LineTotal: dec("1000")},
			},
		},
	}

	r := Summarize(day, sales)

	assert.Equal(t, day, r.Date)
	assert.Equal(t, 2, r.Transactions)
	assert.Equal(t, 6, r.UnitsSold)
	assert.True(t, dec("380").Equal(r.Subtotal))
	assert.True(t, dec("68.4").Equal(r.Tax))
	assert.True(t, dec("448.4").Equal(r.Revenue))

	require.Len(t, r.ByPaymentMethod, len(PaymentMethods))
	assert.Equal(t, PaymentCash, r.ByPaymentMethod[0].Method)
	assert.Equal(t, 1, r.ByPaymentMethod[0].Transactions)
	assert.True(t, dec("271.4").Equal(r.ByPaymentMethod[0].Revenue))
	assert.Equal(t, PaymentCard, r.ByPaymentMethod[1].Method)
	assert.Equal(t, 1, r.ByPaymentMethod[1].Transactions)
	assert.True(t, dec("177").Equal(r.ByPaymentMethod[1].Revenue))
	assert.Zero(t, r.ByPaymentMethod[2].Transactions)

	require.Len(t, r.TopProducts, 2)
	assert.Equal(t, "P2", r.TopProducts[0].ProductID)
	assert.Equal(t, 4, r.TopProducts[0].Quantity)
	assert.True(t, dec("200").Equal(r.TopProducts[0].Revenue))
	assert.Equal(t, "P1", r.TopProducts[1].ProductID)
}

func TestSummarize_Empty(t *testing.T) {
	r := Summarize(time.Time{}, nil)

	assert.Zero(t, r.Transactions)
	assert.True(t, r.Revenue.IsZero())
	assert.Empty(t, r.TopProducts)
	assert.Len(t, r.ByPaymentMethod, len(PaymentMethods))
}

func TestSummarize_LimitsTopProducts(t *testing.T) {
	s := Sale{PaymentMethod: PaymentCash, Status: StatusCompleted, Subtotal: dec("0"), Tax: dec("0"), Total: dec("0")}
	for i, id := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		s.Items = append(s.Items, Item{ProductID: id, Quantity: i + 1, LineTotal: dec("1")})
	}

	r := Summarize(time.Time{}, []Sale{s})

	require.Len(t, r.TopProducts, topProductsLimit)
	assert.Equal(t, "G", r.TopProducts[0].ProductID)
	assert.Equal(t, "C", r.TopProducts[4].ProductID)
}
