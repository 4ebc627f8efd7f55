package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

var _ Recorder = (*Service)(nil)

// Service records sales and answers sale history queries.
type Service struct {
	repo    Repository
	taxRate decimal.Decimal
	now     func() time.Time

	tracer   trace.Tracer
	recorded metric.Int64Counter
	revenue  metric.Float64Counter
}

// NewService creates a sale Service. taxRate must match the rate used by the
// ledgers whose drafts it records.
func NewService(repo Repository, taxRate decimal.Decimal, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("github.com/xenking/boutique-pos/internal/domain/sale")

	recorded, err := meter.Int64Counter("pos.sales.recorded",
		metric.WithDescription("Number of recorded sales"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create recorded counter")
	}
	revenue, err := meter.Float64Counter("pos.sales.revenue",
		metric.WithDescription("Gross revenue of recorded sales, tax included"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create revenue counter")
	}

	return &Service{
		repo:     repo,
		taxRate:  taxRate,
		now:      time.Now,
		tracer:   tp.Tracer("github.com/xenking/boutique-pos/internal/domain/sale"),
		recorded: recorded,
		revenue:  revenue,
	}, nil
}

// Record validates d, persists it and returns the recorded sale.
func (s *Service) Record(ctx context.Context, d *Draft) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.Record")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := s.validate(d); err != nil {
		return nil, err
	}

	items := make([]Item, len(d.Items))
	for i, it := range d.Items {
		items[i] = Item(it)
	}

	sl := &Sale{
		ID:            uuid.New().String(),
		Items:         items,
		Subtotal:      d.Subtotal,
		Tax:           d.Tax,
		Total:         d.Total,
		PaymentMethod: d.PaymentMethod,
		CustomerID:    d.CustomerID,
		CashierID:     d.CashierID,
		Status:        StatusCompleted,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Create(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "create sale")
	}

	attrs := metric.WithAttributes(attribute.String("payment_method", string(sl.PaymentMethod)))
	s.recorded.Add(ctx, 1, attrs)
	s.revenue.Add(ctx, sl.Total.InexactFloat64(), attrs)
	span.SetAttributes(attribute.String("sale.id", sl.ID), attribute.Int("sale.items", len(items)))

	zctx.From(ctx).Info("Sale recorded",
		zap.String("sale_id", sl.ID),
		zap.Int64("number", sl.Number),
		zap.String("total", sl.Total.String()),
		zap.String("payment_method", string(sl.PaymentMethod)),
	)
	return sl, nil
}

// validate rejects drafts whose totals cannot be derived from their lines.
func (s *Service) validate(d *Draft) error {
	if d == nil || len(d.Items) == 0 {
		return ErrEmptySale
	}
	if !d.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if d.PaymentMethod == PaymentCredit && d.CustomerID == "" {
		return ErrCustomerRequired
	}

	seen := make(map[string]struct{}, len(d.Items))
	subtotal := decimal.Zero
	for _, it := range d.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrInvalidSaleItem, "product %q", it.ProductID)
		}
		if it.DiscountPercent.IsNegative() || it.DiscountPercent.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidSaleItem, "discount for product %q", it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return errors.Wrapf(ErrInvalidSaleItem, "duplicate product %q", it.ProductID)
		}
		seen[it.ProductID] = struct{}{}

		want := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).
			Mul(hundred.Sub(it.DiscountPercent)).Div(hundred)
		if !want.Equal(it.LineTotal) {
			return errors.Wrapf(ErrTotalsMismatch, "line total for product %q", it.ProductID)
		}
		subtotal = subtotal.Add(it.LineTotal)
	}

	tax := subtotal.Mul(s.taxRate)
	switch {
	case !subtotal.Equal(d.Subtotal):
		return errors.Wrap(ErrTotalsMismatch, "subtotal")
	case !tax.Equal(d.Tax):
		return errors.Wrap(ErrTotalsMismatch, "tax")
	case !subtotal.Add(tax).Equal(d.Total):
		return errors.Wrap(ErrTotalsMismatch, "total")
	}
	return nil
}

// Get returns a single sale.
func (s *Service) Get(ctx context.Context, id string) (*Sale, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns sales matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return Page{}, ErrInvalidDateFilter
	}
	if f.PaymentMethod != "" && !f.PaymentMethod.Valid() {
		return Page{}, ErrInvalidPayment
	}
	return s.repo.List(ctx, normalizePage(f))
}

// Cancel voids a completed sale and returns its stock.
func (s *Service) Cancel(ctx context.Context, id, reason string) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.Cancel", trace.WithAttributes(attribute.String("sale.id", id)))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	sl, err := s.repo.Cancel(ctx, id, reason, s.now().UTC())
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Sale cancelled",
		zap.String("sale_id", sl.ID),
		zap.String("reason", reason),
	)
	return sl, nil
}

// DailyReport summarises the completed sales of the UTC day containing day.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (*Report, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	f := Filter{From: from, To: from.Add(24 * time.Hour), PageSize: maxPageSize}

	var sales []Sale
	for page := 1; ; page++ {
		f.Page = page
		res, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "list sales")
		}
		sales = append(sales, res.Items...)
		if len(res.Items) < f.PageSize || len(sales) >= res.Total {
			break
		}
	}

	r := Summarize(from, sales)
	return &r, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(f Filter) Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = defaultPageSize
	case f.PageSize > maxPageSize:
		f.PageSize = maxPageSize
	}
	return f
}
