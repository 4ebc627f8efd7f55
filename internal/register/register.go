// Package register manages open sale sessions, each owning one cart ledger.
//
// Sessions live only in memory. A session that is closed, or idle for longer
// than the configured timeout, is dropped together with its cart.
//
// Lock order: Manager.mu before Session.mu. Session methods never take the
// manager lock.
package register

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("register session not found")
	// ErrSubmitting is returned while a checkout of the session is in flight.
	ErrSubmitting = errors.New("checkout in progress")
	// ErrProductInactive is returned when adding a product that is not for sale.
	ErrProductInactive = errors.New("product is not active")
)

// Catalog resolves products being added to a cart.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*product.Product, error)
}

// Config controls session behaviour.
type Config struct {
	TaxRate       decimal.Decimal
	IdleTimeout   time.Duration
	SubmitTimeout time.Duration
}

// Manager owns all open sessions.
type Manager struct {
	cfg      Config
	catalog  Catalog
	recorder sale.Recorder
	now      func() time.Time

	openGauge metric.Int64UpDownCounter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Products are looked up in catalog and
// checkouts are recorded by recorder.
func NewManager(cfg Config, catalog Catalog, recorder sale.Recorder, mp metric.MeterProvider) (*Manager, error) {
	gauge, err := mp.Meter("github.com/xenking/boutique-pos/internal/register").
		Int64UpDownCounter("pos.registers.open",
			metric.WithDescription("Number of open register sessions"),
		)
	if err != nil {
		return nil, errors.Wrap(err, "create open registers gauge")
	}

	return &Manager{
		cfg:       cfg,
		catalog:   catalog,
		recorder:  recorder,
		now:       time.Now,
		openGauge: gauge,
		sessions:  make(map[string]*Session),
	}, nil
}

// Open starts a new sale session for cashierID with an empty cart.
func (m *Manager) Open(ctx context.Context, cashierID string) *Session {
	now := m.now()
	s := newSession(m, uuid.New().String(), cashierID, now)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.openGauge.Add(ctx, 1)
	zctx.From(ctx).Info("Register opened",
		zap.String("register_id", s.id),
		zap.String("cashier_id", cashierID),
	)
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close discards a session and its cart. Sessions with a checkout in flight
// cannot be closed.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	s.mu.Lock()
	submitting := s.submitting
	lines := s.ledger.Len()
	s.mu.Unlock()
	if submitting {
		m.mu.Unlock()
		return ErrSubmitting
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.openGauge.Add(ctx, -1)
	zctx.From(ctx).Info("Register closed",
		zap.String("register_id", id),
		zap.Int("discarded_lines", lines),
	)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap drops sessions idle for longer than IdleTimeout and returns how many
// were dropped. Sessions with a checkout in flight are kept.
func (m *Manager) Reap(ctx context.Context) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	lg := zctx.From(ctx)

	m.mu.Lock()
	var reaped int
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := !s.submitting && s.lastActive.Before(cutoff)
		lines := s.ledger.Len()
		s.mu.Unlock()
		if !idle {
			continue
		}
		delete(m.sessions, id)
		reaped++
		lg.Info("Register expired",
			zap.String("register_id", id),
			zap.Int("discarded_lines", lines),
		)
	}
	m.mu.Unlock()

	if reaped > 0 {
		m.openGauge.Add(ctx, -int64(reaped))
	}
	return reaped
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("reap interval %s must be positive", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}
