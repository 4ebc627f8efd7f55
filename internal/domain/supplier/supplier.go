package supplier

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested supplier does not exist.
var ErrNotFound = errors.New("supplier not found")

// Supplier is a vendor the store buys stock from.
type Supplier struct {
	ID            string
	Name          string
	ContactPerson string
	Phone         string
	Email         string
	Address       string
	TaxNumber     string
	CreatedAt     time.Time
}

// Repository defines supplier persistence.
type Repository interface {
	// List returns suppliers ordered by name. A non-empty search matches
	// name, contact person or phone.
	List(ctx context.Context, search string) ([]Supplier, error)
	GetByID(ctx context.Context, id string) (*Supplier, error)
	Create(ctx context.Context, s *Supplier) error
	Update(ctx context.Context, s *Supplier) error
	Delete(ctx context.Context, id string) error
}
