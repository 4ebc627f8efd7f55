package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateBarcode is returned when another product already uses the barcode.
	ErrDuplicateBarcode = errors.New("barcode already in use")
)

// Unit is the unit a product is sold in.
type Unit string

const (
	UnitPiece   Unit = "adet"
	UnitKG      Unit = "kg"
	UnitGram    Unit = "gram"
	UnitLiter   Unit = "litre"
	UnitBox     Unit = "kutu"
	UnitPackage Unit = "paket"
)

// Season a garment is meant for.
type Season string

const (
	SeasonSummer     Season = "yaz"
	SeasonWinter     Season = "kış"
	SeasonSpringFall Season = "ilkbahar_sonbahar"
	SeasonAll        Season = "dort_mevsim"
)

// StockLevel classifies on-hand stock.
type StockLevel string

const (
	StockOut      StockLevel = "out"
	StockCritical StockLevel = "critical"
	StockLow      StockLevel = "low"
	StockNormal   StockLevel = "normal"
)

// Stock thresholds, inclusive.
const (
	CriticalStock = 5
	LowStock      = 10
)

// SizeStock is the on-hand quantity of one size, e.g. "M" or "38".
type SizeStock struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// ColorStock is the on-hand quantity of one colour.
type ColorStock struct {
	Name    string `json:"name"`
	HexCode string `json:"hexCode,omitempty"`
	Stock   int    `json:"stock"`
}

// Product is a catalog entry.
type Product struct {
	ID            string          `json:"id"`
	Barcode       string          `json:"barcode"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Description   string          `json:"description,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	Stock         int             `json:"stock"`
	MinStock      int             `json:"minStock"`
	Unit          Unit            `json:"unit"`
	ShelfLocation string          `json:"shelfLocation,omitempty"`
	SupplierID    string          `json:"supplierId,omitempty"`
	IsActive      bool            `json:"isActive"`

	Sizes            []SizeStock  `json:"sizes,omitempty"`
	Colors           []ColorStock `json:"colors,omitempty"`
	Material         string       `json:"material,omitempty"`
	Brand            string       `json:"brand,omitempty"`
	Season           Season       `json:"season,omitempty"`
	Pattern          string       `json:"pattern,omitempty"`
	CareInstructions string       `json:"careInstructions,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StockLevel classifies the current stock. A product is low when it is at or
// below either the global low threshold or its own MinStock.
func (p *Product) StockLevel() StockLevel {
	switch {
	case p.Stock <= 0:
		return StockOut
	case p.Stock <= CriticalStock:
		return StockCritical
	case p.Stock <= LowStock || p.Stock <= p.MinStock:
		return StockLow
	default:
		return StockNormal
	}
}

// Margin returns SalePrice - PurchasePrice.
func (p *Product) Margin() decimal.Decimal {
	return p.SalePrice.Sub(p.PurchasePrice)
}

// Filter narrows product listings. Zero values are ignored.
type Filter struct {
	Search     string
	Category   string
	LowStock   bool
	ActiveOnly bool
	Page       int
	PageSize   int
}

// Page is a slice of products plus the total number of matches.
type Page struct {
	Items    []Product
	Total    int
	Page     int
	PageSize int
}

// TotalPages returns the number of pages needed for Total items.
func (p Page) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// Repository defines catalog operations.
type Repository interface {
	List(ctx context.Context, f Filter) (Page, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
