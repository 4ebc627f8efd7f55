package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-pos/internal/domain/product"
)

type sizeInput struct {
	Size  string `json:"size" validate:"required,max=16"`
	Stock int    `json:"stock" validate:"gte=0"`
}

type colorInput struct {
	Name    string `json:"name" validate:"required,max=50"`
	HexCode string `json:"hexCode" validate:"omitempty,hexcolor"`
	Stock   int    `json:"stock" validate:"gte=0"`
}

type productInput struct {
	Barcode          string          `json:"barcode" validate:"required,max=64"`
	Name             string          `json:"name" validate:"required,max=200"`
	Category         string          `json:"category" validate:"required,max=100"`
	Description      string          `json:"description" validate:"max=2000"`
	PurchasePrice    decimal.Decimal `json:"purchasePrice" validate:"gte=0"`
	SalePrice        decimal.Decimal `json:"salePrice" validate:"gt=0"`
	Stock            int             `json:"stock" validate:"gte=0"`
	MinStock         int             `json:"minStock" validate:"gte=0"`
	Unit             string          `json:"unit" validate:"omitempty,oneof=adet kg gram litre kutu paket"`
	ShelfLocation    string          `json:"shelfLocation" validate:"max=50"`
	SupplierID       string          `json:"supplierId" validate:"max=64"`
	IsActive         *bool           `json:"isActive"`
	Sizes            []sizeInput     `json:"sizes" validate:"dive"`
	Colors           []colorInput    `json:"colors" validate:"dive"`
	Material         string          `json:"material" validate:"max=100"`
	Brand            string          `json:"brand" validate:"max=100"`
	Season           string          `json:"season" validate:"omitempty,oneof=yaz kış ilkbahar_sonbahar dort_mevsim"`
	Pattern          string          `json:"pattern" validate:"max=100"`
	CareInstructions string          `json:"careInstructions" validate:"max=1000"`
}

func decodeProductInput(r *http.Request) (*productInput, error) {
	var in productInput
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "barcode":
			in.Barcode, err = d.Str()
		case "name":
			in.Name, err = d.Str()
		case "category":
			in.Category, err = d.Str()
		case "description":
			in.Description, err = decodeOptStr(d)
		case "purchasePrice":
			in.PurchasePrice, err = decodeDecimal(d)
		case "salePrice":
			in.SalePrice, err = decodeDecimal(d)
		case "stock":
			in.Stock, err = d.Int()
		case "minStock":
			in.MinStock, err = d.Int()
		case "unit":
			in.Unit, err = decodeOptStr(d)
		case "shelfLocation":
			in.ShelfLocation, err = decodeOptStr(d)
		case "supplierId":
			in.SupplierID, err = decodeOptStr(d)
		case "isActive":
			var v bool
			v, err = d.Bool()
			in.IsActive = &v
		case "sizes":
			err = d.Arr(func(d *jx.Decoder) error {
				var s sizeInput
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "size":
						s.Size, err = d.Str()
					case "stock":
						s.Stock, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				in.Sizes = append(in.Sizes, s)
				return nil
			})
		case "colors":
			err = d.Arr(func(d *jx.Decoder) error {
				var c colorInput
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "name":
						c.Name, err = d.Str()
					case "hexCode":
						c.HexCode, err = decodeOptStr(d)
					case "stock":
						c.Stock, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				in.Colors = append(in.Colors, c)
				return nil
			})
		case "material":
			in.Material, err = decodeOptStr(d)
		case "brand":
			in.Brand, err = decodeOptStr(d)
		case "season":
			in.Season, err = decodeOptStr(d)
		case "pattern":
			in.Pattern, err = decodeOptStr(d)
		case "careInstructions":
			in.CareInstructions, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return badRequest("invalid %s: %v", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *productInput) toProduct(id string) *product.Product {
	p := &product.Product{
		ID:               id,
		Barcode:          in.Barcode,
		Name:             in.Name,
		Category:         in.Category,
		Description:      in.Description,
		PurchasePrice:    in.PurchasePrice,
		SalePrice:        in.SalePrice,
		Stock:            in.Stock,
		MinStock:         in.MinStock,
		Unit:             product.Unit(in.Unit),
		ShelfLocation:    in.ShelfLocation,
		SupplierID:       in.SupplierID,
		IsActive:         in.IsActive == nil || *in.IsActive,
		Material:         in.Material,
		Brand:            in.Brand,
		Season:           product.Season(in.Season),
		Pattern:          in.Pattern,
		CareInstructions: in.CareInstructions,
	}
	if p.Unit == "" {
		p.Unit = product.UnitPiece
	}
	for _, s := range in.Sizes {
		p.Sizes = append(p.Sizes, product.SizeStock{Size: s.Size, Stock: s.Stock})
	}
	for _, c := range in.Colors {
		p.Colors = append(p.Colors, product.ColorStock{Name: c.Name, HexCode: c.HexCode, Stock: c.Stock})
	}
	return p
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("barcode")
	e.Str(p.Barcode)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("purchasePrice")
	encodeDecimal(e, p.PurchasePrice)
	e.FieldStart("salePrice")
	encodeDecimal(e, p.SalePrice)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("minStock")
	e.Int(p.MinStock)
	e.FieldStart("stockLevel")
	e.Str(string(p.StockLevel()))
	e.FieldStart("unit")
	e.Str(string(p.Unit))
	e.FieldStart("shelfLocation")
	e.Str(p.ShelfLocation)
	e.FieldStart("supplierId")
	if p.SupplierID == "" {
		e.Null()
	} else {
		e.Str(p.SupplierID)
	}
	e.FieldStart("isActive")
	e.Bool(p.IsActive)

	e.FieldStart("sizes")
	e.ArrStart()
	for _, s := range p.Sizes {
		e.ObjStart()
		e.FieldStart("size")
		e.Str(s.Size)
		e.FieldStart("stock")
		e.Int(s.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("colors")
	e.ArrStart()
	for _, c := range p.Colors {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(c.Name)
		if c.HexCode != "" {
			e.FieldStart("hexCode")
			e.Str(c.HexCode)
		}
		e.FieldStart("stock")
		e.Int(c.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("material")
	e.Str(p.Material)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("season")
	e.Str(string(p.Season))
	e.FieldStart("pattern")
	e.Str(p.Pattern)
	e.FieldStart("careInstructions")
	e.Str(p.CareInstructions)
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

// ListProducts returns a page of the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f := product.Filter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}
	var err error
	if f.LowStock, err = queryBool(r, "lowStock"); err != nil {
		fail(w, r, err)
		return
	}
	if f.ActiveOnly, err = queryBool(r, "active"); err != nil {
		fail(w, r, err)
		return
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		fail(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "pageSize"); err != nil {
		fail(w, r, err)
		return
	}

	page, err := h.products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for i := range page.Items {
			encodeProduct(e, &page.Items[i])
		}
		e.ArrEnd()
		encodePagination(e, page.Total, page.Page, page.PageSize, page.TotalPages())
		e.ObjEnd()
	})
}

func encodePagination(e *jx.Encoder, total, page, size, pages int) {
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("page")
	e.Int(page)
	e.FieldStart("pageSize")
	e.Int(size)
	e.FieldStart("totalPages")
	e.Int(pages)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// GetProductByBarcode returns the product carrying a barcode.
func (h *Handler) GetProductByBarcode(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProductInput(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		fail(w, r, err)
		return
	}

	p := in.toProduct(uuid.NewString())
	if err := h.products.Create(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// UpdateProduct replaces a product.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProductInput(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		fail(w, r, err)
		return
	}

	p := in.toProduct(chi.URLParam(r, "id"))
	if err := h.products.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// DeleteProduct removes a product.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
