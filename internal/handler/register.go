package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-pos/internal/domain/auth"
	"github.com/xenking/boutique-pos/internal/domain/sale"
	"github.com/xenking/boutique-pos/internal/register"
)

type addItemInput struct {
	ProductID string `json:"productId" validate:"required_without=Barcode,excluded_with=Barcode"`
	Barcode   string `json:"barcode"`
	Quantity  int    `json:"quantity" validate:"max=2147483647"`
}

type checkoutInput struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	CustomerID    string `json:"customerId" validate:"max=64"`
}

func encodeView(e *jx.Encoder, v register.View) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.ID)
	e.FieldStart("cashierId")
	e.Str(v.CashierID)
	e.FieldStart("openedAt")
	encodeTime(e, v.OpenedAt)
	e.FieldStart("submitting")
	e.Bool(v.Submitting)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range v.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unitPrice")
		encodeDecimal(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("discountPercent")
		encodeDecimal(e, l.DiscountPercent)
		e.FieldStart("lineTotal")
		encodeDecimal(e, l.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("taxRate")
	encodeDecimal(e, v.TaxRate)
	e.FieldStart("subtotal")
	encodeDecimal(e, v.Totals.Subtotal)
	e.FieldStart("tax")
	encodeDecimal(e, v.Totals.Tax)
	e.FieldStart("total")
	encodeDecimal(e, v.Totals.Total)
	e.ObjEnd()
}

func writeView(w http.ResponseWriter, status int, v register.View) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeView(e, v) })
}

// session returns the register named in the path. Registers opened by other
// cashiers are reported as not found.
func (h *Handler) session(r *http.Request) (*register.Session, error) {
	s, err := h.registers.Get(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	info, ok := auth.InfoFromContext(r.Context())
	if !ok || info.ID != s.CashierID() {
		return nil, register.ErrNotFound
	}
	return s, nil
}

// OpenRegister starts an empty sale for the calling cashier.
func (h *Handler) OpenRegister(w http.ResponseWriter, r *http.Request) {
	info, ok := auth.InfoFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s := h.registers.Open(r.Context(), info.ID)
	writeView(w, http.StatusCreated, s.View())
}

// GetRegister returns the cart of a register.
func (h *Handler) GetRegister(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, s.View())
}

// CloseRegister discards a register and its cart.
func (h *Handler) CloseRegister(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.registers.Close(r.Context(), s.ID()); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a product by id or barcode. Quantity defaults to 1.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	in := addItemInput{Quantity: 1}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			in.ProductID, err = decodeOptStr(d)
		case "barcode":
			in.Barcode, err = decodeOptStr(d)
		case "quantity":
			in.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return badRequest("invalid %s: %v", key, err)
		}
		return nil
	})
	if err == nil {
		err = h.validate.Struct(&in)
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	var v register.View
	if in.Barcode != "" {
		v, err = s.AddBarcode(r.Context(), in.Barcode, in.Quantity)
	} else {
		v, err = s.AddProduct(r.Context(), in.ProductID, in.Quantity)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// UpdateItemQuantity sets a line's quantity; zero or less removes the line.
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var (
		qty  int
		seen bool
	)
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		if qty, err = d.Int(); err != nil {
			return badRequest("invalid quantity: %v", err)
		}
		return nil
	})
	if err == nil && !seen {
		err = badRequest("quantity is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	v, err := s.UpdateQuantity(chi.URLParam(r, "productId"), qty)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// ApplyDiscount sets a line's discount percentage.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var (
		percent decimal.Decimal
		seen    bool
	)
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "percent" {
			return d.Skip()
		}
		seen = true
		var err error
		if percent, err = decodeDecimal(d); err != nil {
			return badRequest("invalid percent: %v", err)
		}
		return nil
	})
	if err == nil && !seen {
		err = badRequest("percent is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	v, err := s.ApplyDiscount(chi.URLParam(r, "productId"), percent)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.RemoveItem(chi.URLParam(r, "productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// ClearItems empties the cart.
func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.Clear()
	if err != nil {
		fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// Checkout records the cart as a sale and empties it. On failure the cart is
// left untouched and can be submitted again.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var in checkoutInput
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentMethod":
			in.PaymentMethod, err = d.Str()
		case "customerId":
			in.CustomerID, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return badRequest("invalid %s: %v", key, err)
		}
		return nil
	})
	if err == nil {
		err = h.validate.Struct(&in)
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	recorded, err := s.Checkout(r.Context(), sale.PaymentMethod(in.PaymentMethod), in.CustomerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSale(e, recorded) })
}
