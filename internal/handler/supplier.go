package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/boutique-pos/internal/domain/supplier"
)

type supplierInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contactPerson" validate:"max=200"`
	Phone         string `json:"phone" validate:"max=32"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"max=500"`
	TaxNumber     string `json:"taxNumber" validate:"max=32"`
}

func decodeSupplierInput(r *http.Request) (*supplierInput, error) {
	var in supplierInput
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "contactPerson":
			in.ContactPerson, err = decodeOptStr(d)
		case "phone":
			in.Phone, err = decodeOptStr(d)
		case "email":
			in.Email, err = decodeOptStr(d)
		case "address":
			in.Address, err = decodeOptStr(d)
		case "taxNumber":
			in.TaxNumber, err = decodeOptStr(d)
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

func (in *supplierInput) toSupplier(id string) *supplier.Supplier {
	return &supplier.Supplier{
		ID:            id,
		Name:          in.Name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Email:         in.Email,
		Address:       in.Address,
		TaxNumber:     in.TaxNumber,
	}
}

func encodeSupplier(e *jx.Encoder, s *supplier.Supplier) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("contactPerson")
	e.Str(s.ContactPerson)
	e.FieldStart("phone")
	e.Str(s.Phone)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("address")
	e.Str(s.Address)
	e.FieldStart("taxNumber")
	e.Str(s.TaxNumber)
	e.FieldStart("createdAt")
	encodeTime(e, s.CreatedAt)
	e.ObjEnd()
}

// ListSuppliers returns suppliers ordered by name.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.suppliers.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for i := range list {
			encodeSupplier(e, &list[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// GetSupplier returns a single supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	s, err := h.suppliers.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSupplier(e, s) })
}

// CreateSupplier adds a supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSupplierInput(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		fail(w, r, err)
		return
	}

	s := in.toSupplier(uuid.NewString())
	if err := h.suppliers.Create(r.Context(), s); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSupplier(e, s) })
}

// UpdateSupplier replaces a supplier's details.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSupplierInput(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		fail(w, r, err)
		return
	}

	s := in.toSupplier(chi.URLParam(r, "id"))
	if err := h.suppliers.Update(r.Context(), s); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSupplier(e, s) })
}

// DeleteSupplier removes a supplier. Its products keep existing without one.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.suppliers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
