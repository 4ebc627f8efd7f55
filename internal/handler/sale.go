package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/boutique-pos/internal/domain/sale"
)

func encodeSale(e *jx.Encoder, s *sale.Sale) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("number")
	e.Int64(s.Number)
	e.FieldStart("receipt")
	e.Str(s.Receipt())
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range s.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		encodeDecimal(e, it.UnitPrice)
		e.FieldStart("discountPercent")
		encodeDecimal(e, it.DiscountPercent)
		e.FieldStart("lineTotal")
		encodeDecimal(e, it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeDecimal(e, s.Subtotal)
	e.FieldStart("tax")
	encodeDecimal(e, s.Tax)
	e.FieldStart("total")
	encodeDecimal(e, s.Total)
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("customerId")
	e.Str(s.CustomerID)
	e.FieldStart("cashierId")
	e.Str(s.CashierID)
	e.FieldStart("status")
	e.Str(string(s.Status))
	if s.CancelReason != "" {
		e.FieldStart("cancelReason")
		e.Str(s.CancelReason)
	}
	e.FieldStart("createdAt")
	encodeTime(e, s.CreatedAt)
	if s.CancelledAt != nil {
		e.FieldStart("cancelledAt")
		encodeTime(e, *s.CancelledAt)
	}
	e.ObjEnd()
}

// ListSales returns recorded sales, newest first.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := sale.Filter{
		PaymentMethod: sale.PaymentMethod(q.Get("paymentMethod")),
		CustomerID:    q.Get("customerId"),
		CashierID:     q.Get("cashierId"),
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		fail(w, r, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
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

	page, err := h.sales.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	totalPages := 0
	if page.PageSize > 0 {
		totalPages = (page.Total + page.PageSize - 1) / page.PageSize
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for i := range page.Items {
			encodeSale(e, &page.Items[i])
		}
		e.ArrEnd()
		encodePagination(e, page.Total, page.Page, page.PageSize, totalPages)
		e.ObjEnd()
	})
}

// GetSale returns a single sale.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.sales.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSale(e, s) })
}

// CancelSale voids a sale and returns its stock.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	var reason string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "reason" {
			return d.Skip()
		}
		var err error
		if reason, err = d.Str(); err != nil {
			return badRequest("invalid reason: %v", err)
		}
		return nil
	})
	if err == nil && reason == "" {
		err = badRequest("reason is required")
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	s, err := h.sales.Cancel(r.Context(), chi.URLParam(r, "id"), reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSale(e, s) })
}

// DailyReport summarises one UTC day of sales, today by default.
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			fail(w, r, badRequest("date must be YYYY-MM-DD"))
			return
		}
		day = t
	}

	rep, err := h.sales.DailyReport(r.Context(), day)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("date")
		e.Str(rep.Date.Format(time.DateOnly))
		e.FieldStart("transactions")
		e.Int(rep.Transactions)
		e.FieldStart("unitsSold")
		e.Int(rep.UnitsSold)
		e.FieldStart("subtotal")
		encodeDecimal(e, rep.Subtotal)
		e.FieldStart("tax")
		encodeDecimal(e, rep.Tax)
		e.FieldStart("revenue")
		encodeDecimal(e, rep.Revenue)

		e.FieldStart("byPaymentMethod")
		e.ArrStart()
		for _, m := range rep.ByPaymentMethod {
			e.ObjStart()
			e.FieldStart("method")
			e.Str(string(m.Method))
			e.FieldStart("transactions")
			e.Int(m.Transactions)
			e.FieldStart("revenue")
			encodeDecimal(e, m.Revenue)
			e.ObjEnd()
		}
		e.ArrEnd()

		e.FieldStart("topProducts")
		e.ArrStart()
		for _, p := range rep.TopProducts {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(p.ProductID)
			e.FieldStart("name")
			e.Str(p.Name)
			e.FieldStart("quantity")
			e.Int(p.Quantity)
			e.FieldStart("revenue")
			encodeDecimal(e, p.Revenue)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
