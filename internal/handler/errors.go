package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/boutique-pos/internal/domain/cart"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
	"github.com/xenking/boutique-pos/internal/domain/supplier"
	"github.com/xenking/boutique-pos/internal/register"
)

var unprocessable = []error{
	cart.ErrInvalidQuantity,
	cart.ErrInvalidDiscount,
	cart.ErrInvalidPrice,
	cart.ErrInvalidProduct,
	cart.ErrEmptyCart,
	register.ErrProductInactive,
	sale.ErrEmptySale,
	sale.ErrInvalidPayment,
	sale.ErrCustomerRequired,
	sale.ErrInvalidDateFilter,
	sale.ErrInvalidSaleItem,
	sale.ErrTotalsMismatch,
}

var notFound = []error{
	register.ErrNotFound,
	product.ErrNotFound,
	supplier.ErrNotFound,
	sale.ErrNotFound,
}

var conflict = []error{
	register.ErrSubmitting,
	product.ErrDuplicateBarcode,
	sale.ErrAlreadyCancelled,
}

// errorStatus maps err to an HTTP status and a client-facing message.
func errorStatus(err error) (int, string) {
	var (
		reqErr   *requestError
		valErrs  validator.ValidationErrors
		stockErr *sale.InsufficientStockError
		subErr   *cart.SubmissionError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error()
	case errors.As(err, &valErrs):
		return http.StatusBadRequest, validationMessage(valErrs)
	case errors.As(err, &stockErr):
		return http.StatusConflict, stockErr.Error()
	}
	// Recorder validation errors come back wrapped in a SubmissionError but
	// still describe bad input, so they are checked first.
	for _, target := range unprocessable {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, target.Error()
		}
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound, target.Error()
		}
	}
	for _, target := range conflict {
		if errors.Is(err, target) {
			return http.StatusConflict, target.Error()
		}
	}
	if errors.As(err, &subErr) {
		return http.StatusBadGateway, "sale could not be recorded, cart kept"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes the error response for err, logging server-side failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request error", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	fe := errs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	if fe.Param() != "" {
		return field + " failed " + fe.Tag() + "=" + fe.Param()
	}
	return field + " failed " + fe.Tag()
}
