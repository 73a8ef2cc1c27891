package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// writeError maps domain errors to HTTP responses. Unexpected errors are
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *validate.Error
		iqe  *order.InvalidQuantityError
		cnf  *order.CustomerNotFoundError
		pnf  *order.ProductNotFoundError
		ise  *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &ise):
		writeStockError(w, ise)
		return
	case errors.As(err, &verr),
		errors.As(err, &iqe),
		errors.Is(err, errBadRequest),
		errors.Is(err, order.ErrEmptyLines),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, product.ErrInvalid),
		errors.Is(err, category.ErrInvalid):
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cnf), errors.As(err, &pnf),
		errors.Is(err, product.ErrUnknownCategory):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, category.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrRequestInFlight),
		errors.Is(err, customer.ErrEmailTaken),
		errors.Is(err, product.ErrAlreadyExists),
		errors.Is(err, category.ErrAlreadyExists),
		errors.Is(err, category.ErrInUse):
		httpmiddleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, customer.ErrInvalidCredentials):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, order.ErrPersistenceFailed):
		zctx.From(r.Context()).Error("Order persistence failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusServiceUnavailable, "order could not be stored, please retry")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeStockError reports which product ran short and by how much.
func writeStockError(w http.ResponseWriter, ise *order.InsufficientStockError) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusUnprocessableEntity)
	e.FieldStart("message")
	e.Str(ise.Error())
	e.FieldStart("product_id")
	e.Str(ise.ProductID)
	e.FieldStart("available")
	e.Int(ise.Available)
	e.FieldStart("requested")
	e.Int(ise.Requested)
	e.ObjEnd()
	writeJSON(w, http.StatusUnprocessableEntity, &e)
}
