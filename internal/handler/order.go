package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// IdempotencyKeyHeader makes PlaceOrder retries safe.
const IdempotencyKeyHeader = "Idempotency-Key"

// PlaceOrder serves POST /api/customers/{customerID}/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if !canActFor(r.Context(), customerID) {
		httpmiddleware.WriteError(w, http.StatusForbidden, "cannot place orders for another customer")
		return
	}

	req := order.PlaceOrderRequest{
		CustomerID:     customerID,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shipping_address":
			s, err := d.Str()
			req.ShippingAddress = s
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				var l order.LineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "product_id":
						l.ProductID, err = d.Str()
					case "quantity":
						l.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	fe.str("shipping_address", addressRule, req.ShippingAddress)
	if len(req.Lines) > 0 {
		// An empty cart is reported by the engine.
		fe.length("lines", linesRule, len(req.Lines))
	}
	for i, l := range req.Lines {
		fe.integer("lines["+strconv.Itoa(i)+"].quantity", lineQuantityRule, l.Quantity)
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrder(&e, *o)
	writeJSON(w, http.StatusCreated, &e)
}

// GetOrder serves GET /api/orders/{orderID}. Customers only see their own
// orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canActFor(r.Context(), o.CustomerID) {
		writeError(w, r, order.ErrOrderNotFound)
		return
	}
	var e jx.Encoder
	encodeOrder(&e, *o)
	writeJSON(w, http.StatusOK, &e)
}

// ListOrders serves GET /api/orders?page=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	pageNum, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page := order.Page{Page: pageNum, Limit: limit}.Normalize()

	orders, err := h.orders.ListOrders(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	e.FieldStart("page")
	e.Int(page.Page)
	e.FieldStart("limit")
	e.Int(page.Limit)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// UpdateOrderStatus serves PATCH /api/orders/{orderID}/status. The status
// is given by name or by numeric code.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var raw *string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		if d.Next() == jx.Number {
			n, err := d.Int()
			v := strconv.Itoa(n)
			raw = &v
			return err
		}
		s, err := d.Str()
		raw = &s
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if raw == nil {
		writeError(w, r, fieldErrors{fieldRequired("status")}.err())
		return
	}
	status, err := order.ParseStatus(*raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrder(&e, *o)
	writeJSON(w, http.StatusOK, &e)
}

// DeleteOrder serves DELETE /api/orders/{orderID}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
