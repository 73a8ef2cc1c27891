package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
)

// RegisterCustomer serves POST /api/customers.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var reg customer.Registration
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			reg.Name, err = d.Str()
		case "email":
			reg.Email, err = d.Str()
		case "password":
			reg.Password, err = d.Str()
		case "address":
			reg.Address, err = d.Str()
		case "phone":
			reg.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	fe.str("name", nameRule, reg.Name)
	fe.str("email", emailRule, reg.Email)
	fe.str("password", passwordRule, reg.Password)
	fe.str("address", addressRule, reg.Address)
	fe.str("phone", phoneRule, reg.Phone)
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.customers.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCustomer(&e, *c)
	writeJSON(w, http.StatusCreated, &e)
}

// Login serves POST /api/customers/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, token, err := h.customers.Authenticate(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("token")
	e.Str(token)
	e.FieldStart("customer")
	encodeCustomer(&e, *c)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// ListCustomers serves GET /api/customers?page=&limit=.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
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

	customers, err := h.customers.List(r.Context(), page.Limit, page.Page*page.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, c := range customers {
		encodeCustomer(&e, c)
	}
	e.ArrEnd()
	e.FieldStart("page")
	e.Int(page.Page)
	e.FieldStart("limit")
	e.Int(page.Limit)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetCustomer serves GET /api/customers/{customerID}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCustomer(&e, *c)
	writeJSON(w, http.StatusOK, &e)
}

// UpdateCustomer serves PATCH /api/customers/{customerID}.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var u customer.Update
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			u.Name, err = decodeOptStr(d)
		case "email":
			u.Email, err = decodeOptStr(d)
		case "password":
			u.Password, err = decodeOptStr(d)
		case "address":
			u.Address, err = decodeOptStr(d)
		case "phone":
			u.Phone, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	fe.optStr("name", nameRule, u.Name)
	fe.optStr("email", emailRule, u.Email)
	fe.optStr("password", passwordRule, u.Password)
	fe.optStr("address", addressRule, u.Address)
	fe.optStr("phone", phoneRule, u.Phone)
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.customers.Update(r.Context(), chi.URLParam(r, "customerID"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCustomer(&e, *c)
	writeJSON(w, http.StatusOK, &e)
}

// DeleteCustomer serves DELETE /api/customers/{customerID}.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.customers.Delete(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
