package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts serves GET /api/products. Query parameters: page, limit,
// search, category_id, min_price, max_price and sort (newest or oldest).
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := productPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	products, total, err := h.products.List(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, p := range products {
		encodeProduct(&e, p)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("page")
	e.Int(page.Page)
	e.FieldStart("limit")
	e.Int(page.Limit)
	e.FieldStart("total_pages")
	e.Int((total + page.Limit - 1) / page.Limit)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func productPage(r *http.Request) (product.Page, error) {
	q := r.URL.Query()
	page := product.Page{
		Search:     q.Get("search"),
		CategoryID: q.Get("category_id"),
	}
	var err error
	if page.Page, err = queryInt(r, "page"); err != nil {
		return page, err
	}
	if page.Limit, err = queryInt(r, "limit"); err != nil {
		return page, err
	}
	if page.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return page, err
	}
	if page.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return page, err
	}
	if page.Sort, err = product.ParseSort(q.Get("sort")); err != nil {
		return page, err
	}
	return page.Normalize(), nil
}

// GetProduct serves GET /api/products/{productID}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, http.StatusOK, &e)
}

// CreateProduct serves POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var (
		p        product.Product
		priceSet bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category_id":
			p.CategoryID, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
			priceSet = true
		case "stock":
			p.Stock, err = d.Int()
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
	fe.str("name", nameRule, p.Name)
	if !priceSet {
		fe = append(fe, fieldRequired("price"))
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	if err := h.products.Create(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, p)
	writeJSON(w, http.StatusCreated, &e)
}

// UpdateProduct serves PATCH /api/products/{productID}. It changes name,
// description and category; price and stock have their own endpoints.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var f product.Fields
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			f.Name, err = decodeOptStr(d)
		case "description":
			f.Description, err = decodeOptStr(d)
		case "category_id":
			f.CategoryID, err = decodeOptStr(d)
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
	fe.optStr("name", nameRule, f.Name)
	fe.optStr("description", addressRule, f.Description)
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "productID"), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, http.StatusOK, &e)
}

// UpdateProductPrice serves PATCH /api/products/{productID}/price.
func (h *Handler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	var (
		price    decimal.Decimal
		priceSet bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "price" {
			return d.Skip()
		}
		var err error
		price, err = decodeDecimal(d)
		priceSet = true
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !priceSet {
		writeError(w, r, fieldErrors{fieldRequired("price")}.err())
		return
	}
	p, err := h.products.UpdatePrice(r.Context(), chi.URLParam(r, "productID"), price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, http.StatusOK, &e)
}

// RestockProduct serves POST /api/products/{productID}/restock.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var qty int
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	var fe fieldErrors
	fe.integer("quantity", quantityRule, qty)
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "productID")
	stock, err := h.products.Restock(r.Context(), id, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(id)
	e.FieldStart("stock")
	e.Int(stock)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// DeleteProduct serves DELETE /api/products/{productID}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
