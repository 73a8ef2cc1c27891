package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/category"
)

// ListCategories serves GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, c := range categories {
		encodeCategory(&e, c)
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetCategory serves GET /api/categories/{categoryID}.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.categories.Get(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCategory(&e, *c)
	writeJSON(w, http.StatusOK, &e)
}

// CreateCategory serves POST /api/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c category.Category
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.categories.Create(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCategory(&e, c)
	writeJSON(w, http.StatusCreated, &e)
}

// UpdateCategory serves PATCH /api/categories/{categoryID}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var f category.Fields
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			f.Name, err = decodeOptStr(d)
		case "description":
			f.Description, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.categories.Update(r.Context(), chi.URLParam(r, "categoryID"), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCategory(&e, *c)
	writeJSON(w, http.StatusOK, &e)
}

// DeleteCategory serves DELETE /api/categories/{categoryID}. Categories
// still referenced by products are kept.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
