//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products?limit=100")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	page := decodeJSON[productPage](t, resp)
	if page.Total < seedProducts {
		t.Fatalf("expected at least %d products, got %d", seedProducts, page.Total)
	}
	if page.Limit != 100 {
		t.Errorf("limit: got %d, want 100", page.Limit)
	}
}

func TestListProducts_Search(t *testing.T) {
	resp := doGet(t, "/api/products?search=waffle")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	page := decodeJSON[productPage](t, resp)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected exactly one waffle, got %d", page.Total)
	}
	if page.Items[0].ID != "1" {
		t.Errorf("id: got %q, want %q", page.Items[0].ID, "1")
	}
}

func TestListProducts_InvalidPage(t *testing.T) {
	resp := doGet(t, "/api/products?page=abc")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestGetProduct(t *testing.T) {
	resp := doGet(t, "/api/products/1")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	p := decodeJSON[productResponse](t, resp)
	if p.Name != "Waffle with Berries" {
		t.Errorf("name: got %q, want %q", p.Name, "Waffle with Berries")
	}
	if p.Price != 6.5 {
		t.Errorf("price: got %v, want 6.5", p.Price)
	}
	if p.CategoryID != "waffle" {
		t.Errorf("category: got %q, want %q", p.CategoryID, "waffle")
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/999")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", body.Code)
	}
}

func TestCreateProduct_RequiresAdmin(t *testing.T) {
	body := map[string]any{"id": "x", "name": "X", "price": "1.00", "stock": 1}

	resp := doPost(t, "/api/products", body)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	who := newCustomer(t)
	resp = doPost(t, "/api/products", body, withToken(who.Token))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusForbidden)

	resp = doPost(t, "/api/products", body, withAPIKey("wrong-key"))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestProductAdministration(t *testing.T) {
	p := newProduct(t, "10.00", 2)

	resp := do(t, http.MethodPatch, "/api/products/"+p.ID+"/price", map[string]any{"price": "12.75"}, withAPIKey(adminAPIKey))
	expectStatus(t, resp, http.StatusOK)
	updated := decodeJSON[productResponse](t, resp)
	resp.Body.Close()
	if updated.Price != 12.75 {
		t.Errorf("price: got %v, want 12.75", updated.Price)
	}

	resp = doPost(t, "/api/products/"+p.ID+"/restock", map[string]any{"quantity": 3}, withAPIKey(adminAPIKey))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = doGet(t, "/api/products/"+p.ID)
	got := decodeJSON[productResponse](t, resp)
	resp.Body.Close()
	if got.Stock != 5 {
		t.Errorf("stock: got %d, want 5", got.Stock)
	}

	resp = do(t, http.MethodDelete, "/api/products/"+p.ID, nil, withAPIKey(adminAPIKey))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusNoContent)

	resp = doGet(t, "/api/products/"+p.ID)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}
