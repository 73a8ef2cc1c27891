package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// APIKeyHeader carries admin API keys.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// authenticate resolves the caller from an API key or a bearer token.
func (h *Handler) authenticate(r *http.Request) (Principal, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return h.authenticateAPIKey(r.Context(), key)
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return Principal{}, errUnauthorized
	}
	claims, err := h.tokens.Verify(token)
	if err != nil {
		return Principal{}, errUnauthorized
	}
	return Principal{
		Subject: claims.Subject,
		Admin:   claims.Role == int(customer.RoleAdmin),
	}, nil
}

// authenticateAPIKey looks the key up by its HMAC-SHA256 hash and compares
// the stored hash in constant time.
func (h *Handler) authenticateAPIKey(ctx context.Context, key string) (Principal, error) {
	sum := auth.HashAPIKey(h.pepper, key)
	info, err := h.apikeys.FindByHash(ctx, sum)
	if err != nil {
		return Principal{}, errUnauthorized
	}

	want, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return Principal{}, errUnauthorized
	}
	got, _ := hex.DecodeString(sum)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return Principal{}, errUnauthorized
	}
	return Principal{
		Subject: "apikey:" + info.ID,
		Admin:   info.HasScope(auth.ScopeAdmin),
	}, nil
}

// RequireCustomer admits any authenticated caller.
func (h *Handler) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticate(r)
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// RequireAdmin admits admin API keys and admin bearer tokens.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticate(r)
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !p.Admin {
			httpmiddleware.WriteError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// canActFor reports whether the caller may act on behalf of customerID.
func canActFor(ctx context.Context, customerID string) bool {
	p, ok := PrincipalFromContext(ctx)
	return ok && (p.Admin || p.Subject == customerID)
}

// principalKey keys rate limits by caller, falling back to client IP.
func principalKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.Subject
	}
	return httpmiddleware.ClientIP(r)
}
