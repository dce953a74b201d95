package httpx

import (
	"net/http"

	"github.com/canteenworks/canteen-orders/internal/auth"
)

// Identity middleware trusts the headers stamped by the upstream
// auth gateway; requests without them are unauthenticated.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := auth.Identity{
			UserID: r.Header.Get("X-User-Id"),
			Name:   r.Header.Get("X-User-Name"),
			Email:  r.Header.Get("X-User-Email"),
			Phone:  r.Header.Get("X-User-Phone"),
			Role:   auth.Role(r.Header.Get("X-User-Role")),
		}
		if ident.UserID == "" || ident.Role == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), ident)))
	})
}

// RequireRole gates a route to the given roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := map[auth.Role]bool{}
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[ident.Role] {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
