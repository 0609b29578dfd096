package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RequireIdentity returns the caller identity or writes a 401 problem.
func RequireIdentity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrTenantRequired.Error())
		return shared.Identity{}, false
	}
	return id, true
}
