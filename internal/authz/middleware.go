package authz

import "net/http"

// RequireCapability returns a middleware that rejects requests lacking the capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasCapability(r, capability) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapabilityHandler applies the capability middleware inline when registering routes.
func RequireCapabilityHandler(capability string, next http.Handler) http.Handler {
	return RequireCapability(capability)(next)
}
