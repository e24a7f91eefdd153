package middleware

import (
	"context"
	"net/http"

	"vaultx/internal/infra/geoip"
)

type countryKey struct{}

// Country stores the client's ISO country code in the request context. A nil
// resolver disables the lookup.
func Country(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code, err := resolver.CountryCode(clientIP(r))
			if err != nil || code == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), countryKey{}, code)))
		})
	}
}

func CountryFromContext(ctx context.Context) string {
	code, _ := ctx.Value(countryKey{}).(string)
	return code
}
