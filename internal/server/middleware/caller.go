package middleware

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CallerHeader carries the principal address a request acts as. The ledger
// trusts the gateway in front of this service to have authenticated it.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

// Caller returns middleware that validates the caller header when present
// and stores the parsed address on the request context. Requests carrying a
// malformed address are rejected before reaching any handler.
func Caller() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(CallerHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(raw) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"malformed caller address"}`))
				return
			}
			ctx := context.WithValue(r.Context(), callerKey{}, common.HexToAddress(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom returns the caller address stored by the Caller middleware.
// ok is false when the request carried no caller header.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}
