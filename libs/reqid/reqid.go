// Package reqid carries a request correlation id through a context so that HTTP access logs,
// gRPC interceptors and repository errors agree on one value.
package reqid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MaxLen bounds ids accepted from callers. Longer ids are replaced.
const MaxLen = 64

type ctxKey struct{}

// FromContext returns the id stored by With, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func With(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Accept returns the inbound id when it is safe to echo into headers and logs, and a fresh
// id otherwise.
func Accept(inbound string) string {
	inbound = strings.TrimSpace(inbound)
	if inbound == "" || len(inbound) > MaxLen || strings.IndexFunc(inbound, unsafeRune) >= 0 {
		return uuid.NewString()
	}
	return inbound
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-' || r == '_' || r == '.' || r == ':':
		return false
	}
	return true
}
