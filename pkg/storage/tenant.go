package storage

import "context"

type tenantKey struct{}

// SetTenant returns a context scoped to the given tenant. Stores read it
// back to isolate rows per tenant.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant reports the tenant carried by ctx. An empty string means
// single-tenant mode.
func GetTenant(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey{}).(string)
	return id
}
