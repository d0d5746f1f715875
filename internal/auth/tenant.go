package auth

import "context"

// ResolveTenant decides which tenant a request may act on. Admins may
// name any tenant explicitly; everyone else is pinned to the tenant in
// their claims.
func ResolveTenant(ctx context.Context, requested string) (string, error) {
	own := TenantIDFromContext(ctx)
	if requested == "" || requested == own {
		if own == "" {
			return "", ErrUnauthorized
		}
		return own, nil
	}
	if RoleFromContext(ctx) == RoleAdmin {
		return requested, nil
	}
	return "", ErrTenantMismatch
}
