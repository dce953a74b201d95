package orders

import (
	"context"

	"github.com/canteenworks/canteen-orders/internal/auth"
)

// ScopeFor canonicalizes an authenticated identity into an order
// filter before any query logic runs: users see their own orders,
// owners see their canteen's. Unknown roles get nothing.
func ScopeFor(ctx context.Context, st Store, ident auth.Identity) (OrderQuery, error) {
	switch ident.Role {
	case auth.RoleUser:
		return OrderQuery{UserID: ident.UserID}, nil
	case auth.RoleCanteenOwner:
		canteenID, err := st.CanteenIDByOwner(ctx, ident.UserID)
		if err != nil {
			return OrderQuery{}, err
		}
		return OrderQuery{CanteenID: canteenID}, nil
	}
	return OrderQuery{}, ErrForbidden("role %s cannot access orders", ident.Role)
}
