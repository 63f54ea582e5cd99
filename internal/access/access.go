package access

import (
	"github.com/google/uuid"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
)

// Actor is the authenticated identity performing a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// IsCourier reports whether the actor carries the courier role.
func (a Actor) IsCourier() bool {
	return a.Role == enums.UserRoleCourier
}

// RequireOwner allows only the resource owner.
func RequireOwner(actor Actor, ownerID uuid.UUID) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.UserID != ownerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "resource does not belong to user")
	}
	return nil
}

// RequireOwnerOrAdmin allows the resource owner or any admin.
func RequireOwnerOrAdmin(actor Actor, ownerID uuid.UUID) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.IsAdmin() || actor.UserID == ownerID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "resource does not belong to user")
}

// RequireAdmin allows only admins.
func RequireAdmin(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

// RequireFulfillmentStaff allows admins and couriers, the roles that move
// orders through delivery.
func RequireFulfillmentStaff(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.IsAdmin() || actor.IsCourier() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "fulfillment role required")
}
