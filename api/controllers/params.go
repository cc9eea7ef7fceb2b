package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

func parseUUIDParam(r *http.Request, name, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// actorFromRequest maps the authenticated principal to the actor the order
// services check ownership against.
func actorFromRequest(r *http.Request) (orders.Actor, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || principal.UserID == uuid.Nil {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !principal.Role.IsValid() {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	userID := principal.UserID
	return orders.Actor{Kind: principal.Role, UserID: &userID}, nil
}
