package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/api/validators"
	"github.com/angelmondragon/storefront-orders/internal/returns"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type returnItemRequest struct {
	LineItemID string `json:"line_item_id" validate:"required,uuid"`
	Qty        int    `json:"qty" validate:"required,gt=0"`
}

type createReturnRequest struct {
	Type   string              `json:"type" validate:"required,oneof=return exchange"`
	Reason string              `json:"reason" validate:"required,max=500"`
	Items  []returnItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type advanceReturnRequest struct {
	Status string `json:"status" validate:"required,oneof=approved processing completed rejected"`
	Note   string `json:"note" validate:"max=500"`
}

// CreateReturnRequest opens a return or exchange against a delivered order.
func CreateReturnRequest(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createReturnRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]returns.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			lineItemID, err := uuid.Parse(item.LineItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line item id"))
				return
			}
			items = append(items, returns.ItemInput{LineItemID: lineItemID, Qty: item.Qty})
		}

		req, err := svc.CreateReturnRequest(r.Context(), returns.CreateInput{
			OrderID: orderID,
			Type:    enums.ReturnType(body.Type),
			Reason:  validators.SanitizeString(body.Reason, 500),
			Items:   items,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, returns.NewReturnView(req))
	}
}

func AdvanceReturnRequest(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnID, err := parseUUIDParam(r, "returnId", "return id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body advanceReturnRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.AdvanceReturnRequest(r.Context(), returns.AdvanceInput{
			ReturnID: returnID,
			Target:   enums.ReturnStatus(body.Status),
			Note:     validators.SanitizeString(body.Note, 500),
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.NewReturnView(req))
	}
}
