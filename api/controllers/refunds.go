package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/api/validators"
	"github.com/angelmondragon/storefront-orders/internal/refunds"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type createRefundRequest struct {
	BankName      string `json:"bank_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,min=4,max=34"`
	AccountHolder string `json:"account_holder" validate:"required,max=120"`
	Reason        string `json:"reason" validate:"max=500"`
}

type decideRefundRequest struct {
	Status string `json:"status" validate:"required,oneof=refunded rejected"`
	Note   string `json:"note" validate:"max=500"`
}

// CreateRefundRequest records where a customer wants a paid, cancelled order
// refunded to.
func CreateRefundRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
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

		var body createRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.CreateRefundRequest(r.Context(), refunds.CreateInput{
			OrderID:       orderID,
			BankName:      validators.SanitizeString(body.BankName, 120),
			AccountNumber: strings.TrimSpace(body.AccountNumber),
			AccountHolder: validators.SanitizeString(body.AccountHolder, 120),
			Reason:        validators.SanitizeString(body.Reason, 500),
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, refunds.NewRefundView(req))
	}
}

func DecideRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refundID, err := parseUUIDParam(r, "refundId", "refund id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body decideRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.DecideRefund(r.Context(), refunds.DecideInput{
			RefundID: refundID,
			Status:   enums.RefundStatus(body.Status),
			Note:     validators.SanitizeString(body.Note, 500),
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refunds.NewRefundView(req))
	}
}
