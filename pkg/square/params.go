package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
)

// PaymentLinkParams describes a quick-pay checkout for one storefront order.
type PaymentLinkParams struct {
	Name           string
	ReferenceID    string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

func (p PaymentLinkParams) toSquareRequest(idempotencyKey, locationID, redirectURL string) *checkout.CreatePaymentLinkRequest {
	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       p.Name,
			PriceMoney: moneyPtr(p.AmountCents, p.Currency),
			LocationID: locationID,
		},
		PaymentNote: ptrString(p.ReferenceID),
	}
	if trimmed := strings.TrimSpace(redirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(trimmed)}
	}
	return req
}

// PaymentLink is the hosted checkout Square created for a session.
type PaymentLink struct {
	ID      string
	OrderID string
	URL     string
}

// OrderPayment summarizes the payment progress of a Square order.
type OrderPayment struct {
	OrderID   string
	State     string
	PaidCents int64
	DueCents  int64
	Currency  string
}

// Paid reports whether Square has collected the full order amount.
func (p OrderPayment) Paid() bool {
	if p.State == "COMPLETED" {
		return true
	}
	return p.PaidCents > 0 && p.DueCents == 0
}

func (p OrderPayment) Canceled() bool {
	return p.State == "CANCELED"
}

func orderPaymentFromSquare(order *sq.Order) OrderPayment {
	out := OrderPayment{OrderID: stringValue(order.ID)}
	if order.State != nil {
		out.State = string(*order.State)
	}
	for _, tender := range order.Tenders {
		if tender == nil || tender.AmountMoney == nil || tender.AmountMoney.Amount == nil {
			continue
		}
		out.PaidCents += *tender.AmountMoney.Amount
		if tender.AmountMoney.Currency != nil {
			out.Currency = string(*tender.AmountMoney.Currency)
		}
	}
	if due := order.NetAmountDueMoney; due != nil && due.Amount != nil {
		out.DueCents = *due.Amount
	} else if total := order.TotalMoney; total != nil && total.Amount != nil {
		out.DueCents = *total.Amount - out.PaidCents
	}
	return out
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
