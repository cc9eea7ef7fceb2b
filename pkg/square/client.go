// Package square wraps the Square SDK calls behind the redirect-gateway
// payment channel: hosted payment links, order status and webhook signatures.
package square

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type Client struct {
	sdk          *sqclient.Client
	locationID   string
	signatureKey string
	webhookURL   string
	redirectURL  string
	logg         *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	locationID := strings.TrimSpace(cfg.LocationID)
	if accessToken == "" || locationID == "" {
		return nil, errors.New("square access token and location id are required")
	}

	c := &Client{
		sdk:          sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(accessToken)),
		locationID:   locationID,
		signatureKey: strings.TrimSpace(cfg.WebhookSignatureKey),
		webhookURL:   strings.TrimSpace(cfg.WebhookURL),
		redirectURL:  strings.TrimSpace(cfg.RedirectURL),
		logg:         logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"environment": env, "location_id": locationID}), "square client initialized")
	return c, nil
}

// CreatePaymentLink opens a hosted quick-pay checkout for one session. The
// idempotency key defaults to one derived from the session reference, so a
// retried create returns the link Square already made.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	req := params.toSquareRequest(linkIdempotencyKey(params), c.locationID, c.redirectURL)

	var out *PaymentLink
	err := c.call(ctx, "create_payment_link", map[string]any{"reference_id": params.ReferenceID, "amount_cents": params.AmountCents}, func() error {
		resp, err := c.sdk.Checkout.PaymentLinks.Create(ctx, req)
		if err != nil {
			return err
		}
		link := resp.GetPaymentLink()
		if link == nil {
			return pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment link")
		}
		out = &PaymentLink{ID: stringValue(link.GetID()), OrderID: stringValue(link.GetOrderID()), URL: stringValue(link.GetURL())}
		return nil
	})
	return out, err
}

// GetOrderPayment reports how much of the Square order behind a link is paid.
func (c *Client) GetOrderPayment(ctx context.Context, orderID string) (*OrderPayment, error) {
	var out OrderPayment
	err := c.call(ctx, "get_order", map[string]any{"square_order_id": orderID}, func() error {
		resp, err := c.sdk.Orders.Get(ctx, &sq.GetOrdersRequest{OrderID: orderID})
		if err != nil {
			return err
		}
		order := resp.GetOrder()
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "square order not found")
		}
		out = orderPaymentFromSquare(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks a webhook delivery against the configured key and
// notification URL.
func (c *Client) VerifySignature(body []byte, header string) bool {
	if c == nil {
		return false
	}
	return VerifySignature(c.signatureKey, c.webhookURL, body, header)
}

// call runs one SDK request, maps its error into the service's error codes
// and logs the outcome with its latency.
func (c *Client) call(ctx context.Context, op string, fields map[string]any, fn func() error) error {
	start := time.Now()
	err := mapError(fn(), op)

	fields["operation"] = op
	fields["elapsed_ms"] = time.Since(start).Milliseconds()
	logCtx := c.logg.WithFields(ctx, fields)
	if err != nil {
		c.logg.Error(logCtx, "square call failed", err)
		return err
	}
	c.logg.Debug(logCtx, "square call succeeded")
	return nil
}

func linkIdempotencyKey(params PaymentLinkParams) string {
	if key := strings.TrimSpace(params.IdempotencyKey); key != "" {
		return key
	}
	if ref := strings.TrimSpace(params.ReferenceID); ref != "" {
		return "sf-link-" + ref
	}
	return "sf-link-" + uuid.NewString()
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
