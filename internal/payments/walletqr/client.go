// Package walletqr is the payment adapter for the e-wallet gateway that
// renders a scannable QR code. Requests and notifications are signed with
// HMAC-SHA256 over a canonical key=value string.
package walletqr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/internal/payments"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

const (
	createPath        = "/v2/gateway/api/create"
	queryPath         = "/v2/gateway/api/query"
	requestType       = "captureWallet"
	responseReadLimit = 4096
)

// Gateway result codes.
const (
	resultSuccess        = 0
	resultInitiated      = 1000
	resultExpired        = 1005
	resultProcessing     = 7000
	resultProcessingAlt  = 7002
	resultAuthorized     = 9000
	resultUserCancelled  = 1006
	resultTransactionErr = 1001
)

var errMissingCredentials = errors.New("wallet gateway partner code, access key and secret key are required")

type Client struct {
	httpClient  *http.Client
	endpoint    string
	partnerCode string
	accessKey   string
	secretKey   string
	redirectURL string
	callbackURL string
	currency    string
	rate        decimal.Decimal
	lifetime    time.Duration
	now         func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured gateway endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.endpoint = strings.TrimRight(trimmed, "/")
		}
	}
}

func New(cfg config.WalletQRConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.PartnerCode) == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errMissingCredentials
	}
	rate := cfg.ExchangeRate
	if !rate.IsPositive() {
		return nil, fmt.Errorf("wallet gateway exchange rate must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "VND"
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		endpoint:    strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		partnerCode: strings.TrimSpace(cfg.PartnerCode),
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		redirectURL: cfg.RedirectURL,
		callbackURL: cfg.CallbackURL,
		currency:    currency,
		rate:        rate,
		lifetime:    cfg.SessionLifetime,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("wallet gateway endpoint is required")
	}
	if c.lifetime <= 0 {
		c.lifetime = 15 * time.Minute
	}
	return c, nil
}

func (c *Client) Channel() enums.PaymentMethod { return enums.PaymentMethodWalletQR }

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	Deeplink   string `json:"deeplink"`
	QRCodeURL  string `json:"qrCodeUrl"`
}

// CreateSession converts the order amount into the wallet currency, rounding
// up to a whole unit, and opens a capture request under a fresh reference.
func (c *Client) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	amount := money.ConvertUp(req.AmountCents, c.rate, 0)
	reference := fmt.Sprintf("%s-%s", req.OrderCode, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	body := createRequest{
		PartnerCode: c.partnerCode,
		RequestID:   uuid.NewString(),
		Amount:      amount.IntPart(),
		OrderID:     reference,
		OrderInfo:   "Payment for order " + req.OrderCode,
		RedirectURL: c.redirectURL,
		IpnURL:      c.callbackURL,
		RequestType: requestType,
		Lang:        "en",
	}
	body.Signature = sign(c.secretKey, canonical(
		"accessKey", c.accessKey,
		"amount", fmt.Sprint(body.Amount),
		"extraData", body.ExtraData,
		"ipnUrl", body.IpnURL,
		"orderId", body.OrderID,
		"orderInfo", body.OrderInfo,
		"partnerCode", body.PartnerCode,
		"redirectUrl", body.RedirectURL,
		"requestId", body.RequestID,
		"requestType", body.RequestType,
	))

	var resp createResponse
	if err := c.post(ctx, createPath, body, &resp); err != nil {
		return nil, err
	}
	if resp.ResultCode != resultSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet gateway rejected the payment request").
			WithDetails(map[string]any{"result_code": resp.ResultCode, "message": resp.Message})
	}

	return &payments.Session{
		Reference: reference,
		Presentation: types.Presentation{
			"qr_code_url": resp.QRCodeURL,
			"pay_url":     resp.PayURL,
			"deeplink":    resp.Deeplink,
		},
		ExpiresAt:        c.now().Add(c.lifetime),
		ProviderAmount:   amount,
		ProviderCurrency: c.currency,
		Rate:             c.rate,
	}, nil
}

type queryRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type queryResponse struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	TransID    int64  `json:"transId"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
}

func (c *Client) QueryStatus(ctx context.Context, session models.PaymentSession) (*payments.StatusResult, error) {
	body := queryRequest{
		PartnerCode: c.partnerCode,
		RequestID:   uuid.NewString(),
		OrderID:     session.Reference,
		Lang:        "en",
	}
	body.Signature = sign(c.secretKey, canonical(
		"accessKey", c.accessKey,
		"orderId", body.OrderID,
		"partnerCode", body.PartnerCode,
		"requestId", body.RequestID,
	))

	var resp queryResponse
	if err := c.post(ctx, queryPath, body, &resp); err != nil {
		return nil, err
	}
	result := statusFromResult(session, resp.ResultCode, resp.Amount)
	if result.State == enums.SessionStateConfirmed && resp.TransID != 0 {
		result.ProviderTxID = strconv.FormatInt(resp.TransID, 10)
	}
	return result, nil
}

func statusFromResult(session models.PaymentSession, code int, amount int64) *payments.StatusResult {
	switch code {
	case resultSuccess:
		cents := payments.CentsFromProvider(session, decimal.NewFromInt(amount))
		return &payments.StatusResult{State: enums.SessionStateConfirmed, ConfirmedAmountCents: &cents}
	case resultInitiated, resultProcessing, resultProcessingAlt, resultAuthorized:
		return &payments.StatusResult{State: enums.SessionStatePending}
	case resultExpired:
		return &payments.StatusResult{State: enums.SessionStateExpired}
	case resultUserCancelled:
		return &payments.StatusResult{State: enums.SessionStateFailed, Detail: "customer_declined"}
	default:
		return &payments.StatusResult{State: enums.SessionStateFailed, Detail: fmt.Sprintf("provider_result_%d", code)}
	}
}

type notification struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (n notification) canonical(accessKey string) string {
	return canonical(
		"accessKey", accessKey,
		"amount", fmt.Sprint(n.Amount),
		"extraData", n.ExtraData,
		"message", n.Message,
		"orderId", n.OrderID,
		"orderInfo", n.OrderInfo,
		"orderType", n.OrderType,
		"partnerCode", n.PartnerCode,
		"payType", n.PayType,
		"requestId", n.RequestID,
		"responseTime", fmt.Sprint(n.ResponseTime),
		"resultCode", fmt.Sprint(n.ResultCode),
		"transId", fmt.Sprint(n.TransID),
	)
}

// VerifyCallback checks the instant payment notification signature. The
// notification body only names the session; its status is re-queried.
func (c *Client) VerifyCallback(_ http.Header, body []byte) (*payments.Callback, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode wallet notification")
	}
	if n.PartnerCode != c.partnerCode {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "wallet notification for another partner")
	}
	expected := sign(c.secretKey, n.canonical(c.accessKey))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(n.Signature))) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid wallet notification signature")
	}
	if n.OrderID == "" {
		return nil, payments.ErrIgnoredCallback
	}
	return &payments.Callback{
		Reference:  n.OrderID,
		DeliveryID: fmt.Sprintf("%s:%d", n.RequestID, n.ResultCode),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal wallet request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build wallet request")
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute wallet request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "wallet request failed")
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit)).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode wallet response")
	}
	return nil
}

// canonical joins key/value pairs as k1=v1&k2=v2 in the given order.
func canonical(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pairs[i])
		b.WriteByte('=')
		b.WriteString(pairs[i+1])
	}
	return b.String()
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
