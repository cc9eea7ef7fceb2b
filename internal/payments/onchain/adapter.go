// Package onchain collects payment as an ERC-20 token transfer to a fixed
// receiving address. Each session asks for a slightly different token amount
// so concurrent sessions can be told apart by value alone.
package onchain

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
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
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/money"
	"github.com/angelmondragon/storefront-orders/pkg/types"
)

// SignatureHeader carries the hex HMAC-SHA256 of the relay notification body.
const SignatureHeader = "X-Chain-Signature"

const (
	referencePrefix   = "oc_"
	maxTailUnits      = 999
	responseReadLimit = 1 << 20
)

// TransferClaims tells whether a transfer already settled another session.
type TransferClaims interface {
	ProviderTxTaken(ctx context.Context, channel enums.PaymentMethod, txID string, exceptID uuid.UUID) (bool, error)
}

type Adapter struct {
	httpClient    *http.Client
	explorerURL   string
	apiKey        string
	rateURL       string
	symbol        string
	contract      string
	decimals      int32
	address       string
	confirmations int
	fallbackPrice decimal.Decimal
	secret        string
	lifetime      time.Duration
	claims        TransferClaims
	logg          *logger.Logger
	now           func() time.Time
	tail          func() int64
}

type Option func(*Adapter)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func WithExplorerURL(u string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(u) != "" {
			a.explorerURL = strings.TrimSpace(u)
		}
	}
}

func WithRateURL(u string) Option {
	return func(a *Adapter) { a.rateURL = strings.TrimSpace(u) }
}

// WithTransferClaims lets QueryStatus skip transfers that already settled
// another session with the same amount.
func WithTransferClaims(claims TransferClaims) Option {
	return func(a *Adapter) { a.claims = claims }
}

func New(cfg config.ChainConfig, logg *logger.Logger, opts ...Option) (*Adapter, error) {
	address, err := ChecksumAddress(cfg.ReceivingAddress)
	if err != nil {
		return nil, fmt.Errorf("receiving address: %w", err)
	}
	contract := strings.TrimSpace(cfg.TokenContract)
	if contract != "" {
		if contract, err = ChecksumAddress(contract); err != nil {
			return nil, fmt.Errorf("token contract: %w", err)
		}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	a := &Adapter{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		explorerURL:   strings.TrimSpace(cfg.ExplorerURL),
		apiKey:        cfg.ExplorerAPIKey,
		rateURL:       strings.TrimSpace(cfg.RateURL),
		symbol:        strings.ToUpper(strings.TrimSpace(cfg.TokenSymbol)),
		contract:      contract,
		decimals:      cfg.TokenDecimals,
		address:       address,
		confirmations: cfg.Confirmations,
		fallbackPrice: cfg.FallbackRate,
		secret:        cfg.WebhookSecret,
		lifetime:      cfg.SessionLifetime,
		logg:          logg,
		now:           func() time.Time { return time.Now().UTC() },
		tail:          func() int64 { return rand.Int64N(maxTailUnits) + 1 },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.explorerURL == "" {
		return nil, errors.New("chain explorer url is required")
	}
	if a.symbol == "" {
		a.symbol = "USDT"
	}
	if a.decimals <= 0 {
		a.decimals = 6
	}
	if a.confirmations <= 0 {
		a.confirmations = 1
	}
	if a.lifetime <= 0 {
		a.lifetime = 2 * time.Hour
	}
	return a, nil
}

func (a *Adapter) Channel() enums.PaymentMethod { return enums.PaymentMethodOnChain }

// CreateSession prices the order in tokens at the current market price and
// pins that rate on the session.
func (a *Adapter) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	price, err := a.tokenPrice(ctx)
	if err != nil {
		return nil, err
	}
	rate := decimal.NewFromInt(1).DivRound(price, 18)
	amount := money.ConvertUp(req.AmountCents, rate, a.decimals).Add(decimal.New(a.tail(), -a.decimals))

	reference := referencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	presentation := types.Presentation{
		"address": a.address,
		"amount":  amount.StringFixed(a.decimals),
		"token":   a.symbol,
	}
	if a.contract != "" {
		presentation["contract"] = a.contract
		presentation["payment_uri"] = fmt.Sprintf("ethereum:%s/transfer?address=%s&uint256=%s",
			a.contract, a.address, baseUnits(amount, a.decimals))
	}

	return &payments.Session{
		Reference:        reference,
		Presentation:     presentation,
		ExpiresAt:        a.now().Add(a.lifetime),
		ProviderAmount:   amount,
		ProviderCurrency: a.symbol,
		Rate:             rate,
	}, nil
}

// tokenPrice returns the token price in the order currency, falling back to
// the configured price when the rate source is unavailable.
func (a *Adapter) tokenPrice(ctx context.Context) (decimal.Decimal, error) {
	if a.rateURL != "" {
		price, err := a.fetchPrice(ctx)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		a.logg.Warn(a.logg.WithField(ctx, "error", fmt.Sprint(err)), "token price lookup failed, using fallback price")
	}
	if a.fallbackPrice.IsPositive() {
		return a.fallbackPrice, nil
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "token price unavailable")
}

func (a *Adapter) fetchPrice(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := a.getJSON(ctx, a.rateURL, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Price, nil
}

type tokenTransfer struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	Confirmations   string `json:"confirmations"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// QueryStatus looks for a transfer of exactly the session amount to the
// receiving address made after the session opened and not yet credited to
// another session.
func (a *Adapter) QueryStatus(ctx context.Context, session models.PaymentSession) (*payments.StatusResult, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", a.address)
	if a.contract != "" {
		q.Set("contractaddress", a.contract)
	}
	q.Set("sort", "desc")
	q.Set("page", "1")
	q.Set("offset", "100")
	if a.apiKey != "" {
		q.Set("apikey", a.apiKey)
	}

	var resp explorerResponse
	if err := a.getJSON(ctx, a.explorerURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		if strings.Contains(strings.ToLower(resp.Message), "no transactions") {
			return &payments.StatusResult{State: enums.SessionStatePending}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "explorer query failed").
			WithDetails(map[string]any{"message": resp.Message})
	}

	var transfers []tokenTransfer
	if err := json.Unmarshal(resp.Result, &transfers); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode explorer transfers")
	}

	want := baseUnits(session.ProviderAmount, a.decimals)
	opened := session.CreatedAt.Unix()
	for _, tr := range transfers {
		if !strings.EqualFold(tr.To, a.address) || tr.Value != want {
			continue
		}
		if a.contract != "" && !strings.EqualFold(tr.ContractAddress, a.contract) {
			continue
		}
		if ts, err := strconv.ParseInt(tr.TimeStamp, 10, 64); err != nil || ts < opened {
			continue
		}
		if a.claims != nil && tr.Hash != "" {
			taken, err := a.claims.ProviderTxTaken(ctx, enums.PaymentMethodOnChain, tr.Hash, session.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check transfer claims")
			}
			if taken {
				continue
			}
		}
		confs, _ := strconv.Atoi(tr.Confirmations)
		if confs < a.confirmations {
			return &payments.StatusResult{
				State:  enums.SessionStatePending,
				Detail: fmt.Sprintf("awaiting confirmations %d/%d", confs, a.confirmations),
			}, nil
		}
		cents := payments.CentsFromProvider(session, session.ProviderAmount)
		return &payments.StatusResult{
			State:                enums.SessionStateConfirmed,
			ConfirmedAmountCents: &cents,
			ProviderTxID:         tr.Hash,
			Detail:               tr.Hash,
		}, nil
	}
	return &payments.StatusResult{State: enums.SessionStatePending}, nil
}

type relayNotification struct {
	Reference string `json:"reference"`
	TxHash    string `json:"tx_hash"`
}

// VerifyCallback accepts notifications from the explorer relay that watches
// the receiving address. The transfer itself is re-checked on the explorer.
func (a *Adapter) VerifyCallback(header http.Header, body []byte) (*payments.Callback, error) {
	if a.secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "chain notifications are not configured")
	}
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := strings.ToLower(strings.TrimSpace(header.Get(SignatureHeader)))
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid chain notification signature")
	}

	var n relayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode chain notification")
	}
	if !strings.HasPrefix(n.Reference, referencePrefix) {
		return nil, payments.ErrIgnoredCallback
	}
	return &payments.Callback{Reference: n.Reference, DeliveryID: n.TxHash + ":" + n.Reference}, nil
}

func (a *Adapter) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build chain request")
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute chain request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "chain request failed")
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit)).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode chain response")
	}
	return nil
}

// baseUnits renders amount as an integer count of the token's smallest unit.
func baseUnits(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Truncate(0).String()
}
