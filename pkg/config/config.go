package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Orders       OrdersConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	WalletQR     WalletQRConfig
	Square       SquareConfig
	Chain        ChainConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations envconfig cannot express on its own.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Orders.CancelPolicy)) {
	case CancelPolicyLenient, CancelPolicyStrict:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOrdersCancelPolicy, CancelPolicyLenient, CancelPolicyStrict)
	}
	if c.Payments.Workers <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsWorkers)
	}
	if c.Payments.MaxBackoff < c.Payments.PollInterval {
		return fmt.Errorf("%s must be >= %s", EnvPaymentsMaxBackoff, EnvPaymentsPollInterval)
	}
	if c.App.IsProd() {
		missing := []string{}
		if c.WalletQR.Enabled() && c.WalletQR.SecretKey == "" {
			missing = append(missing, EnvWalletQRSecretKey)
		}
		if c.Square.Enabled() && c.Square.WebhookSignatureKey == "" {
			missing = append(missing, EnvSquareWebhookKey)
		}
		if c.Chain.Enabled() && c.Chain.WebhookSecret == "" {
			missing = append(missing, EnvChainWebhookSecret)
		}
		if len(missing) > 0 {
			return fmt.Errorf("production requires %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists storefront origins allowed to call the API.
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

// PubSubConfig names the topics order and after-sales events are published to.
type PubSubConfig struct {
	OrderTopic      string `envconfig:"STOREFRONT_PUBSUB_ORDER_TOPIC" default:"storefront-order-events"`
	AfterSalesTopic string `envconfig:"STOREFRONT_PUBSUB_AFTER_SALES_TOPIC" default:"storefront-after-sales-events"`
	OrderedDelivery bool   `envconfig:"STOREFRONT_PUBSUB_ORDERED_DELIVERY" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

type OrdersConfig struct {
	CancelPolicy string `envconfig:"STOREFRONT_ORDERS_CANCEL_POLICY" default:"lenient"`
	CodePrefix   string `envconfig:"STOREFRONT_ORDERS_CODE_PREFIX" default:"ORD"`
	Currency     string `envconfig:"STOREFRONT_ORDERS_CURRENCY" default:"USD"`
}

// StrictCancellation reports whether only Placed orders may be cancelled.
func (o OrdersConfig) StrictCancellation() bool {
	return strings.EqualFold(strings.TrimSpace(o.CancelPolicy), CancelPolicyStrict)
}

// CronConfig drives the maintenance job cadence. The lock TTL bounds how long
// a crashed instance can block the next cycle.
type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
}

type PaymentsConfig struct {
	SweepInterval time.Duration `envconfig:"STOREFRONT_PAYMENTS_SWEEP_INTERVAL" default:"5s"`
	Workers       int           `envconfig:"STOREFRONT_PAYMENTS_WORKERS" default:"4"`
	BatchSize     int           `envconfig:"STOREFRONT_PAYMENTS_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `envconfig:"STOREFRONT_PAYMENTS_POLL_INTERVAL" default:"10s"`
	MaxBackoff    time.Duration `envconfig:"STOREFRONT_PAYMENTS_MAX_BACKOFF" default:"5m"`
	ClaimTTL      time.Duration `envconfig:"STOREFRONT_PAYMENTS_CLAIM_TTL" default:"1m"`
	WebhookTTL    time.Duration `envconfig:"STOREFRONT_PAYMENTS_WEBHOOK_TTL" default:"720h"`
}

type WalletQRConfig struct {
	Endpoint        string          `envconfig:"STOREFRONT_WALLETQR_ENDPOINT"`
	PartnerCode     string          `envconfig:"STOREFRONT_WALLETQR_PARTNER_CODE"`
	AccessKey       string          `envconfig:"STOREFRONT_WALLETQR_ACCESS_KEY"`
	SecretKey       string          `envconfig:"STOREFRONT_WALLETQR_SECRET_KEY"`
	RedirectURL     string          `envconfig:"STOREFRONT_WALLETQR_REDIRECT_URL"`
	CallbackURL     string          `envconfig:"STOREFRONT_WALLETQR_CALLBACK_URL"`
	Currency        string          `envconfig:"STOREFRONT_WALLETQR_CURRENCY" default:"VND"`
	ExchangeRate    decimal.Decimal `envconfig:"STOREFRONT_WALLETQR_EXCHANGE_RATE" default:"25000"`
	SessionLifetime time.Duration   `envconfig:"STOREFRONT_WALLETQR_SESSION_LIFETIME" default:"15m"`
}

func (w WalletQRConfig) Enabled() bool {
	return strings.TrimSpace(w.Endpoint) != "" && strings.TrimSpace(w.PartnerCode) != ""
}

type SquareConfig struct {
	AccessToken         string        `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env                 string        `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID          string        `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	WebhookSignatureKey string        `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string        `envconfig:"STOREFRONT_SQUARE_WEBHOOK_URL"`
	RedirectURL         string        `envconfig:"STOREFRONT_SQUARE_REDIRECT_URL"`
	SessionLifetime     time.Duration `envconfig:"STOREFRONT_SQUARE_SESSION_LIFETIME" default:"30m"`
}

func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type ChainConfig struct {
	ExplorerURL      string          `envconfig:"STOREFRONT_CHAIN_EXPLORER_URL"`
	ExplorerAPIKey   string          `envconfig:"STOREFRONT_CHAIN_EXPLORER_API_KEY"`
	RateURL          string          `envconfig:"STOREFRONT_CHAIN_RATE_URL"`
	TokenSymbol      string          `envconfig:"STOREFRONT_CHAIN_TOKEN_SYMBOL" default:"USDT"`
	TokenContract    string          `envconfig:"STOREFRONT_CHAIN_TOKEN_CONTRACT"`
	TokenDecimals    int32           `envconfig:"STOREFRONT_CHAIN_TOKEN_DECIMALS" default:"6"`
	ReceivingAddress string          `envconfig:"STOREFRONT_CHAIN_RECEIVING_ADDRESS"`
	Confirmations    int             `envconfig:"STOREFRONT_CHAIN_CONFIRMATIONS" default:"12"`
	FallbackRate     decimal.Decimal `envconfig:"STOREFRONT_CHAIN_FALLBACK_RATE" default:"0"`
	WebhookSecret    string          `envconfig:"STOREFRONT_CHAIN_WEBHOOK_SECRET"`
	SessionLifetime  time.Duration   `envconfig:"STOREFRONT_CHAIN_SESSION_LIFETIME" default:"2h"`
}

func (c ChainConfig) Enabled() bool {
	return strings.TrimSpace(c.ExplorerURL) != "" && strings.TrimSpace(c.ReceivingAddress) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
