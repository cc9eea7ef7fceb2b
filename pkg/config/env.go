package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	CancelPolicyLenient = "lenient"
	CancelPolicyStrict  = "strict"
)

const (
	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvLogLevel           = "STOREFRONT_LOG_LEVEL"
	EnvServiceKind        = "STOREFRONT_SERVICE_KIND"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvDBDriver           = "STOREFRONT_DB_DRIVER"
	EnvDBHost             = "STOREFRONT_DB_HOST"
	EnvDBPort             = "STOREFRONT_DB_PORT"
	EnvDBUser             = "STOREFRONT_DB_USER"
	EnvDBPassword         = "STOREFRONT_DB_PASSWORD"
	EnvDBName             = "STOREFRONT_DB_NAME"
	EnvDBSSLMode          = "STOREFRONT_DB_SSLMODE"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer          = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins         = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite          = "STOREFRONT_USE_SQLITE"
	EnvAutoMigrate        = "STOREFRONT_AUTO_MIGRATE"
	EnvGCPProjectID       = "STOREFRONT_GCP_PROJECT_ID"
	EnvOrderTopic         = "STOREFRONT_PUBSUB_ORDER_TOPIC"
	EnvAfterSalesTopic    = "STOREFRONT_PUBSUB_AFTER_SALES_TOPIC"
	EnvOrdersCancelPolicy = "STOREFRONT_ORDERS_CANCEL_POLICY"
	EnvOrdersCodePrefix   = "STOREFRONT_ORDERS_CODE_PREFIX"

	EnvPaymentsWorkers      = "STOREFRONT_PAYMENTS_WORKERS"
	EnvPaymentsPollInterval = "STOREFRONT_PAYMENTS_POLL_INTERVAL"
	EnvPaymentsMaxBackoff   = "STOREFRONT_PAYMENTS_MAX_BACKOFF"

	EnvWalletQREndpoint    = "STOREFRONT_WALLETQR_ENDPOINT"
	EnvWalletQRPartnerCode = "STOREFRONT_WALLETQR_PARTNER_CODE"
	EnvWalletQRSecretKey   = "STOREFRONT_WALLETQR_SECRET_KEY"
	EnvWalletQRRate        = "STOREFRONT_WALLETQR_EXCHANGE_RATE"
	EnvSquareAccessToken   = "STOREFRONT_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID    = "STOREFRONT_SQUARE_LOCATION_ID"
	EnvSquareWebhookKey    = "STOREFRONT_SQUARE_WEBHOOK_SIGNATURE_KEY"
	EnvChainExplorerURL    = "STOREFRONT_CHAIN_EXPLORER_URL"
	EnvChainAddress        = "STOREFRONT_CHAIN_RECEIVING_ADDRESS"
	EnvChainWebhookSecret  = "STOREFRONT_CHAIN_WEBHOOK_SECRET"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
