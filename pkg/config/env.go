package config

const EnvPrefix = "INKROUTE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "INKROUTE_APP_ENV"
	EnvPort     = "INKROUTE_APP_PORT"
	EnvLogLevel = "INKROUTE_LOG_LEVEL"

	EnvDBDSN  = "INKROUTE_DB_DSN"
	EnvDBHost = "INKROUTE_DB_HOST"
	EnvDBUser = "INKROUTE_DB_USER"
	EnvDBName = "INKROUTE_DB_NAME"

	EnvRedisURL = "INKROUTE_REDIS_URL"

	EnvJWTSecret  = "INKROUTE_JWT_SECRET"
	EnvJWTIssuer  = "INKROUTE_JWT_ISSUER"
	EnvJWTExpMins = "INKROUTE_JWT_EXPIRATION_MINUTES"

	EnvFlatShipping           = "INKROUTE_FLAT_SHIPPING_CENTS"
	EnvFulfillmentMaxAttempts = "INKROUTE_FULFILLMENT_MAX_ATTEMPTS"
	EnvGCPProjectID           = "INKROUTE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
