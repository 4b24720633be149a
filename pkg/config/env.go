package config

const (
	EnvPrefix = "BLENDPOINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BLENDPOINT_APP_ENV"
	EnvPort     = "BLENDPOINT_APP_PORT"
	EnvLogLevel = "BLENDPOINT_LOG_LEVEL"

	EnvDBDSN    = "BLENDPOINT_DB_DSN"
	EnvDBDriver = "BLENDPOINT_DB_DRIVER"
	EnvDBHost   = "BLENDPOINT_DB_HOST"
	EnvDBUser   = "BLENDPOINT_DB_USER"
	EnvDBName   = "BLENDPOINT_DB_NAME"

	EnvRedisURL = "BLENDPOINT_REDIS_URL"

	EnvJWTSecret  = "BLENDPOINT_JWT_SECRET"
	EnvJWTIssuer  = "BLENDPOINT_JWT_ISSUER"
	EnvJWTExpMins = "BLENDPOINT_JWT_EXPIRATION_MINUTES"

	EnvTaxRate       = "BLENDPOINT_PRICING_TAX_RATE"
	EnvPointsPerUnit = "BLENDPOINT_LOYALTY_POINTS_PER_UNIT"

	EnvGCPProjectID       = "BLENDPOINT_GCP_PROJECT_ID"
	EnvPubSubLoyaltyTopic = "BLENDPOINT_PUBSUB_LOYALTY_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
