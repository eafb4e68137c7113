package config

const (
	EnvPrefix = "LESSONGATE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "LESSONGATE_APP_ENV"
	EnvPort      = "LESSONGATE_APP_PORT"
	EnvDBDSN     = "LESSONGATE_DB_DSN"
	EnvDBHost    = "LESSONGATE_DB_HOST"
	EnvDBUser    = "LESSONGATE_DB_USER"
	EnvDBName    = "LESSONGATE_DB_NAME"
	EnvRedisURL  = "LESSONGATE_REDIS_URL"
	EnvAuthIss   = "LESSONGATE_AUTH_ISSUER"
	EnvAuthJWKS  = "LESSONGATE_AUTH_JWKS_URL"
	EnvAuthPEM   = "LESSONGATE_AUTH_PUBLIC_KEY_PEM"
	EnvBootstrap = "LESSONGATE_BOOTSTRAP_ADMINS"

	EnvInternalSecret     = "LESSONGATE_INTERNAL_SECRET"
	EnvClerkWebhookSecret = "LESSONGATE_CLERK_WEBHOOK_SECRET"
	EnvStripeAPIKey       = "LESSONGATE_STRIPE_API_KEY"
	EnvStripeSecret       = "LESSONGATE_STRIPE_SECRET"
	EnvDiscordBotToken    = "LESSONGATE_DISCORD_BOT_TOKEN"
	EnvDiscordGuildID     = "LESSONGATE_DISCORD_GUILD_ID"
	EnvZoomWebhookSecret  = "LESSONGATE_ZOOM_WEBHOOK_SECRET"
	EnvZoomAllowedDomains = "LESSONGATE_ZOOM_ALLOWED_DOWNLOAD_DOMAINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
