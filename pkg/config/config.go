package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Internal  InternalConfig
	Clerk     ClerkConfig
	Stripe    StripeConfig
	Discord   DiscordConfig
	Zoom      ZoomConfig
	Webhooks  WebhooksConfig
	RoleCache RoleCacheConfig
	RateLimit RateLimitConfig
	Cron      CronConfig
	Features  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"LESSONGATE_APP_ENV" required:"true"`
	Port         string   `envconfig:"LESSONGATE_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"LESSONGATE_APP_PUBLIC_URL" default:"http://localhost:3000"`
	CORSOrigins  []string `envconfig:"LESSONGATE_CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel     string   `envconfig:"LESSONGATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"LESSONGATE_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"LESSONGATE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"LESSONGATE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LESSONGATE_DB_DSN"`
	Driver string `envconfig:"LESSONGATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LESSONGATE_DB_HOST"`
	LegacyPort     int    `envconfig:"LESSONGATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LESSONGATE_DB_USER"`
	LegacyPassword string `envconfig:"LESSONGATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LESSONGATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LESSONGATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LESSONGATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LESSONGATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LESSONGATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LESSONGATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LESSONGATE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LESSONGATE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LESSONGATE_REDIS_ADDR"`
	Password     string        `envconfig:"LESSONGATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LESSONGATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LESSONGATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LESSONGATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LESSONGATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LESSONGATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LESSONGATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig describes how session tokens issued by the identity provider are verified.
// Either JWKSURL (networked, via OIDC key set) or PublicKeyPEM (networkless) must be set.
type AuthConfig struct {
	Issuer          string   `envconfig:"LESSONGATE_AUTH_ISSUER" required:"true"`
	JWKSURL         string   `envconfig:"LESSONGATE_AUTH_JWKS_URL"`
	PublicKeyPEM    string   `envconfig:"LESSONGATE_AUTH_PUBLIC_KEY_PEM"`
	AuthorizedParty []string `envconfig:"LESSONGATE_AUTH_AUTHORIZED_PARTIES"`
	BootstrapAdmins []string `envconfig:"LESSONGATE_BOOTSTRAP_ADMINS"`
}

// IsBootstrapAdmin reports whether the subject or email is configured as a bootstrap admin.
func (a AuthConfig) IsBootstrapAdmin(subject, email string) bool {
	subject = strings.TrimSpace(subject)
	email = strings.ToLower(strings.TrimSpace(email))
	for _, candidate := range a.BootstrapAdmins {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if subject != "" && candidate == subject {
			return true
		}
		if email != "" && strings.EqualFold(candidate, email) {
			return true
		}
	}
	return false
}

type InternalConfig struct {
	Secret string `envconfig:"LESSONGATE_INTERNAL_SECRET"`
}

// SharedSecret returns the internal RPC secret or a configuration error when unset.
func (i InternalConfig) SharedSecret() (string, error) {
	return requireSecret(i.Secret, EnvInternalSecret)
}

type ClerkConfig struct {
	WebhookSecret string `envconfig:"LESSONGATE_CLERK_WEBHOOK_SECRET"`
}

// SigningSecret returns the Svix signing secret for auth-provider webhooks.
func (c ClerkConfig) SigningSecret() (string, error) {
	return requireSecret(c.WebhookSecret, EnvClerkWebhookSecret)
}

type StripeConfig struct {
	APIKey              string `envconfig:"LESSONGATE_STRIPE_API_KEY"`
	Secret              string `envconfig:"LESSONGATE_STRIPE_SECRET"`
	Env                 string `envconfig:"LESSONGATE_STRIPE_ENV" default:"test"`
	SubscriptionPriceID string `envconfig:"LESSONGATE_STRIPE_SUBSCRIPTION_PRICE_ID"`
	PlanName            string `envconfig:"LESSONGATE_STRIPE_PLAN_NAME" default:"member"`
	SuccessPath         string `envconfig:"LESSONGATE_STRIPE_SUCCESS_PATH" default:"/dashboard?checkout=success"`
	CancelPath          string `envconfig:"LESSONGATE_STRIPE_CANCEL_PATH" default:"/pricing?checkout=canceled"`
	PortalReturnPath    string `envconfig:"LESSONGATE_STRIPE_PORTAL_RETURN_PATH" default:"/settings"`
	MaxNetworkRetries   int64  `envconfig:"LESSONGATE_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type DiscordConfig struct {
	BotToken         string        `envconfig:"LESSONGATE_DISCORD_BOT_TOKEN"`
	GuildID          string        `envconfig:"LESSONGATE_DISCORD_GUILD_ID"`
	SubscriberRoleID string        `envconfig:"LESSONGATE_DISCORD_SUBSCRIBER_ROLE_ID"`
	APIBaseURL       string        `envconfig:"LESSONGATE_DISCORD_API_BASE_URL" default:"https://discord.com/api/v10"`
	Timeout          time.Duration `envconfig:"LESSONGATE_DISCORD_TIMEOUT" default:"10s"`
}

// Token returns the bot token or a configuration error when unset.
func (d DiscordConfig) Token() (string, error) {
	return requireSecret(d.BotToken, EnvDiscordBotToken)
}

type ZoomConfig struct {
	WebhookSecret          string   `envconfig:"LESSONGATE_ZOOM_WEBHOOK_SECRET"`
	AllowedDownloadDomains []string `envconfig:"LESSONGATE_ZOOM_ALLOWED_DOWNLOAD_DOMAINS" default:"zoom.us,zoom.com"`
}

// SigningSecret returns the Zoom webhook secret token or a configuration error when unset.
func (z ZoomConfig) SigningSecret() (string, error) {
	return requireSecret(z.WebhookSecret, EnvZoomWebhookSecret)
}

type WebhooksConfig struct {
	Tolerance      time.Duration `envconfig:"LESSONGATE_WEBHOOK_TOLERANCE" default:"5m"`
	RequestsPerMin int           `envconfig:"LESSONGATE_WEBHOOK_RATE_LIMIT_PER_MIN" default:"120"`
}

type RoleCacheConfig struct {
	TTL        time.Duration `envconfig:"LESSONGATE_ROLE_CACHE_TTL" default:"5m"`
	MaxEntries int64         `envconfig:"LESSONGATE_ROLE_CACHE_MAX_ENTRIES" default:"1000"`
}

type RateLimitConfig struct {
	UserWindow     time.Duration `envconfig:"LESSONGATE_RATE_LIMIT_USER_WINDOW" default:"1m"`
	UserLimit      int64         `envconfig:"LESSONGATE_RATE_LIMIT_USER_LIMIT" default:"120"`
	PublicPerMin   int           `envconfig:"LESSONGATE_RATE_LIMIT_PUBLIC_PER_MIN" default:"300"`
	InternalPerMin int           `envconfig:"LESSONGATE_RATE_LIMIT_INTERNAL_PER_MIN" default:"600"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"LESSONGATE_CRON_INTERVAL" default:"1h"`
	RoleReconcileLimit int           `envconfig:"LESSONGATE_CRON_ROLE_RECONCILE_LIMIT" default:"200"`
	LedgerRetention    time.Duration `envconfig:"LESSONGATE_CRON_LEDGER_RETENTION" default:"2160h"`
	LedgerPruneBatch   int           `envconfig:"LESSONGATE_CRON_LEDGER_PRUNE_BATCH" default:"5000"`
	JobTimeout         time.Duration `envconfig:"LESSONGATE_CRON_JOB_TIMEOUT" default:"20m"`
	LockTTL            time.Duration `envconfig:"LESSONGATE_CRON_LOCK_TTL" default:"2h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LESSONGATE_AUTO_MIGRATE" default:"false"`
}

func requireSecret(value, envName string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", pkgerrors.New(pkgerrors.CodeMisconfigured, fmt.Sprintf("%s is not configured", envName))
	}
	return value, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
