package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/lessongate-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/lessongate-backend/api/controllers/webhooks"
	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/internal/analytics"
	pkgauth "github.com/angelmondragon/lessongate-backend/pkg/auth"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// Users is everything the HTTP layer needs from the identity store.
type Users interface {
	middleware.IdentityStore
	controllers.ProfileService
	controllers.UserResolver
	controllers.UserDirectory
}

// Videos is the read and write surface of the catalog.
type Videos interface {
	controllers.VideoCatalog
	controllers.VideoAdmin
}

// RedisStore backs per-user rate limits and idempotent replays.
type RedisStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	middleware.IdempotencyStore
}

// Deps wires the router. Nil services make their routes answer 5xx.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Verifier pkgauth.Verifier
	Pingers  map[string]controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
	Webhooks webhookcontrollers.Observer

	Users     Users
	Videos    Videos
	Progress  controllers.ProgressService
	Billing   controllers.BillingService
	Roles     controllers.RoleSyncer
	Audit     controllers.AuditReader
	Analytics analytics.Service

	StripeEvents webhookcontrollers.StripeEventHandler
	StripeClient webhookcontrollers.StripeVerifier
	ClerkEvents  webhookcontrollers.ClerkEventHandler
	ClerkVerify  webhookcontrollers.SvixVerifier
	Zoom         webhookcontrollers.ZoomReceiver
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	authParams := middleware.AuthParams{
		Verifier:         d.Verifier,
		Users:            d.Users,
		IsBootstrapAdmin: cfg.Auth.IsBootstrapAdmin,
		Logger:           logg,
	}
	userLimit := middleware.UserRateLimit(middleware.RateLimitPolicy{
		Name:   "user",
		Window: cfg.RateLimit.UserWindow,
		Limit:  cfg.RateLimit.UserLimit,
	}, d.Redis, logg)
	idempotent := middleware.Idempotency(d.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.Pingers, logg))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.IPRateLimit(cfg.Webhooks.RequestsPerMin, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeEvents, d.StripeClient, d.Webhooks, logg))
		r.Post("/clerk", webhookcontrollers.ClerkWebhook(d.ClerkEvents, d.ClerkVerify, d.Webhooks, logg))
		r.Post("/zoom", webhookcontrollers.ZoomWebhook(d.Zoom, d.Webhooks, logg))
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(
			middleware.IPRateLimit(cfg.RateLimit.InternalPerMin, logg),
			middleware.InternalOnly(cfg.Internal.SharedSecret, logg),
		)
		r.Post("/users/{subject}/discord-roles/sync", controllers.InternalSyncDiscordRoles(d.Roles, logg))
		r.Post("/users/lookup", controllers.InternalUserLookup(d.Users, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.IPRateLimit(cfg.RateLimit.PublicPerMin, logg),
				middleware.OptionalAuth(authParams),
			)
			r.Get("/videos", controllers.VideoList(d.Videos, logg))
			r.Get("/videos/{id}", controllers.VideoGet(d.Videos, logg))
			r.Get("/videos/{id}/playback", controllers.VideoPlayback(d.Videos, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Auth(authParams),
				middleware.RequireUser(logg),
				userLimit,
			)
			r.Get("/me", controllers.MeGet(logg))
			r.Patch("/me", controllers.MeUpdate(d.Users, logg))
			r.Post("/me/discord/sync", controllers.MeDiscordSync(d.Roles, logg))

			r.Get("/progress/streak", controllers.ProgressStreak(d.Progress, logg))
			r.Get("/progress/{videoId}", controllers.ProgressGet(d.Progress, logg))
			r.Put("/progress/{videoId}", controllers.ProgressPut(d.Progress, logg))

			r.With(idempotent).Post("/billing/checkout", controllers.BillingCheckout(d.Billing, logg))
			r.With(idempotent).Post("/billing/portal", controllers.BillingPortal(d.Billing, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(authParams),
			middleware.RequireAdmin(logg),
			userLimit,
		)
		r.Get("/videos", controllers.VideoList(d.Videos, logg))
		r.With(idempotent).Post("/videos", controllers.AdminVideoCreate(d.Videos, logg))
		r.Get("/videos/{id}", controllers.AdminVideoGet(d.Videos, logg))
		r.Patch("/videos/{id}", controllers.AdminVideoUpdate(d.Videos, logg))
		r.Put("/videos/{id}/publish", controllers.AdminVideoPublish(d.Videos, logg))
		r.Put("/videos/{id}/roles", controllers.AdminVideoRoles(d.Videos, logg))
		r.Delete("/videos/{id}", controllers.AdminVideoDelete(d.Videos, logg))

		r.Get("/users", controllers.AdminUsers(d.Users, logg))
		r.Get("/audit", controllers.AdminAudit(d.Audit, logg))
		r.Get("/analytics", controllers.AdminAnalytics(d.Analytics, logg))
	})

	return r
}
