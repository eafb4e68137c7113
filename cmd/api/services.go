package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lessongate-backend/api/controllers"
	"github.com/angelmondragon/lessongate-backend/api/routes"
	"github.com/angelmondragon/lessongate-backend/internal/analytics"
	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/billing"
	"github.com/angelmondragon/lessongate-backend/internal/discord"
	"github.com/angelmondragon/lessongate-backend/internal/ledger"
	"github.com/angelmondragon/lessongate-backend/internal/progress"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/internal/videos"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	clerkwebhook "github.com/angelmondragon/lessongate-backend/internal/webhooks/clerk"
	stripewebhook "github.com/angelmondragon/lessongate-backend/internal/webhooks/stripe"
	zoomwebhook "github.com/angelmondragon/lessongate-backend/internal/webhooks/zoom"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	pkgdiscord "github.com/angelmondragon/lessongate-backend/pkg/discord"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/metrics"
	"github.com/angelmondragon/lessongate-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/lessongate-backend/pkg/stripe"
)

// buildDeps wires every service the router needs. Provider integrations
// without credentials are left unset so their routes answer as misconfigured
// instead of blocking startup.
func buildDeps(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg *prometheus.Registry) (routes.Deps, error) {
	gdb := dbClient.DB()
	auditWriter := audit.NewWriter(audit.NewRepository(gdb), logg)

	userSvc, err := users.NewService(users.ServiceParams{
		Repo:   users.NewRepository(gdb),
		Audit:  auditWriter,
		Logger: logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("users service: %w", err)
	}

	videoSvc, err := videos.NewService(videos.ServiceParams{
		Repo:   videos.NewRepository(gdb),
		Audit:  auditWriter,
		Logger: logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("videos service: %w", err)
	}

	progressSvc, err := progress.NewService(progress.ServiceParams{
		Repo:     progress.NewRepository(gdb),
		Videos:   videoSvc,
		TxRunner: dbClient,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("progress service: %w", err)
	}

	analyticsSvc, err := analytics.NewService(analytics.NewRepository(gdb))
	if err != nil {
		return routes.Deps{}, fmt.Errorf("analytics service: %w", err)
	}

	runner, err := webhooks.NewRunner(webhooks.RunnerParams{
		TxRunner: dbClient,
		Ledger:   ledger.New(gdb),
		Audit:    auditWriter,
		Logger:   logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("webhook runner: %w", err)
	}

	deps := routes.Deps{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Redis:     redisClient,
		Gatherer:  reg,
		Webhooks:  metrics.NewWebhookMetrics(reg),
		Users:     userSvc,
		Videos:    videoSvc,
		Progress:  progressSvc,
		Audit:     auditWriter,
		Analytics: analyticsSvc,
	}

	var granter stripewebhook.RoleGranter
	if roleSvc, err := buildDiscord(cfg, logg, userSvc, reg); err != nil {
		logg.Warn(ctx, fmt.Sprintf("discord role sync disabled: %v", err))
	} else {
		deps.Roles = roleSvc
		granter = roleSvc
	}

	if err := wireStripe(ctx, cfg, logg, &deps, userSvc, runner, granter); err != nil {
		logg.Warn(ctx, fmt.Sprintf("stripe integration disabled: %v", err))
	}

	if secret, err := cfg.Clerk.SigningSecret(); err != nil {
		logg.Warn(ctx, fmt.Sprintf("identity webhooks disabled: %v", err))
	} else {
		verifier, err := clerkwebhook.NewVerifier(secret, cfg.Webhooks.Tolerance)
		if err != nil {
			return routes.Deps{}, fmt.Errorf("identity webhook verifier: %w", err)
		}
		clerkSvc, err := clerkwebhook.NewService(clerkwebhook.ServiceParams{
			Users:            userSvc,
			Runner:           runner,
			IsBootstrapAdmin: cfg.Auth.IsBootstrapAdmin,
			Logger:           logg,
		})
		if err != nil {
			return routes.Deps{}, fmt.Errorf("identity webhook service: %w", err)
		}
		deps.ClerkEvents = clerkSvc
		deps.ClerkVerify = verifier
	}

	if secret, err := cfg.Zoom.SigningSecret(); err != nil {
		logg.Warn(ctx, fmt.Sprintf("zoom webhooks disabled: %v", err))
	} else {
		verifier, err := zoomwebhook.NewVerifier(secret, cfg.Webhooks.Tolerance)
		if err != nil {
			return routes.Deps{}, fmt.Errorf("zoom webhook verifier: %w", err)
		}
		zoomSvc, err := zoomwebhook.NewService(zoomwebhook.ServiceParams{
			Verifier:       verifier,
			Videos:         videoSvc,
			Runner:         runner,
			AllowedDomains: cfg.Zoom.AllowedDownloadDomains,
			Logger:         logg,
		})
		if err != nil {
			return routes.Deps{}, fmt.Errorf("zoom webhook service: %w", err)
		}
		deps.Zoom = zoomSvc
	}

	return deps, nil
}

func buildDiscord(cfg *config.Config, logg *logger.Logger, userSvc *users.Service, reg prometheus.Registerer) (*discord.Service, error) {
	client, err := pkgdiscord.NewClient(cfg.Discord, metrics.NewBreakerMetrics(reg), logg)
	if err != nil {
		return nil, err
	}
	cache, err := discord.NewRoleCache(cfg.RoleCache)
	if err != nil {
		return nil, err
	}
	return discord.NewService(discord.ServiceParams{
		Client:           client,
		Users:            userSvc,
		Cache:            cache,
		GuildID:          cfg.Discord.GuildID,
		SubscriberRoleID: cfg.Discord.SubscriberRoleID,
		Logger:           logg,
	})
}

func wireStripe(ctx context.Context, cfg *config.Config, logg *logger.Logger, deps *routes.Deps, userSvc *users.Service, runner *webhooks.Runner, granter stripewebhook.RoleGranter) error {
	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, cfg.Webhooks.Tolerance, logg)
	if err != nil {
		return err
	}
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Sessions:  client,
		Stripe:    cfg.Stripe,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	events, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Users:            userSvc,
		Runner:           runner,
		Roles:            granter,
		SubscriberRoleID: cfg.Discord.SubscriberRoleID,
		DefaultPlan:      cfg.Stripe.PlanName,
		Logger:           logg,
	})
	if err != nil {
		return err
	}
	deps.Billing = billingSvc
	deps.StripeEvents = events
	deps.StripeClient = client
	return nil
}
