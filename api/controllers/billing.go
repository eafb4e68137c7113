package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/billing"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// BillingService opens hosted Stripe pages.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, user *models.User) (*billing.Session, error)
	CreatePortalSession(ctx context.Context, user *models.User) (*billing.Session, error)
}

func BillingCheckout(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return billingHandler(logg, svc, func(ctx context.Context, user *models.User) (*billing.Session, error) {
		return svc.CreateCheckoutSession(ctx, user)
	})
}

func BillingPortal(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return billingHandler(logg, svc, func(ctx context.Context, user *models.User) (*billing.Session, error) {
		return svc.CreatePortalSession(ctx, user)
	})
}

func billingHandler(logg *logger.Logger, svc BillingService, open func(context.Context, *models.User) (*billing.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		session, err := open(r.Context(), middleware.UserFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, session)
	}
}
