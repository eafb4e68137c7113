package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultRoleReconcilePage = 200
	// maxConsecutiveFailures stops a run once Discord looks unavailable.
	maxConsecutiveFailures = 10
)

type linkedUserLister interface {
	ListLinked(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error)
}

type memberRoleSyncer interface {
	SyncMemberRoles(ctx context.Context, caller users.Caller, subject string) (*models.User, error)
}

// RoleReconcileJobParams configures the discord role reconcile job.
type RoleReconcileJobParams struct {
	Logger   *logger.Logger
	Users    linkedUserLister
	Syncer   memberRoleSyncer
	PageSize int
}

// NewRoleReconcileJob builds a job that refreshes stored Discord roles for
// every linked member, catching role changes made directly in Discord.
func NewRoleReconcileJob(params RoleReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lister required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("role syncer required")
	}
	page := params.PageSize
	if page <= 0 {
		page = defaultRoleReconcilePage
	}
	return &roleReconcileJob{
		logg:   params.Logger,
		users:  params.Users,
		syncer: params.Syncer,
		page:   page,
	}, nil
}

type roleReconcileJob struct {
	logg   *logger.Logger
	users  linkedUserLister
	syncer memberRoleSyncer
	page   int
}

func (j *roleReconcileJob) Name() string { return "discord-role-reconcile" }

func (j *roleReconcileJob) Run(ctx context.Context) error {
	caller := users.SystemCaller(j.Name())
	var (
		errs        error
		after       uuid.UUID
		scanned     int
		synced      int
		consecutive int
	)
	for {
		batch, err := j.users.ListLinked(ctx, after, j.page)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list linked users: %w", err))
		}
		for i := range batch {
			user := &batch[i]
			after = user.ID
			scanned++
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			if _, err := j.syncer.SyncMemberRoles(ctx, caller, user.Subject()); err != nil {
				if pkgerrors.Is(err, pkgerrors.CodeNotFound) || pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
					continue
				}
				errs = multierr.Append(errs, fmt.Errorf("sync user %s: %w", user.ID, err))
				consecutive++
				if consecutive >= maxConsecutiveFailures {
					j.logg.Warn(j.logg.WithField(ctx, "scanned", scanned), "cron.role_reconcile_aborted")
					return errs
				}
				continue
			}
			consecutive = 0
			synced++
		}
		if len(batch) < j.page {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned": scanned,
		"synced":  synced,
		"failed":  len(multierr.Errors(errs)),
	}), "cron.role_reconcile_complete")
	return errs
}
