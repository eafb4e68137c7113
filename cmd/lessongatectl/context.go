package main

import (
	"context"
	"sync"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// opener returns a database handle and a release func.
type opener func(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gorm.DB, func(), error)

type commandContext struct {
	open opener

	once    sync.Once
	cfg     *config.Config
	logg    *logger.Logger
	conn    *gorm.DB
	release func()
	err     error
}

func newCommandContext(open opener) *commandContext {
	if open == nil {
		open = openPostgres
	}
	return &commandContext{open: open, release: func() {}}
}

func openPostgres(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gorm.DB, func(), error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, err
	}
	return client.DB(), func() { _ = client.Close() }, nil
}

func (c *commandContext) ensure(ctx context.Context) error {
	c.once.Do(func() {
		if c.cfg == nil {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				c.err = err
				return
			}
			c.cfg = cfg
		}
		if c.logg == nil {
			c.logg = logger.New(logger.Options{
				ServiceName: "lessongatectl",
				Level:       "warn",
			})
		}
		conn, release, err := c.open(ctx, c.cfg, c.logg)
		if err != nil {
			c.err = err
			return
		}
		c.conn, c.release = conn, release
	})
	return c.err
}

func (c *commandContext) close() {
	if c.release != nil {
		c.release()
	}
}

func (c *commandContext) users() (*users.Service, error) {
	return users.NewService(users.ServiceParams{
		Repo:   users.NewRepository(c.conn),
		Audit:  c.audit(),
		Logger: c.logg,
	})
}

func (c *commandContext) audit() *audit.Writer {
	return audit.NewWriter(audit.NewRepository(c.conn), c.logg)
}

// operator is the caller recorded for CLI mutations.
func operator() users.Caller {
	return users.SystemCaller("lessongatectl")
}
