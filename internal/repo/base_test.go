package repo

import (
	"context"
	"testing"

	"github.com/angelmondragon/lessongate-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/stretchr/testify/require"
)

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx)
	require.NotNil(t, withCtx.Statement)
	require.Equal(t, ctx, withCtx.Statement.Context)
}

func TestBaseWithTx(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	require.Equal(t, base, base.WithTx(nil))
	tx := db.Begin()
	defer tx.Rollback()
	require.Equal(t, tx, base.WithTx(tx).db)
}

func TestFindOne(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	subject := "user_1"
	require.NoError(t, db.Create(&models.User{ExternalSubject: &subject, Email: "a@x.io"}).Error)

	found, err := FindOne[models.User](ctx, db, "", "external_subject = ?", subject)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "a@x.io", found.Email)

	missing, err := FindOne[models.User](ctx, db, "created_at ASC", "external_subject = ?", "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}
