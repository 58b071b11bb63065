package accounts

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"makecoffee/internal/apperr"
	"makecoffee/internal/db"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	name := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:accounts-%s?mode=memory&cache=shared", name)), db.GormConfig())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))

	svc := NewService(database)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, RegisterInput{Username: " barista ", Password: "espresso", Email: "Barista@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "barista", user.Username)
	assert.Equal(t, "barista@example.com", user.Email)
	assert.False(t, user.IsStaff)
	assert.NotEqual(t, "espresso", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "Barista", "espresso")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "barista", "decaf!")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = svc.Authenticate(ctx, "nobody", "espresso")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = svc.Authenticate(ctx, "", "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Register(ctx, RegisterInput{Username: "taken", Password: "secret1"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		input RegisterInput
	}{
		{name: "blank username", input: RegisterInput{Username: "  ", Password: "secret1"}},
		{name: "short password", input: RegisterInput{Username: "shorty", Password: "123"}},
		{name: "duplicate", input: RegisterInput{Username: "TAKEN", Password: "secret1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.input)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestCreateUserFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	staff, err := svc.CreateUser(ctx, RegisterInput{Username: "mod", Password: "secret1"}, true, false)
	require.NoError(t, err)
	assert.True(t, staff.IsStaff)
	assert.False(t, staff.IsSuperuser)

	root, err := svc.CreateUser(ctx, RegisterInput{Username: "root", Password: "secret1"}, false, true)
	require.NoError(t, err)
	assert.True(t, root.IsStaff)
	assert.True(t, root.IsSuperuser)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, RegisterInput{Username: "latte", Password: "oldpass"})
	require.NoError(t, err)

	first, password := "Lena", "newpass"
	updated, err := svc.Update(ctx, user.ID, UpdateInput{FirstName: &first, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "Lena", updated.FirstName)

	_, err = svc.Authenticate(ctx, "latte", "oldpass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = svc.Authenticate(ctx, "latte", "newpass")
	require.NoError(t, err)

	short := "abc"
	_, err = svc.Update(ctx, user.ID, UpdateInput{Password: &short})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Update(ctx, 999, UpdateInput{FirstName: &first})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
