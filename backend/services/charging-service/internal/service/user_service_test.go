package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/password"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
)

func newUserServices(t *testing.T) (*AuthService, *UserService) {
	t.Helper()
	store := memstore.New()
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	return NewAuthService(store, hasher, nil), NewUserService(store, hasher, nil)
}

func strPtr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	auth, users := newUserServices(t)
	ctx := context.Background()
	user, err := auth.Signup(ctx, SignupInput{Name: "Ayu", Email: "ayu@example.com", Password: "secret1", Region: "Jakarta"})
	require.NoError(t, err)

	updated, err := users.UpdateProfile(ctx, user.ID, ProfileInput{Region: strPtr(" Bandung ")})
	require.NoError(t, err)
	assert.Equal(t, "Ayu", updated.Name)
	assert.Equal(t, "Bandung", updated.Region)

	_, err = users.UpdateProfile(ctx, user.ID, ProfileInput{Name: strPtr("  ")})
	assert.ErrorIs(t, err, ErrValidation)

	profile, err := users.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bandung", profile.Region)

	_, err = users.Profile(ctx, models.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	auth, users := newUserServices(t)
	ctx := context.Background()
	user, err := auth.Signup(ctx, SignupInput{Name: "Ayu", Email: "ayu@example.com", Password: "secret1"})
	require.NoError(t, err)

	assert.ErrorIs(t, users.ChangePassword(ctx, user.ID, "wrong1", "newsecret"), ErrUnauthenticated)
	assert.ErrorIs(t, users.ChangePassword(ctx, user.ID, "secret1", "123"), ErrValidation)
	require.NoError(t, users.ChangePassword(ctx, user.ID, "secret1", "newsecret"))

	_, err = auth.Login(ctx, "ayu@example.com", "secret1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = auth.Login(ctx, "ayu@example.com", "newsecret")
	assert.NoError(t, err)
}

func TestAdminUpdateUser(t *testing.T) {
	auth, users := newUserServices(t)
	ctx := context.Background()
	ayu, err := auth.Signup(ctx, SignupInput{Name: "Ayu", Email: "ayu@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = auth.Signup(ctx, SignupInput{Name: "Budi", Email: "budi@example.com", Password: "secret1"})
	require.NoError(t, err)

	admin := models.RoleAdmin
	updated, err := users.UpdateUser(ctx, ayu.ID, UserUpdate{
		Email:    strPtr("Ayu.W@Example.com"),
		Role:     &admin,
		Password: strPtr("rotated1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ayu.w@example.com", updated.Email)
	assert.Equal(t, models.RoleAdmin, updated.Role)

	logged, err := auth.Login(ctx, "ayu.w@example.com", "rotated1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, logged.Role)

	all, err := users.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := models.Role("root")
	for name, in := range map[string]UserUpdate{
		"taken email": {Email: strPtr("budi@example.com")},
		"bad email":   {Email: strPtr("nope")},
		"bad role":    {Role: &bogus},
		"short pass":  {Password: strPtr("123")},
		"blank name":  {Name: strPtr("")},
	} {
		_, err := users.UpdateUser(ctx, ayu.ID, in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	_, err = users.UpdateUser(ctx, models.NewID(), UserUpdate{Name: strPtr("Ghost")})
	assert.ErrorIs(t, err, ErrNotFound)
}
