package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{users: make(map[uuid.UUID]*User)}
}

func (r *memoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memoryUserRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUserRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func newTestAuthService() *Service {
	return NewService(newMemoryUserRepository(), "test-secret", time.Hour, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{
		Email:    "producer@example.com",
		Password: "correct horse battery",
		Name:     "Producer One",
		Role:     RoleProducer,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEqual(t, "correct horse battery", user.PasswordHash)

	resp, err := svc.Login(ctx, &LoginRequest{
		Email:    "producer@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	claims, err := svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, RoleProducer, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{
		Email:    "buyer@example.com",
		Password: "s3cret-enough",
		Name:     "Buyer",
		Role:     RoleBuyer,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{Email: "buyer@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials,
		"unknown email must be indistinguishable from wrong password")
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc := newTestAuthService()
	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email:    "x@example.com",
		Password: "longenough",
		Name:     "X",
		Role:     Role("superadmin"),
	})
	assert.Error(t, err)
}

func TestVerifyTokenRejectsForeignSignature(t *testing.T) {
	svc := newTestAuthService()
	other := NewService(newMemoryUserRepository(), "different-secret", time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{
		Email:    "a@example.com",
		Password: "longenough",
		Name:     "A",
		Role:     RoleAuditor,
	})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, &LoginRequest{Email: "a@example.com", Password: "longenough"})
	require.NoError(t, err)

	_, err = other.VerifyToken(resp.Token)
	assert.Error(t, err)
}

func TestRoleCapabilities(t *testing.T) {
	producer := &User{Role: RoleProducer}
	buyer := &User{Role: RoleBuyer}
	auditor := &User{Role: RoleAuditor}

	assert.True(t, producer.Can(CapIssue))
	assert.True(t, producer.Can(CapPurchase))
	assert.True(t, producer.Can(CapRetire))
	assert.False(t, producer.Can(CapAudit))

	assert.False(t, buyer.Can(CapIssue))
	assert.True(t, buyer.Can(CapPurchase))
	assert.True(t, buyer.Can(CapRetire))

	assert.True(t, auditor.Can(CapAudit))
	assert.False(t, auditor.Can(CapPurchase))
	assert.False(t, auditor.Can(CapRetire))
}
