package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryTokenRepo struct {
	tokens  map[string]APIToken
	touched map[string]time.Time
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{
		tokens:  make(map[string]APIToken),
		touched: make(map[string]time.Time),
	}
}

func (r *memoryTokenRepo) Insert(_ context.Context, token APIToken) error {
	r.tokens[token.ID] = token
	return nil
}

func (r *memoryTokenRepo) FindByID(_ context.Context, id string) (*APIToken, error) {
	token, ok := r.tokens[id]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &token, nil
}

func (r *memoryTokenRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	r.touched[id] = at
	return nil
}

func (r *memoryTokenRepo) Delete(_ context.Context, id string) error {
	delete(r.tokens, id)
	return nil
}

func TestIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryTokenRepo()
	svc := NewService(repo, "")

	plaintext, token, err := svc.Issue(ctx, "ci", "u-ci")
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)
	require.NotContains(t, token.SecretHash, plaintext, "hash must not embed the secret")

	principal, err := svc.Authenticate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, "u-ci", principal.UserID)
	require.Equal(t, "ci", principal.TokenName)
	require.False(t, principal.Super)
	require.Contains(t, repo.touched, token.ID)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryTokenRepo()
	svc := NewService(repo, "")

	plaintext, token, err := svc.Issue(ctx, "ci", "u-ci")
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"empty":         "",
		"no separator":  "garbage",
		"unknown id":    "00000000-0000-0000-0000-000000000000.deadbeef",
		"wrong secret":  token.ID + ".deadbeef",
		"stale revoked": plaintext,
	} {
		t.Run(name, func(t *testing.T) {
			if name == "stale revoked" {
				require.NoError(t, svc.Revoke(ctx, token.ID))
			}
			_, err := svc.Authenticate(ctx, credential)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticateBootstrap(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryTokenRepo(), "super-secret")

	principal, err := svc.Authenticate(ctx, "super-secret")
	require.NoError(t, err)
	require.True(t, principal.Super)
	require.Equal(t, "bootstrap", principal.UserID)

	_, err = svc.Authenticate(ctx, "super-secret-but-wrong")
	require.ErrorIs(t, err, ErrInvalidToken)

	// Disabled bootstrap must never match, not even the empty string.
	svc = NewService(newMemoryTokenRepo(), "")
	_, err = svc.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrInvalidToken)
}
