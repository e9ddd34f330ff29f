package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-rbac/aegis/internal/shared"
)

// Service issues and verifies admin API tokens. Tokens are presented as
// "<id>.<secret>": the id locates the record, the secret is bcrypt-compared.
type Service struct {
	repo Repository
	// bootstrapToken grants a superuser principal without a database record.
	// Used to seed the first items before any permission exists.
	bootstrapToken string
}

// NewService constructs a new Service. bootstrapToken may be empty to disable
// the bootstrap credential.
func NewService(repo Repository, bootstrapToken string) *Service {
	return &Service{repo: repo, bootstrapToken: bootstrapToken}
}

// Issue creates a token for userID and returns the plaintext credential. The
// plaintext is not recoverable afterwards.
func (s *Service) Issue(ctx context.Context, name, userID string) (string, APIToken, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", APIToken{}, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", APIToken{}, fmt.Errorf("auth: hash secret: %w", err)
	}
	token := APIToken{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		UserID:     userID,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, token); err != nil {
		return "", APIToken{}, err
	}
	return token.ID + "." + secret, token, nil
}

// Revoke deletes a token by id.
func (s *Service) Revoke(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Authenticate resolves a presented credential to a principal.
func (s *Service) Authenticate(ctx context.Context, credential string) (*shared.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidToken
	}
	if s.bootstrapToken != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(s.bootstrapToken)) == 1 {
		return &shared.Principal{UserID: "bootstrap", TokenName: "bootstrap", Super: true}, nil
	}
	id, secret, ok := strings.Cut(credential, ".")
	if !ok {
		return nil, ErrInvalidToken
	}
	token, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidToken
	}
	_ = s.repo.TouchLastUsed(ctx, token.ID, time.Now().UTC())
	return &shared.Principal{UserID: token.UserID, TokenName: token.Name}, nil
}
