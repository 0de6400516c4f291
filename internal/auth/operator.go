package auth

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidCredentials represents login failure.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// OperatorAuth authenticates the facility operator against credentials from
// configuration. The facility has one operator account, there is no user store.
type OperatorAuth struct {
	username     string
	passwordHash string
	hasher       Hasher
	tokens       *TokenService
	logger       *zap.Logger
}

// NewOperatorAuth builds operator authenticator.
func NewOperatorAuth(username, passwordHash string, hasher Hasher, tokens *TokenService, logger *zap.Logger) *OperatorAuth {
	return &OperatorAuth{
		username:     username,
		passwordHash: passwordHash,
		hasher:       hasher,
		tokens:       tokens,
		logger:       logger,
	}
}

// Login checks credentials and produces a bearer token.
func (a *OperatorAuth) Login(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	if username != a.username || a.passwordHash == "" {
		return "", ErrInvalidCredentials
	}
	if err := a.hasher.Compare(a.passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.GenerateToken(username, "operator")
	if err != nil {
		return "", err
	}

	a.logger.Info("operator logged in", zap.String("username", username))
	return token, nil
}

// Validate checks a bearer token and returns its claims.
func (a *OperatorAuth) Validate(token string) (*Claims, error) {
	return a.tokens.ValidateToken(token)
}
