package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuerName = "darkmode-ai-server"

const (
	purposeAccess        = "access"
	purposePasswordReset = "password_reset"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Issuer signs and verifies short-lived HS256 access tokens and mints the
// opaque refresh token values persisted by the caller.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	parser    *jwt.Parser
}

func NewIssuer(secret string, accessTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must be set")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuerName),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(30 * time.Second),
	)

	return &Issuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		parser:    parser,
	}, nil
}

// IssueAccessToken returns a signed access token for the user.
func (i *Issuer) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	return i.sign(userID, email, purposeAccess, i.accessTTL)
}

// IssuePasswordResetToken returns a short-lived token that is only accepted
// by VerifyPasswordResetToken.
func (i *Issuer) IssuePasswordResetToken(userID uuid.UUID, email string) (string, error) {
	return i.sign(userID, email, purposePasswordReset, time.Hour)
}

func (i *Issuer) sign(userID uuid.UUID, email, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":     issuerName,
		"sub":     userID.String(),
		"email":   email,
		"purpose": purpose,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// VerifyAccessToken parses and validates an access token.
func (i *Issuer) VerifyAccessToken(tokenString string) (*Identity, error) {
	return i.verify(tokenString, purposeAccess)
}

// VerifyPasswordResetToken parses and validates a password-reset token.
func (i *Issuer) VerifyPasswordResetToken(tokenString string) (*Identity, error) {
	return i.verify(tokenString, purposePasswordReset)
}

func (i *Issuer) verify(tokenString, purpose string) (*Identity, error) {
	token, err := i.parser.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	if p, _ := mapClaims["purpose"].(string); p != purpose {
		return nil, ErrTokenInvalid
	}

	sub, _ := mapClaims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	email, _ := mapClaims["email"].(string)

	return &Identity{UserID: userID, Email: email}, nil
}

// NewRefreshTokenValue mints the opaque high-entropy refresh credential. The
// caller persists it; this package never stores state.
func NewRefreshTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
