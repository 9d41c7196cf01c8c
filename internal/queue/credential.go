package queue

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialIssuer identifies tokens minted by this service's queue client.
const CredentialIssuer = "studyforge-task-queue"

// TaskClaims are the claims carried by a task delivery credential. The
// audience is the worker's base address; the dispatcher rejects anything
// else before touching job state.
type TaskClaims struct {
	JobID string `json:"jobId"`
	jwt.RegisteredClaims
}

// CredentialSigner mints HMAC-signed task credentials bound to one audience.
type CredentialSigner struct {
	secret   []byte
	audience string
}

func NewCredentialSigner(secret, audience string) *CredentialSigner {
	return &CredentialSigner{
		secret:   []byte(secret),
		audience: audience,
	}
}

// Mint signs a credential for one job delivery, valid for ttl.
func (s *CredentialSigner) Mint(userID, jobID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TaskClaims{
		JobID: jobID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    CredentialIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign task credential: %w", err)
	}
	return signed, nil
}

// CredentialVerifier checks issuer, audience and signature of a task
// credential. It is the dispatcher's gate: verification failure means the
// caller is not the trusted queue identity.
type CredentialVerifier struct {
	secret   []byte
	audience string
}

func NewCredentialVerifier(secret, audience string) *CredentialVerifier {
	return &CredentialVerifier{
		secret:   []byte(secret),
		audience: audience,
	}
}

// Verify validates a credential and returns its claims.
func (v *CredentialVerifier) Verify(tokenString string) (*TaskClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TaskClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	},
		jwt.WithIssuer(CredentialIssuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse task credential: %w", err)
	}

	claims, ok := token.Claims.(*TaskClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
