package stubserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token errors
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Claims are the parsed fields of an accepted bearer token.
type Claims struct {
	UserID    uint
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// TokenService issues and validates the stub's HS256 bearer tokens and
// tracks revocations in Redis until natural expiry.
type TokenService struct {
	secretKey   []byte
	issuer      string
	ttl         time.Duration
	redisClient *redis.Client
}

// NewTokenService creates a token service.
func NewTokenService(secret, issuer string, ttl time.Duration, redisClient *redis.Client) *TokenService {
	return &TokenService{
		secretKey:   []byte(secret),
		issuer:      issuer,
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// Issue signs a token for the traveler.
func (t *TokenService) Issue(userID uint, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"iss":     t.issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(t.ttl).Unix(),
		"jti":     uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secretKey)
}

// Validate verifies signature, expiry and revocation state.
func (t *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return t.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	userID, ok := mapClaims["user_id"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	email, _ := mapClaims["email"].(string)
	jti, _ := mapClaims["jti"].(string)
	exp, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return nil, ErrTokenInvalid
	}

	if jti != "" {
		revoked, err := t.redisClient.Exists(ctx, revocationKey(jti)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked == 1 {
			return nil, ErrTokenRevoked
		}
	}

	return &Claims{
		UserID:    uint(userID),
		Email:     email,
		JTI:       jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (t *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 || claims.JTI == "" {
		return nil
	}
	return t.redisClient.Set(ctx, revocationKey(claims.JTI), 1, ttl).Err()
}

func revocationKey(jti string) string {
	return "revoked:" + jti
}
