package stubserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTP errors
var (
	ErrOTPNotFound    = errors.New("otp not found")
	ErrOTPInvalid     = errors.New("invalid otp code")
	ErrOTPMaxAttempts = errors.New("maximum otp attempts exceeded")
	ErrOTPResendWait  = errors.New("otp resend throttled")
)

// OTP purposes keep the login, registration and reset challenges for the
// same email independent of each other.
const (
	purposeLogin    = "login"
	purposeRegister = "register"
	purposeReset    = "reset"
)

// OTPConfig tunes challenge issuance and verification.
type OTPConfig struct {
	Length       int
	TTL          time.Duration
	MaxAttempts  int
	ResendWindow time.Duration
}

// OTPStore issues and verifies one-time codes using Redis persistence.
type OTPStore struct {
	redisClient *redis.Client
	config      OTPConfig
}

// NewOTPStore creates a Redis-based OTP store.
func NewOTPStore(redisClient *redis.Client, config OTPConfig) *OTPStore {
	return &OTPStore{redisClient: redisClient, config: config}
}

// Generate creates a fresh code for (purpose, email), stores it with a TTL
// and arms the attempt counter and resend throttle.
func (s *OTPStore) Generate(ctx context.Context, purpose, email string) (string, error) {
	otpKey := fmt.Sprintf("otp:%s:%s", purpose, email)
	attemptsKey := fmt.Sprintf("otp:att:%s:%s", purpose, email)
	resendKey := fmt.Sprintf("otp:res:%s:%s", purpose, email)

	ttl, err := s.redisClient.TTL(ctx, resendKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check resend throttle: %w", err)
	}
	if ttl > 0 {
		return "", fmt.Errorf("%w: wait %d seconds", ErrOTPResendWait, int64(ttl.Seconds()))
	}

	code, err := s.generateSecureCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}

	if err := s.redisClient.Set(ctx, otpKey, code, s.config.TTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}
	if err := s.redisClient.Set(ctx, attemptsKey, 0, s.config.TTL).Err(); err != nil {
		return "", fmt.Errorf("failed to initialize attempts counter: %w", err)
	}
	if err := s.redisClient.Set(ctx, resendKey, 1, s.config.ResendWindow).Err(); err != nil {
		return "", fmt.Errorf("failed to set resend throttle: %w", err)
	}

	return code, nil
}

// Verify checks a submitted code, counting the attempt. The challenge is
// consumed on success and on attempt exhaustion.
func (s *OTPStore) Verify(ctx context.Context, purpose, email, code string) error {
	otpKey := fmt.Sprintf("otp:%s:%s", purpose, email)
	attemptsKey := fmt.Sprintf("otp:att:%s:%s", purpose, email)

	attempts, err := s.redisClient.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}
	if attempts > int64(s.config.MaxAttempts) {
		s.redisClient.Del(ctx, otpKey, attemptsKey)
		return ErrOTPMaxAttempts
	}

	storedCode, err := s.redisClient.Get(ctx, otpKey).Result()
	if err == redis.Nil {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get OTP: %w", err)
	}

	if storedCode != code {
		return ErrOTPInvalid
	}

	s.redisClient.Del(ctx, otpKey, attemptsKey)
	return nil
}

// generateSecureCode generates a cryptographically secure numeric code.
func (s *OTPStore) generateSecureCode() (string, error) {
	digits := make([]byte, s.config.Length)
	for i := 0; i < s.config.Length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + num.Int64())
	}
	return string(digits), nil
}
