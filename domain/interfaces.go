package domain

import "context"

// Storage is the durable key-value persistence capability backing the
// session record. Implementations must treat Get of a missing key as
// ErrKeyNotFound, not as a failure.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// AuthService defines the traveler-facing authentication operations. Every
// operation returns a terminal Outcome; failures are converted, never
// propagated as errors.
type AuthService interface {
	Rehydrate(ctx context.Context) *Outcome
	LoginInit(ctx context.Context, creds Credentials) *Outcome
	LoginVerify(ctx context.Context, email, code string) *Outcome
	RegisterInit(ctx context.Context, reg Registration) *Outcome
	RegisterVerify(ctx context.Context, email, code string) *Outcome
	Logout(ctx context.Context) *Outcome
	ForgotPassword(ctx context.Context, email string) *Outcome
	ResetPassword(ctx context.Context, email, newPassword, code string) *Outcome
	FetchProfile(ctx context.Context) *Outcome
	UpdateProfile(ctx context.Context, update ProfileUpdate) *Outcome
	ChangePassword(ctx context.Context, oldPassword, newPassword string) *Outcome
	DeleteProfile(ctx context.Context) *Outcome
}

// TokenInspector checks a persisted bearer token without verifying its
// signature; the client holds no signing secret.
type TokenInspector interface {
	Expired(token string) (bool, error)
}

// Notifier delivers OTP messages to travelers (stub server side).
type Notifier interface {
	SendEmail(to, subject, body string) error
}

// TravelerRepository defines traveler account access for the stub server.
type TravelerRepository interface {
	Create(ctx context.Context, user *User, passwordHash string) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uint) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uint) error
	PasswordHash(ctx context.Context, id uint) (string, error)
	SetPasswordHash(ctx context.Context, id uint, hash string) error
}
