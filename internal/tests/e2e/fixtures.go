package e2e

import (
	"context"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/app"
	"github.com/tourverse/traveler/internal/config"
	"github.com/tourverse/traveler/internal/storage"
	"github.com/tourverse/traveler/internal/stubserver"
)

// TestSuite runs a full stub backend and builds client containers against
// it. Containers created from the same suite share durable storage, so a
// second container sees what the first one persisted.
type TestSuite struct {
	t        *testing.T
	redis    *miniredis.Miniredis
	server   *stubserver.Server
	notifier *stubserver.CaptureNotifier
	baseURL  string
	storage  *storage.MemoryStore
}

// NewTestSuite starts the stub backend over miniredis.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	notifier := stubserver.NewCaptureNotifier()
	server := stubserver.New(stubserver.Options{
		Redis:     rdb,
		JWTSecret: "e2e-secret",
		JWTIssuer: "tourverse-e2e",
		TokenTTL:  time.Hour,
		OTP: stubserver.OTPConfig{
			Length:       6,
			TTL:          5 * time.Minute,
			MaxAttempts:  3,
			ResendWindow: time.Minute,
		},
		Notifier: notifier,
	})

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &TestSuite{
		t:        t,
		redis:    mr,
		server:   server,
		notifier: notifier,
		baseURL:  srv.URL + "/api",
		storage:  storage.NewMemoryStore(),
	}
}

// NewContainer builds a client container over the suite's shared storage,
// simulating one application start.
func (s *TestSuite) NewContainer() *app.Container {
	s.t.Helper()

	cfg, err := config.Load("")
	require.NoError(s.t, err)
	cfg.BaseURL = s.baseURL
	cfg.Timeout = 2 * time.Second

	c, err := app.NewContainerWithStorage(cfg, s.storage)
	require.NoError(s.t, err)
	return c
}

// SeedTraveler registers an account directly in the backend repository.
func (s *TestSuite) SeedTraveler(email, password string) *domain.User {
	s.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(s.t, err)

	user := &domain.User{Name: "Seed Traveler", Email: email, Phone: "7666736126"}
	require.NoError(s.t, s.server.Repo().Create(context.Background(), user, string(hash)))
	return user
}

var otpPattern = regexp.MustCompile(`\d{6}`)

// LastOTP extracts the most recent code mailed to the given address.
func (s *TestSuite) LastOTP(email string) string {
	s.t.Helper()
	mail, ok := s.notifier.Last(email)
	require.True(s.t, ok, "no mail delivered to %s", email)

	code := otpPattern.FindString(mail.Body)
	require.NotEmpty(s.t, code, "no code in mail body %q", mail.Body)
	return code
}

// ExpireThrottles advances Redis time past the OTP resend window so the
// same purpose can issue another challenge.
func (s *TestSuite) ExpireThrottles() {
	// Advancing also expires outstanding challenges; callers re-issue.
	s.redis.FastForward(10 * time.Minute)
}
