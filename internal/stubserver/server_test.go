package stubserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourverse/traveler/domain"
)

type serverFixture struct {
	server   *Server
	base     string
	client   *http.Client
	notifier *CaptureNotifier
}

func newServerFixture(t *testing.T, opts ...func(*Options)) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	notifier := NewCaptureNotifier()
	options := Options{
		Redis:     rdb,
		JWTSecret: "test-secret",
		JWTIssuer: "tourverse-test",
		TokenTTL:  time.Hour,
		OTP: OTPConfig{
			Length:       6,
			TTL:          5 * time.Minute,
			MaxAttempts:  3,
			ResendWindow: time.Minute,
		},
		Notifier:       notifier,
		ExposeOTPDebug: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	server := New(options)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &serverFixture{
		server:   server,
		base:     srv.URL + "/api",
		client:   srv.Client(),
		notifier: notifier,
	}
}

// seedTraveler registers an account directly in the repository.
func (f *serverFixture) seedTraveler(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{Name: "Seed Traveler", Email: email, Phone: "7666736126"}
	require.NoError(t, f.server.Repo().Create(context.Background(), user, string(hash)))
	return user
}

func (f *serverFixture) postJSON(t *testing.T, path, token string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.base+path, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *serverFixture) postForm(t *testing.T, method, path string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(method, f.base+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *serverFixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.base+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServer_LoginFlow(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "a@b.com",
		"password": "Abcdef12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := resp.Header.Get(DebugOTPHeader)
	require.Len(t, code, 6)
	readBody(t, resp)

	// The code went out by mail too.
	mail, ok := f.notifier.Last("a@b.com")
	require.True(t, ok)
	assert.Contains(t, mail.Body, code)

	resp = f.postJSON(t, "/traveler/login/verify", "", map[string]string{
		"email": "a@b.com",
		"otp":   code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := readBody(t, resp)
	require.NotEmpty(t, token)

	resp = f.get(t, "/traveler/dashboard", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user domain.User
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &user))
	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, "Seed Traveler", user.Name)
}

func TestServer_LoginInitWrongPassword(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "a@b.com",
		"password": "WrongPass1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Invalid email or password")
}

func TestServer_LoginVerifyWrongOTP(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "a@b.com",
		"password": "Abcdef12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)

	resp = f.postJSON(t, "/traveler/login/verify", "", map[string]string{
		"email": "a@b.com",
		"otp":   "000000",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Invalid OTP code")
}

func TestServer_LoginVerifyMaxAttempts(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "a@b.com",
		"password": "Abcdef12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := resp.Header.Get(DebugOTPHeader)
	readBody(t, resp)

	for i := 0; i < 3; i++ {
		resp = f.postJSON(t, "/traveler/login/verify", "", map[string]string{
			"email": "a@b.com",
			"otp":   "000000",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		readBody(t, resp)
	}

	// The challenge is burned; even the right code is refused now.
	resp = f.postJSON(t, "/traveler/login/verify", "", map[string]string{
		"email": "a@b.com",
		"otp":   code,
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_OTPResendThrottled(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	creds := map[string]string{"email": "a@b.com", "password": "Abcdef12"}
	resp := f.postJSON(t, "/traveler/login/init", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)

	resp = f.postJSON(t, "/traveler/login/init", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "wait before requesting")
}

func TestServer_RegisterFlow(t *testing.T) {
	f := newServerFixture(t)

	resp := f.postForm(t, http.MethodPost, "/traveler/register/init", map[string]string{
		"name":     "New Traveler",
		"email":    "new@b.com",
		"phone":    "7666736126",
		"password": "Abcdef12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := resp.Header.Get(DebugOTPHeader)
	require.Len(t, code, 6)
	readBody(t, resp)

	resp = f.postForm(t, http.MethodPost, "/traveler/register/verify", map[string]string{
		"email": "new@b.com",
		"otp":   code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Registration successful")

	// The account now accepts the password it registered with.
	user, err := f.server.Repo().FindByEmail(context.Background(), "new@b.com")
	require.NoError(t, err)
	assert.Equal(t, "New Traveler", user.Name)

	resp = f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "new@b.com",
		"password": "Abcdef12",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_RegisterDuplicateEmail(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postForm(t, http.MethodPost, "/traveler/register/init", map[string]string{
		"name":     "Clone",
		"email":    "a@b.com",
		"phone":    "7666736126",
		"password": "Abcdef12",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "already registered")
}

func TestServer_ForgotAndResetPassword(t *testing.T) {
	f := newServerFixture(t)
	f.seedTraveler(t, "a@b.com", "Abcdef12")

	resp := f.postJSON(t, "/traveler/forgot-password", "", map[string]string{"email": "a@b.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := resp.Header.Get(DebugOTPHeader)
	require.Len(t, code, 6)
	readBody(t, resp)

	resp = f.postJSON(t, "/traveler/reset-password-otp", "", map[string]string{
		"email":       "a@b.com",
		"newPassword": "Newpass99",
		"otp":         code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)

	// Old password refused, new one accepted.
	resp = f.postJSON(t, "/traveler/login/init", "", map[string]string{
		"email":    "a@b.com",
		"password": "Abcdef12",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_ForgotPasswordUnknownEmailSameResponse(t *testing.T) {
	f := newServerFixture(t)

	resp := f.postJSON(t, "/traveler/forgot-password", "", map[string]string{"email": "ghost@b.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Password reset OTP sent")
}

func TestServer_ChangePassword(t *testing.T) {
	f := newServerFixture(t)
	user := f.seedTraveler(t, "a@b.com", "Abcdef12")
	token, err := f.server.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	t.Run("wrong current password", func(t *testing.T) {
		resp := f.postJSON(t, "/traveler/profile/change-password", token, map[string]string{
			"oldPassword": "WrongOld1",
			"newPassword": "Newpass99",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Current password is incorrect")
	})

	t.Run("correct current password", func(t *testing.T) {
		resp := f.postJSON(t, "/traveler/profile/change-password", token, map[string]string{
			"oldPassword": "Abcdef12",
			"newPassword": "Newpass99",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Password changed successfully")
	})
}

func TestServer_UpdateProfile(t *testing.T) {
	f := newServerFixture(t)
	user := f.seedTraveler(t, "a@b.com", "Abcdef12")
	token, err := f.server.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", "Renamed Traveler"))
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPut, f.base+"/traveler/profile/update", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated domain.User
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &updated))
	assert.Equal(t, "Renamed Traveler", updated.Name)
	assert.Equal(t, "7666736126", updated.Phone)
}

func TestServer_LogoutRevokesToken(t *testing.T) {
	f := newServerFixture(t)
	user := f.seedTraveler(t, "a@b.com", "Abcdef12")
	token, err := f.server.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	resp := f.postJSON(t, "/traveler/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)

	resp = f.get(t, "/traveler/dashboard", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_DeleteProfile(t *testing.T) {
	f := newServerFixture(t)
	user := f.seedTraveler(t, "a@b.com", "Abcdef12")
	token, err := f.server.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, f.base+"/traveler/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readBody(t, resp)

	_, err = f.server.Repo().FindByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, ErrTravelerNotFound)

	// The token died with the account.
	resp = f.get(t, "/traveler/dashboard", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_DashboardRequiresToken(t *testing.T) {
	f := newServerFixture(t)

	resp := f.get(t, "/traveler/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)

	resp = f.get(t, "/traveler/dashboard", "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Session expired")
}

func TestServer_RateLimit(t *testing.T) {
	f := newServerFixture(t, func(o *Options) {
		o.RatePerSecond = 1
		o.RateBurst = 2
	})

	var last int
	for i := 0; i < 5; i++ {
		resp := f.postJSON(t, "/traveler/login/init", "", map[string]string{
			"email":    "a@b.com",
			"password": "whatever",
		})
		last = resp.StatusCode
		readBody(t, resp)
		if last == http.StatusTooManyRequests {
			break
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestOTPStore_GenerateAndVerify(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := NewOTPStore(rdb, OTPConfig{
		Length:       6,
		TTL:          time.Minute,
		MaxAttempts:  3,
		ResendWindow: time.Minute,
	})
	ctx := context.Background()

	code, err := store.Generate(ctx, purposeLogin, "a@b.com")
	require.NoError(t, err)
	require.Len(t, code, 6)
	assert.False(t, strings.ContainsFunc(code, func(r rune) bool { return r < '0' || r > '9' }))

	// Challenges are scoped per purpose.
	err = store.Verify(ctx, purposeReset, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPNotFound)

	require.NoError(t, store.Verify(ctx, purposeLogin, "a@b.com", code))

	// Consumed on success.
	err = store.Verify(ctx, purposeLogin, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPStore_ExpiredChallenge(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := NewOTPStore(rdb, OTPConfig{
		Length:       6,
		TTL:          time.Minute,
		MaxAttempts:  3,
		ResendWindow: time.Second,
	})
	ctx := context.Background()

	code, err := store.Generate(ctx, purposeLogin, "a@b.com")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	err = store.Verify(ctx, purposeLogin, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}
