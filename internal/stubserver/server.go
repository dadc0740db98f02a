// Package stubserver implements the traveler REST API in-process so the
// client can be developed and tested without the real backend. Accounts
// live in memory; OTP challenges, pending registrations and token
// revocations live in Redis.
package stubserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/tourverse/traveler/domain"
)

// DebugOTPHeader carries the issued code on init responses when debug
// exposure is enabled (development convenience only).
const DebugOTPHeader = "X-Debug-OTP"

// Options configures a stub server.
type Options struct {
	Redis          *redis.Client
	JWTSecret      string
	JWTIssuer      string
	TokenTTL       time.Duration
	OTP            OTPConfig
	Notifier       domain.Notifier
	RatePerSecond  float64
	RateBurst      int
	ExposeOTPDebug bool
	GinMode        string
}

// Server is the stub traveler backend.
type Server struct {
	repo      domain.TravelerRepository
	otp       *OTPStore
	tokens    *TokenService
	redis     *redis.Client
	notifier  domain.Notifier
	exposeOTP bool

	limiterMu  sync.Mutex
	limiters   map[string]*rate.Limiter
	ratePerSec float64
	rateBurst  int
}

// New creates a stub server over the given Redis client.
func New(opts Options) *Server {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	return &Server{
		repo:       NewMemoryTravelerRepo(),
		otp:        NewOTPStore(opts.Redis, opts.OTP),
		tokens:     NewTokenService(opts.JWTSecret, opts.JWTIssuer, opts.TokenTTL, opts.Redis),
		redis:      opts.Redis,
		notifier:   opts.Notifier,
		exposeOTP:  opts.ExposeOTPDebug,
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: opts.RatePerSecond,
		rateBurst:  opts.RateBurst,
	}
}

// Repo exposes the traveler repository for test seeding.
func (s *Server) Repo() domain.TravelerRepository { return s.repo }

// Router builds the gin engine serving the traveler API under /api.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	auth := api.Group("/traveler")
	auth.Use(s.rateLimit())
	{
		auth.POST("/login/init", s.loginInit)
		auth.POST("/login/verify", s.loginVerify)
		auth.POST("/register/init", s.registerInit)
		auth.POST("/register/verify", s.registerVerify)
		auth.POST("/forgot-password", s.forgotPassword)
		auth.POST("/reset-password-otp", s.resetPassword)
	}

	private := api.Group("/traveler")
	private.Use(s.requireAuth())
	{
		private.GET("/dashboard", s.dashboard)
		private.PUT("/profile/update", s.updateProfile)
		private.POST("/profile/change-password", s.changePassword)
		private.DELETE("/profile", s.deleteProfile)
		private.POST("/logout", s.logout)
	}

	return r
}

// pendingRegistration is the not-yet-verified account held in Redis
// between register/init and register/verify.
type pendingRegistration struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"passwordHash"`
	PictureURL   string `json:"pictureUrl,omitempty"`
}

func pendingKey(email string) string { return "reg:" + email }

// --- middleware ---

// rateLimit throttles auth endpoints per client IP.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ratePerSec <= 0 {
			c.Next()
			return
		}
		s.limiterMu.Lock()
		limiter, ok := s.limiters[c.ClientIP()]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(s.ratePerSec), s.rateBurst)
			s.limiters[c.ClientIP()] = limiter
		}
		s.limiterMu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests. Slow down."})
			return
		}
		c.Next()
	}
}

// requireAuth validates the bearer token and loads the traveler.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing bearer token"})
			return
		}

		claims, err := s.tokens.Validate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Session expired. Please login again."})
			return
		}

		user, err := s.repo.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Account no longer exists"})
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	return c.MustGet("user").(*domain.User)
}

func currentClaims(c *gin.Context) *Claims {
	return c.MustGet("claims").(*Claims)
}

// --- auth handlers ---

func (s *Server) loginInit(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	user, err := s.repo.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	hash, err := s.repo.PasswordHash(c.Request.Context(), user.ID)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}

	s.issueOTP(c, purposeLogin, req.Email, "OTP sent to your email.")
}

func (s *Server) loginVerify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	if !s.verifyOTP(c, purposeLogin, req.Email, req.OTP) {
		return
	}

	user, err := s.repo.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Account not found"})
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	c.String(http.StatusOK, token)
}

func (s *Server) registerInit(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	phone := c.PostForm("phone")
	password := c.PostForm("password")
	if name == "" || email == "" || phone == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required registration fields"})
		return
	}

	if _, err := s.repo.FindByEmail(c.Request.Context(), email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"message": "Email is already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to process registration"})
		return
	}

	pending := pendingRegistration{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		PictureURL:   s.storePicture(c),
	}
	encoded, err := json.Marshal(pending)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to process registration"})
		return
	}
	if err := s.redis.Set(c.Request.Context(), pendingKey(email), encoded, s.otp.config.TTL).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to process registration"})
		return
	}

	s.issueOTP(c, purposeRegister, email, "OTP sent to your email for registration verification.")
}

func (s *Server) registerVerify(c *gin.Context) {
	email := c.PostForm("email")
	code := c.PostForm("otp")
	if email == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing email or otp"})
		return
	}

	if !s.verifyOTP(c, purposeRegister, email, code) {
		return
	}

	raw, err := s.redis.Get(c.Request.Context(), pendingKey(email)).Result()
	if err == redis.Nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Registration expired. Please start over."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to complete registration"})
		return
	}

	var pending pendingRegistration
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to complete registration"})
		return
	}

	user := &domain.User{
		Name:              pending.Name,
		Email:             pending.Email,
		Phone:             pending.Phone,
		ProfilePictureURL: pending.PictureURL,
	}
	if err := s.repo.Create(c.Request.Context(), user, pending.PasswordHash); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"message": "Email is already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to complete registration"})
		return
	}
	s.redis.Del(c.Request.Context(), pendingKey(email))

	c.String(http.StatusOK, "Registration successful!")
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	// Same response whether or not the account exists.
	if _, err := s.repo.FindByEmail(c.Request.Context(), req.Email); err == nil {
		s.issueOTP(c, purposeReset, req.Email, "Password reset OTP sent.")
		return
	}
	c.String(http.StatusOK, "Password reset OTP sent.")
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		NewPassword string `json:"newPassword" binding:"required"`
		OTP         string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	if !s.verifyOTP(c, purposeReset, req.Email, req.OTP) {
		return
	}

	user, err := s.repo.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Account not found"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to reset password"})
		return
	}
	if err := s.repo.SetPasswordHash(c.Request.Context(), user.ID, string(hash)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to reset password"})
		return
	}

	c.String(http.StatusOK, "Password reset successful.")
}

// --- profile handlers ---

func (s *Server) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) updateProfile(c *gin.Context) {
	user := currentUser(c)

	if name := c.PostForm("name"); name != "" {
		user.Name = name
	}
	if phone := c.PostForm("phone"); phone != "" {
		user.Phone = phone
	}
	if url := s.storePicture(c); url != "" {
		user.ProfilePictureURL = url
	}

	if err := s.repo.Update(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) changePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	user := currentUser(c)
	hash, err := s.repo.PasswordHash(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to change password"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.OldPassword)) != nil {
		c.JSON(http.StatusConflict, gin.H{"message": "Current password is incorrect"})
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to change password"})
		return
	}
	if err := s.repo.SetPasswordHash(c.Request.Context(), user.ID, string(newHash)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to change password"})
		return
	}

	c.String(http.StatusOK, "Password changed successfully.")
}

func (s *Server) deleteProfile(c *gin.Context) {
	user := currentUser(c)
	if err := s.repo.Delete(c.Request.Context(), user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete account"})
		return
	}
	s.tokens.Revoke(c.Request.Context(), currentClaims(c))
	c.String(http.StatusOK, "Account deleted successfully.")
}

func (s *Server) logout(c *gin.Context) {
	if err := s.tokens.Revoke(c.Request.Context(), currentClaims(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Logout failed"})
		return
	}
	c.String(http.StatusOK, "Logged out successfully")
}

// --- helpers ---

// issueOTP generates, delivers and acknowledges a challenge.
func (s *Server) issueOTP(c *gin.Context, purpose, email, ack string) {
	code, err := s.otp.Generate(c.Request.Context(), purpose, email)
	if err != nil {
		if errors.Is(err, ErrOTPResendWait) {
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "Please wait before requesting a new OTP"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP"})
		return
	}

	body := fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, int(s.otp.config.TTL.Minutes()))
	if err := s.notifier.SendEmail(email, "Your TourVerse verification code", body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP"})
		return
	}

	if s.exposeOTP {
		c.Header(DebugOTPHeader, code)
	}
	c.String(http.StatusOK, ack)
}

// verifyOTP consumes a challenge, writing the error response itself when
// verification fails.
func (s *Server) verifyOTP(c *gin.Context, purpose, email, code string) bool {
	err := s.otp.Verify(c.Request.Context(), purpose, email, code)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrOTPNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "OTP not found or expired"})
	case errors.Is(err, ErrOTPMaxAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Maximum OTP attempts exceeded"})
	case errors.Is(err, ErrOTPInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid OTP code"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "OTP verification failed"})
	}
	return false
}

// storePicture accepts an uploaded profile picture and returns its fake
// URL. The stub never writes the bytes anywhere.
func (s *Server) storePicture(c *gin.Context) string {
	file, err := c.FormFile("profilePicture")
	if err != nil {
		return ""
	}
	src, err := file.Open()
	if err != nil {
		return ""
	}
	defer src.Close()
	io.Copy(io.Discard, src)
	return "/uploads/" + uuid.NewString() + "-" + file.Filename
}
