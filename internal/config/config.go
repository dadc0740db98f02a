package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RouteRule declares the reachability requirement for one route pattern.
// Patterns use casbin keyMatch2 syntax (/profile, /trips/:id, /bookings/*).
type RouteRule struct {
	Path         string `yaml:"path"`
	RequiresAuth bool   `yaml:"requires_auth"`
	GuestOnly    bool   `yaml:"guest_only"`
}

type AppConfig struct {
	BaseURL     string `yaml:"base_url"`
	Timeout     string `yaml:"timeout"`
	StoragePath string `yaml:"storage_path"`
}

type RoutesConfig struct {
	Login   string      `yaml:"login"`
	Landing string      `yaml:"landing"`
	Table   []RouteRule `yaml:"table"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	TTL    string `yaml:"ttl"`
}

type OTPConfig struct {
	TTL          string `yaml:"ttl"`
	Length       int    `yaml:"length"`
	MaxAttempts  int    `yaml:"max_attempts"`
	ResendWindow string `yaml:"resend_window"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type StubConfig struct {
	Port           int             `yaml:"port"`
	GinMode        string          `yaml:"gin_mode"`
	Redis          RedisConfig     `yaml:"redis"`
	JWT            JWTConfig       `yaml:"jwt"`
	OTP            OTPConfig       `yaml:"otp"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	ExposeOTPDebug bool            `yaml:"expose_otp_debug"`
}

type ConfigFile struct {
	App    AppConfig    `yaml:"app"`
	Routes RoutesConfig `yaml:"routes"`
	Stub   StubConfig   `yaml:"stub"`
}

// Config is the flattened runtime configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	StoragePath string

	LoginRoute   string
	LandingRoute string
	RouteTable   []RouteRule

	StubPort           int
	StubGinMode        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	JWTSecret          string
	JWTIssuer          string
	TokenTTL           time.Duration
	OTPTTL             time.Duration
	OTPLength          int
	OTPMaxAttempts     int
	OTPResendWindow    time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	ExposeOTPDebug     bool
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads the yaml config at path (optional; defaults apply when the
// file is missing) and applies environment overrides.
func Load(path string) (*Config, error) {
	configFile := defaults()
	if path == "" {
		path = env("TOURVERSE_CONFIG", "config/config.yml")
	}
	if bytes, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(bytes, configFile); err != nil {
			return nil, fmt.Errorf("could not parse config yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	timeout, err := time.ParseDuration(env("TOURVERSE_TIMEOUT", configFile.App.Timeout))
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}
	tokenTTL, err := time.ParseDuration(configFile.Stub.JWT.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT TTL: %w", err)
	}
	otpTTL, err := time.ParseDuration(configFile.Stub.OTP.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP TTL: %w", err)
	}
	resWnd, err := time.ParseDuration(configFile.Stub.OTP.ResendWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP resend window: %w", err)
	}

	storagePath := env("TOURVERSE_STORAGE", configFile.App.StoragePath)
	if storagePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not resolve home dir: %w", err)
		}
		storagePath = filepath.Join(home, ".config", "tourverse", "session.json")
	}

	return &Config{
		BaseURL:     env("TOURVERSE_API_URL", configFile.App.BaseURL),
		Timeout:     timeout,
		StoragePath: storagePath,

		LoginRoute:   configFile.Routes.Login,
		LandingRoute: configFile.Routes.Landing,
		RouteTable:   configFile.Routes.Table,

		StubPort:           configFile.Stub.Port,
		StubGinMode:        configFile.Stub.GinMode,
		RedisAddr:          env("TOURVERSE_REDIS_ADDR", configFile.Stub.Redis.Addr),
		RedisPassword:      env("TOURVERSE_REDIS_PASSWORD", configFile.Stub.Redis.Password),
		RedisDB:            configFile.Stub.Redis.DB,
		JWTSecret:          env("TOURVERSE_JWT_SECRET", configFile.Stub.JWT.Secret),
		JWTIssuer:          configFile.Stub.JWT.Issuer,
		TokenTTL:           tokenTTL,
		OTPTTL:             otpTTL,
		OTPLength:          configFile.Stub.OTP.Length,
		OTPMaxAttempts:     configFile.Stub.OTP.MaxAttempts,
		OTPResendWindow:    resWnd,
		RateLimitPerSecond: configFile.Stub.RateLimit.RequestsPerSecond,
		RateLimitBurst:     configFile.Stub.RateLimit.Burst,
		ExposeOTPDebug:     configFile.Stub.ExposeOTPDebug,
	}, nil
}

func defaults() *ConfigFile {
	return &ConfigFile{
		App: AppConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: "15s",
		},
		Routes: RoutesConfig{
			Login:   "/login",
			Landing: "/dashboard",
			Table: []RouteRule{
				{Path: "/", RequiresAuth: false},
				{Path: "/login", GuestOnly: true},
				{Path: "/register", GuestOnly: true},
				{Path: "/forgot-password", GuestOnly: true},
				{Path: "/reset-password", GuestOnly: true},
				{Path: "/dashboard", RequiresAuth: true},
				{Path: "/profile", RequiresAuth: true},
				{Path: "/settings", RequiresAuth: true},
				{Path: "/my-trips", RequiresAuth: true},
				{Path: "/bookings/*", RequiresAuth: true},
			},
		},
		Stub: StubConfig{
			Port:    8080,
			GinMode: "release",
			Redis:   RedisConfig{Addr: "localhost:6379"},
			JWT: JWTConfig{
				Secret: "dev-secret-change-me",
				Issuer: "tourverse-stub",
				TTL:    "24h",
			},
			OTP: OTPConfig{
				TTL:          "5m",
				Length:       6,
				MaxAttempts:  3,
				ResendWindow: "60s",
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		},
	}
}
