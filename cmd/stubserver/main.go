// Command stubserver runs the in-process traveler backend for local
// development. Accounts are in memory; OTPs and revocations need Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tourverse/traveler/internal/config"
	"github.com/tourverse/traveler/internal/stubserver"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	srv := stubserver.New(stubserver.Options{
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,
		TokenTTL:  cfg.TokenTTL,
		OTP: stubserver.OTPConfig{
			Length:       cfg.OTPLength,
			TTL:          cfg.OTPTTL,
			MaxAttempts:  cfg.OTPMaxAttempts,
			ResendWindow: cfg.OTPResendWindow,
		},
		RatePerSecond:  cfg.RateLimitPerSecond,
		RateBurst:      cfg.RateLimitBurst,
		ExposeOTPDebug: cfg.ExposeOTPDebug,
		GinMode:        cfg.StubGinMode,
	})

	addr := fmt.Sprintf(":%d", cfg.StubPort)
	log.Printf("stub traveler API listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatalf("server: %v", err)
	}
}
