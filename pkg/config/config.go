package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBUrl         string
	RedisURL      string
	RedisPassword string
	JWTSecret     string

	PaystackBaseURL        string
	PaystackSecret         string
	PaystackWebhookSecret  string
	PaystackCallbackURL    string
	PaystackTimeoutSeconds int

	Currency      string
	MinDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal

	DeliveryFee  decimal.Decimal
	ServiceFee   decimal.Decimal
	AffiliateFee decimal.Decimal

	ReferrerFirstOrderReward  decimal.Decimal
	ReferrerSecondOrderReward decimal.Decimal
	ReferredFirstOrderReward  decimal.Decimal

	RateLimitRPS   int
	RateLimitBurst int

	Port           string
	Host           string
	Env            string
	AllowedOrigins []string
}

func LoadConfig() Config {
	godotenv.Load()

	return Config{
		DBUrl:         getEnv("DATABASE_URL"),
		RedisURL:      getEnv("REDIS_URL"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     getEnv("JWT_SECRET"),

		PaystackBaseURL:        getEnvOr("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackSecret:         getEnv("PAYSTACK_SECRET_KEY"),
		PaystackWebhookSecret:  getEnvOr("PAYSTACK_WEBHOOK_SECRET", os.Getenv("PAYSTACK_SECRET_KEY")),
		PaystackCallbackURL:    os.Getenv("PAYSTACK_CALLBACK_URL"),
		PaystackTimeoutSeconds: getEnvInt("PAYSTACK_TIMEOUT_SECONDS", 15),

		Currency:      getEnvOr("WALLET_CURRENCY", "NGN"),
		MinDeposit:    getEnvDecimal("WALLET_MIN_DEPOSIT", "100"),
		MinWithdrawal: getEnvDecimal("WALLET_MIN_WITHDRAWAL", "1000"),

		DeliveryFee:  getEnvDecimal("CHECKOUT_DELIVERY_FEE", "0"),
		ServiceFee:   getEnvDecimal("CHECKOUT_SERVICE_FEE", "0"),
		AffiliateFee: getEnvDecimal("CHECKOUT_AFFILIATE_FEE", "0"),

		ReferrerFirstOrderReward:  getEnvDecimal("REFERRAL_REWARD_REFERRER_FIRST_ORDER", "500"),
		ReferrerSecondOrderReward: getEnvDecimal("REFERRAL_REWARD_REFERRER_SECOND_ORDER", "500"),
		ReferredFirstOrderReward:  getEnvDecimal("REFERRAL_REWARD_REFERRED_FIRST_ORDER", "500"),

		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		Port:           getEnv("PORT"),
		Host:           getEnv("HOST"),
		Env:            getEnv("ENV"),
		AllowedOrigins: strings.Split(getEnvOr("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid integer", key))
	}
	return parsed
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}

	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid decimal amount", key))
	}
	return parsed
}
