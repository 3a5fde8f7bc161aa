package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBPort          string
	AppPort         string
	AppEnv          string
	StripeSecretKey string
	RedisAddr       string
	SiteURL         string
	OrderTokenKey   string
	EmailAPIKey     string
	EmailFrom       string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:          os.Getenv("DB_HOST"),
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBName:          os.Getenv("DB_NAME"),
		DBPort:          os.Getenv("DB_PORT"),
		AppPort:         os.Getenv("APP_PORT"),
		AppEnv:          os.Getenv("APP_ENV"),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		SiteURL:         os.Getenv("SITE_URL"),
		OrderTokenKey:   os.Getenv("ORDER_TOKEN_KEY"),
		EmailAPIKey:     os.Getenv("EMAIL_API_KEY"),
		EmailFrom:       os.Getenv("EMAIL_FROM"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}
