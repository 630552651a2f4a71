package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	DataDir   string
	StoreName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	SupabaseURL       string
	SupabaseAPIKey    string
	SupabaseJWTSecret string
	SupabaseJWTRole   string
	SupabaseTokenTTL  time.Duration

	PrinterWidth int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	tokenTTL, err := strconv.Atoi(getEnv("SUPABASE_TOKEN_TTL_MINUTES", "60"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 60
	}
	printerWidth, err := strconv.Atoi(getEnv("PRINTER_WIDTH", "30"))
	if err != nil || printerWidth < 20 {
		printerWidth = 30
	}

	cfg := Config{
		Port:      getEnv("PORT", "8090"),
		DataDir:   getEnv("DATA_DIR", "data"),
		StoreName: getEnv("STORE_NAME", "Kassir POS"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SupabaseURL:       strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAPIKey:    strings.TrimSpace(os.Getenv("SUPABASE_API_KEY")),
		SupabaseJWTSecret: strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		SupabaseJWTRole:   getEnv("SUPABASE_JWT_ROLE", "service_role"),
		SupabaseTokenTTL:  time.Duration(tokenTTL) * time.Minute,

		PrinterWidth: printerWidth,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
