package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AdminPassword         string
	AccessTokenTTLMinutes int
	ProbeIntervalSeconds  int
	ForceOffline          bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	probeInterval, err := strconv.Atoi(getEnv("PROBE_INTERVAL_SECONDS", "10"))
	if err != nil || probeInterval < 1 {
		probeInterval = 10
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AdminPassword:         strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		AccessTokenTTLMinutes: tokenTTL,
		ProbeIntervalSeconds:  probeInterval,
		ForceOffline:          strings.EqualFold(strings.TrimSpace(os.Getenv("FORCE_OFFLINE")), "true"),
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
