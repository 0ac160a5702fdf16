package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	DatabaseURL               string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	StationID                 string
	AuthSecret                string
	AccessTokenTTLMinutes     int
	EditWindowMinutes         int
	DeviationThresholdPercent float64
	DeviationLookbackDays     int
	ReadingStatusTTLSeconds   int
	LogLevel                  string
}

func Load() Config {
	// A missing .env is fine; real deployments use process env.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	editWindow := getPositiveInt("EDIT_WINDOW_MINUTES", 180)
	lookback := getPositiveInt("DEVIATION_LOOKBACK_DAYS", 14)
	statusTTL := getPositiveInt("READING_STATUS_TTL_SECONDS", 30)

	threshold, err := strconv.ParseFloat(getEnv("DEVIATION_THRESHOLD_PERCENT", "30"), 64)
	if err != nil || threshold <= 0 {
		threshold = 30
	}

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		StationID:                 getEnv("DEFAULT_STATION_ID", "st-0001"),
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:     tokenTTL,
		EditWindowMinutes:         editWindow,
		DeviationThresholdPercent: threshold,
		DeviationLookbackDays:     lookback,
		ReadingStatusTTLSeconds:   statusTTL,
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
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

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
