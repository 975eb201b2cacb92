package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
)

type Config struct {
	Port                           string
	AllowedOrigin                  string
	DatabaseURL                    string
	RedisAddr                      string
	RedisPassword                  string
	RedisDB                        int
	AuthSecret                     string
	AccessTokenTTLMinutes          int
	Location                       *time.Location
	LateAfter                      domain.TimeOfDay
	StandardWorkHours              decimal.Decimal
	EndOfDay                       domain.TimeOfDay
	AbsenceMarkAt                  domain.TimeOfDay
	AutoCheckoutAt                 domain.TimeOfDay
	EarlyAbsenceEnabled            bool
	EarlyAbsenceAt                 domain.TimeOfDay
	OrderAutoCancelMinutes         int
	OrderAutoCancelIntervalSeconds int
	HourlyRate                     decimal.Decimal
	OvertimeMultiplier             decimal.Decimal
	StandardWorkDays               int
	ReportProrationDays            int
	SchedulerEnabled               bool
	BootstrapAdminUsername         string
	BootstrapAdminPassword         string
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Malformed values fall back to their defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: failed to read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                           getEnv("PORT", "8080"),
		AllowedOrigin:                  getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:                    os.Getenv("DATABASE_URL"),
		RedisAddr:                      os.Getenv("REDIS_ADDR"),
		RedisPassword:                  os.Getenv("REDIS_PASSWORD"),
		RedisDB:                        redisDB,
		AuthSecret:                     strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:          getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		Location:                       getLocation("TIMEZONE", "Asia/Ho_Chi_Minh"),
		LateAfter:                      getTimeOfDay("LATE_AFTER", "08:15"),
		StandardWorkHours:              getDecimal("STANDARD_WORK_HOURS", "8"),
		EndOfDay:                       getTimeOfDay("END_OF_DAY", "23:59"),
		AbsenceMarkAt:                  getTimeOfDay("ABSENCE_MARK_AT", "23:55"),
		AutoCheckoutAt:                 getTimeOfDay("AUTO_CHECKOUT_AT", "23:59"),
		EarlyAbsenceEnabled:            getBool("EARLY_ABSENCE_ENABLED", false),
		EarlyAbsenceAt:                 getTimeOfDay("EARLY_ABSENCE_AT", "17:01"),
		OrderAutoCancelMinutes:         getPositiveInt("ORDER_AUTO_CANCEL_MINUTES", 60),
		OrderAutoCancelIntervalSeconds: getPositiveInt("ORDER_AUTO_CANCEL_INTERVAL_SECONDS", 60),
		HourlyRate:                     getDecimal("HOURLY_RATE", "50000"),
		OvertimeMultiplier:             getDecimal("OVERTIME_MULTIPLIER", "1.5"),
		StandardWorkDays:               getPositiveInt("STANDARD_WORK_DAYS", 22),
		ReportProrationDays:            getPositiveInt("REPORT_PRORATION_DAYS", 30),
		SchedulerEnabled:               getBool("SCHEDULER_ENABLED", true),
		BootstrapAdminUsername:         strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_USERNAME")),
		BootstrapAdminPassword:         os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
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

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}

func getDecimal(key string, fallback string) decimal.Decimal {
	val, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil || !val.IsPositive() {
		return decimal.RequireFromString(fallback)
	}
	return val
}

func getTimeOfDay(key string, fallback string) domain.TimeOfDay {
	val, err := domain.ParseTimeOfDay(getEnv(key, fallback))
	if err != nil {
		log.Printf("[config] WARN: %s: %v, using %s", key, err, fallback)
		val, _ = domain.ParseTimeOfDay(fallback)
	}
	return val
}

func getLocation(key string, fallback string) *time.Location {
	name := getEnv(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[config] WARN: unknown %s %q, using UTC: %v", key, name, err)
		return time.UTC
	}
	return loc
}
