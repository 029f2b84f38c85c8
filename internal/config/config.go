package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLTTL          int
}

type MailConfig struct {
	GatewayURL string
	Token      string
	From       string
	Timeout    int
}

type AppConfig struct {
	Port     string
	Timezone string
	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config
	Mail     MailConfig

	// ExportStorage is "local" or "s3".
	ExportStorage     string
	ExportDir         string
	FilesPublicPrefix string
	ExternalURL       string
	ExportPrefix      string

	SendLockTTL int

	// AllowedOrigins limits CORS and websocket upgrades; empty allows any.
	AllowedOrigins []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		slog.Error("invalid int config value", "value", s, "error", err)
		os.Exit(1)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		slog.Error("invalid bool config value", "value", s, "error", err)
		os.Exit(1)
	}
	return b
}

func Load() AppConfig {
	return AppConfig{
		Port:     getenv("APP_PORT", "8010"),
		Timezone: getenv("APP_TIMEZONE", "Europe/Berlin"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "vereinskasse"),
			Password: getenv("PG_PASSWORD", ""),
			DBName:   getenv("PG_DB", "vereinskasse"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "vereinskasse:"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "exports"),
			Region:          getenv("S3_REGION", "eu-central-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", "dues/"),
			URLTTL:          mustAtoi(getenv("S3_URL_TTL", "1800")),
		},
		Mail: MailConfig{
			GatewayURL: getenv("MAIL_GATEWAY_URL", ""),
			Token:      getenv("MAIL_GATEWAY_TOKEN", ""),
			From:       getenv("MAIL_FROM", "kasse@vereinskasse.de"),
			Timeout:    mustAtoi(getenv("MAIL_TIMEOUT", "10")),
		},
		ExportStorage:     getenv("EXPORT_STORAGE", "local"),
		ExportDir:         getenv("EXPORT_DIR", "./exports"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
		ExportPrefix:      getenv("EXPORT_CACHE_PREFIX", "exports:"),
		SendLockTTL:       mustAtoi(getenv("SEND_LOCK_TTL", "60")),
		AllowedOrigins:    splitList(getenv("ALLOWED_ORIGINS", "")),
	}
}

// Location resolves Timezone, which decides what "today" means when
// reminders are classified.
func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
